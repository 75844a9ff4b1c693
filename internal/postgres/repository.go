package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/config"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
)

// Repository handles PostgreSQL persistence for user profiles
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id VARCHAR(16) PRIMARY KEY,
			display_name VARCHAR(64) NOT NULL,
			trivia_points BIGINT NOT NULL DEFAULT 0,
			current_rank INT NOT NULL DEFAULT 0,
			last_daily_bonus_date VARCHAR(32),
			last_daily_bonus_amount INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_points ON users(trivia_points DESC, user_id ASC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("user repository migrations completed")
	return nil
}

// CreateUser inserts a new user with starting points at the bottom rank
func (r *Repository) CreateUser(ctx context.Context, userID, displayName string) (*domain.User, error) {
	query := `
		INSERT INTO users (user_id, display_name, trivia_points, current_rank, created_at, updated_at)
		VALUES ($1, $2, $3, (SELECT COUNT(*) + 1 FROM users), $4, $4)
		RETURNING current_rank
	`
	now := time.Now().UTC()
	var rank int64
	err := r.pool.QueryRow(ctx, query, userID, displayName, domain.StartingPoints, now).Scan(&rank)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return &domain.User{
		UserID:       userID,
		DisplayName:  displayName,
		TriviaPoints: domain.StartingPoints,
		CurrentRank:  rank,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetUser fetches a single user by id
func (r *Repository) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, display_name, trivia_points, current_rank,
		       COALESCE(last_daily_bonus_date, ''), last_daily_bonus_amount,
		       created_at, updated_at
		FROM users
		WHERE user_id = $1
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&u.UserID, &u.DisplayName, &u.TriviaPoints, &u.CurrentRank,
		&u.LastDailyBonusDate, &u.LastDailyBonusAmount,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

// GetUsersByIDs fetches users in bulk, preserving no particular order.
// Missing ids are silently absent from the result.
func (r *Repository) GetUsersByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
		SELECT user_id, display_name, trivia_points, current_rank,
		       COALESCE(last_daily_bonus_date, ''), last_daily_bonus_amount,
		       created_at, updated_at
		FROM users
		WHERE user_id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("getting users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(
			&u.UserID, &u.DisplayName, &u.TriviaPoints, &u.CurrentRank,
			&u.LastDailyBonusDate, &u.LastDailyBonusAmount,
			&u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// UpdateDisplayName changes a user's display name
func (r *Repository) UpdateDisplayName(ctx context.Context, userID, displayName string) error {
	query := `UPDATE users SET display_name = $2, updated_at = $3 WHERE user_id = $1`
	result, err := r.pool.Exec(ctx, query, userID, displayName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("updating display name: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// AddPoints adds delta to a user's points and returns the new total
func (r *Repository) AddPoints(ctx context.Context, userID string, delta int64) (int64, error) {
	query := `
		UPDATE users
		SET trivia_points = trivia_points + $2, updated_at = $3
		WHERE user_id = $1
		RETURNING trivia_points
	`
	var total int64
	err := r.pool.QueryRow(ctx, query, userID, delta, time.Now().UTC()).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("adding points: %w", err)
	}
	return total, nil
}

// SetPoints overwrites a user's point total
func (r *Repository) SetPoints(ctx context.Context, userID string, points int64) error {
	query := `UPDATE users SET trivia_points = $2, updated_at = $3 WHERE user_id = $1`
	result, err := r.pool.Exec(ctx, query, userID, points, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("setting points: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// AwardDailyBonus grants the daily bonus once per bonus key. It returns
// false without error when the user already claimed this key.
func (r *Repository) AwardDailyBonus(ctx context.Context, userID, bonusKey string, amount int64) (bool, int64, error) {
	query := `
		UPDATE users
		SET trivia_points = trivia_points + $3,
		    last_daily_bonus_date = $2,
		    last_daily_bonus_amount = $3,
		    updated_at = $4
		WHERE user_id = $1
		  AND (last_daily_bonus_date IS NULL OR last_daily_bonus_date <> $2)
		RETURNING trivia_points
	`
	var total int64
	err := r.pool.QueryRow(ctx, query, userID, bonusKey, amount, time.Now().UTC()).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either already claimed or missing user; disambiguate
			u, getErr := r.GetUser(ctx, userID)
			if getErr != nil {
				return false, 0, getErr
			}
			return false, u.TriviaPoints, nil
		}
		return false, 0, fmt.Errorf("awarding daily bonus: %w", err)
	}
	return true, total, nil
}

// RecalculateRanks recomputes every user's rank from the point totals.
// Ties are broken by user id ascending so the ordering is total.
func (r *Repository) RecalculateRanks(ctx context.Context) error {
	query := `
		UPDATE users u
		SET current_rank = ranked.rank
		FROM (
			SELECT user_id,
			       ROW_NUMBER() OVER (ORDER BY trivia_points DESC, user_id ASC) AS rank
			FROM users
		) ranked
		WHERE u.user_id = ranked.user_id AND u.current_rank <> ranked.rank
	`
	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("recalculating ranks: %w", err)
	}
	r.logger.Debug("ranks recalculated", "updated", result.RowsAffected())
	return nil
}

// Leaderboard returns the top users by points
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	query := `
		SELECT user_id, display_name, trivia_points, current_rank
		FROM users
		ORDER BY trivia_points DESC, user_id ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.TriviaPoints, &e.Rank); err != nil {
			return nil, fmt.Errorf("scanning leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UserCount returns the total number of registered users
func (r *Repository) UserCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}
