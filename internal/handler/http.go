package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/chat"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/game"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/presence"
	"github.com/alpha-code-labs/quiz-quest-backend/internal/store"
	ws "github.com/alpha-code-labs/quiz-quest-backend/internal/websocket"
)

// Handler holds the HTTP routes and their dependencies
type Handler struct {
	game     *game.Service
	presence *presence.Tracker
	chat     *chat.Relay
	ws       *ws.Server
	logger   *slog.Logger
}

// NewHandler creates the HTTP handler
func NewHandler(gameSvc *game.Service, tracker *presence.Tracker, chatRelay *chat.Relay, wsServer *ws.Server, logger *slog.Logger) *Handler {
	return &Handler{
		game:     gameSvc,
		presence: tracker,
		chat:     chatRelay,
		ws:       wsServer,
		logger:   logger,
	}
}

// APIResponse is the uniform response envelope
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Router builds the chi router with all routes
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(h.corsMiddleware)

	r.Get("/health", h.handleHealth)
	r.Get("/ws", h.ws.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/users/generate", h.handleGenerateUser)
		r.Post("/users", h.handleGenerateUser)
		r.Get("/users/{userID}", h.handleGetUser)
		r.Put("/users/{userID}/name", h.handleUpdateName)
		r.Put("/users/{userID}/points", h.handleAddPoints)
		r.Get("/users/{userID}/level", h.handleGetLevel)
		r.Post("/users/{userID}/daily-bonus", h.handleDailyBonus)
		r.Get("/users/{userID}/daily-bonus", h.handleDailyBonusCheck)
		r.Get("/users/{userID}/leagues", h.handleListUserLeagues)
		r.Post("/users/{userID}/connection", h.handleConnection)

		r.Get("/leaderboard", h.handleLeaderboard)
		r.Get("/online-players", h.handleOnlinePlayers)
		r.Get("/online-users/count", h.handleOnlineCount)

		r.Post("/rooms", h.handleCreateRoom)
		r.Post("/rooms/invite", h.handleCreateRoom)
		r.Get("/rooms/{roomID}", h.handleGetRoom)
		r.Post("/rooms/{roomID}/join", h.handleJoinRoom)
		r.Put("/rooms/{roomID}/state", h.handleUpdateRoomState)
		r.Get("/rooms/{roomID}/messages", h.handleRoomMessages)
		r.Post("/rooms/{roomID}/messages", h.handlePostMessage)
		r.Post("/rooms/{roomID}/invite", h.handleInvite)

		r.Post("/leagues", h.handleCreateLeague)
		r.Get("/leagues/{leagueID}", h.handleGetLeague)
		r.Post("/leagues/{leagueID}/join", h.handleJoinLeague)
		r.Get("/leagues/{leagueID}/standings", h.handleLeagueStandings)
		r.Post("/leagues/{leagueID}/games", h.handleCreateLeagueGame)

		r.Post("/track/{name}", h.handleTrackClick)
		r.Post("/counters/{counterID}/click", h.handleTrackCounter)
		r.Get("/counters/{counterID}", h.handleGetCounter)
	})

	return r
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("encoding response failed", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
}

func errorIsInvalid(err error) bool {
	return errors.Is(err, domain.ErrInvalidRequest)
}

// respondServiceError maps domain errors onto HTTP statuses
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFoundError(err):
		h.respondError(w, http.StatusNotFound, err.Error())
	case domain.IsConflictError(err):
		h.respondError(w, http.StatusConflict, err.Error())
	case errorIsInvalid(err):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) handleGenerateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.game.GenerateUser(r.Context(), req.DisplayName)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.game.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"level": domain.GetUserLevel(user.TriviaPoints),
	})
}

func (h *Handler) handleUpdateName(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.game.UpdateDisplayName(r.Context(), userID, req.DisplayName); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"user_id": userID, "display_name": req.DisplayName})
}

func (h *Handler) handleAddPoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int64 `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := chi.URLParam(r, "userID")
	total, err := h.game.AddUserPoints(r.Context(), userID, req.Points)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	user, err := h.game.GetUser(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	top, err := h.game.TopEntries(r.Context(), 10)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"trivia_points": total,
		"current_rank":  user.CurrentRank,
		"leaderboard":   top,
	})
}

func (h *Handler) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	info, err := h.game.GetUserLevel(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, info)
}

func (h *Handler) handleDailyBonus(w http.ResponseWriter, r *http.Request) {
	result, err := h.game.ClaimDailyBonus(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleDailyBonusCheck(w http.ResponseWriter, r *http.Request) {
	available, err := h.game.DailyBonusAvailable(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// handleConnection mirrors presence over REST for clients without a
// websocket
func (h *Handler) handleConnection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := chi.URLParam(r, "userID")
	var err error
	switch req.Status {
	case presence.StatusOnline:
		err = h.presence.SetOnline(r.Context(), userID)
	case presence.StatusOffline:
		err = h.presence.SetOffline(r.Context(), userID)
	default:
		h.respondError(w, http.StatusBadRequest, "status must be online or offline")
		return
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"user_id": userID, "status": req.Status})
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	requester := r.URL.Query().Get("user_id")

	entries, err := h.game.Leaderboard(r.Context(), limit, requester)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleOnlinePlayers(w http.ResponseWriter, r *http.Request) {
	ids, err := h.presence.OnlineUsers(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	players, err := h.game.OnlinePlayers(r.Context(), ids)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, players)
}

func (h *Handler) handleOnlineCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.presence.OnlineCount(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreatorID      string            `json:"creator_id"`
		CreatorName    string            `json:"creator_name"`
		Category       string            `json:"category"`
		Questions      []domain.Question `json:"questions"`
		MaxPlayers     int               `json:"max_players"`
		InvitedPlayers []string          `json:"invited_players"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.game.CreateRoom(r.Context(), game.CreateRoomParams{
		CreatorID:      req.CreatorID,
		CreatorName:    req.CreatorName,
		Category:       req.Category,
		Questions:      req.Questions,
		MaxPlayers:     req.MaxPlayers,
		InvitedPlayers: req.InvitedPlayers,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.notifyInvited(room, req.InvitedPlayers)
	h.respondJSON(w, http.StatusCreated, room)
}

func (h *Handler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.game.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, room)
}

func (h *Handler) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.game.JoinRoom(r.Context(), chi.URLParam(r, "roomID"), req.UserID, req.DisplayName)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.ws.Hub().BroadcastToRoom(room.RoomID, "players_updated", map[string]any{
		"room_id": room.RoomID,
		"players": room.Players,
	})
	h.respondJSON(w, http.StatusOK, room)
}

func (h *Handler) handleUpdateRoomState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameState domain.GameState `json:"game_state"`
		Players   []domain.Player  `json:"players,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	roomID := chi.URLParam(r, "roomID")
	result, err := h.game.UpdateRoomState(r.Context(), roomID, req.GameState, req.Players)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if result.Changed {
		h.ws.Hub().BroadcastToRoom(roomID, "game_state_updated", map[string]any{
			"room_id":    roomID,
			"game_state": result.Room.GameState,
		})
		if result.Room.GameState == domain.GameStateCompleted {
			h.ws.Hub().BroadcastToRoom(roomID, "game_completed", result.Room)
		}
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"room":    result.Room,
		"changed": result.Changed,
		"reason":  result.Reason,
	})
}

func (h *Handler) handleRoomMessages(w http.ResponseWriter, r *http.Request) {
	activity, err := h.game.GetRoomChatActivity(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, activity)
}

// handlePostMessage accepts a chat message over REST and relays it through
// the same path as websocket chat
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
		Text        string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sent, err := h.chat.Send(r.Context(), domain.ChatMessage{
		RoomID:      chi.URLParam(r, "roomID"),
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Text:        req.Text,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if sent == nil {
		// Reserved author, silently dropped
		h.respondJSON(w, http.StatusOK, map[string]bool{"delivered": false})
		return
	}
	h.respondJSON(w, http.StatusCreated, sent)
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserIDs []string `json:"user_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.game.InvitePlayers(r.Context(), chi.URLParam(r, "roomID"), req.UserIDs)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	delivered := h.notifyInvited(room, req.UserIDs)
	h.respondJSON(w, http.StatusOK, map[string]any{
		"room":      room,
		"delivered": delivered,
	})
}

// notifyInvited pushes invitation events to the invited users that hold a
// live connection and returns how many were reached
func (h *Handler) notifyInvited(room *domain.Room, userIDs []string) int {
	eventType := "game_invitation"
	if room.GameType == domain.GameTypeLeague {
		eventType = "league_game_invitation"
	}

	delivered := 0
	for _, id := range userIDs {
		if id == room.CreatorID {
			continue
		}
		if h.ws.Hub().SendToUser(id, eventType, map[string]any{
			"room_id":      room.RoomID,
			"category":     room.Category,
			"inviter_id":   room.CreatorID,
			"inviter_name": room.CreatorDisplayName,
			"league_id":    room.LeagueID,
			"league_name":  room.LeagueName,
		}) {
			delivered++
		}
	}
	return delivered
}

func (h *Handler) handleCreateLeague(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreatorID   string    `json:"creator_id"`
		CreatorName string    `json:"creator_name"`
		LeagueName  string    `json:"league_name"`
		MaxMembers  int       `json:"max_members"`
		EndDate     time.Time `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	league, err := h.game.CreateLeague(r.Context(), game.CreateLeagueParams{
		CreatorID:   req.CreatorID,
		CreatorName: req.CreatorName,
		LeagueName:  req.LeagueName,
		MaxMembers:  req.MaxMembers,
		EndDate:     req.EndDate,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, league)
}

func (h *Handler) handleGetLeague(w http.ResponseWriter, r *http.Request) {
	league, err := h.game.GetLeague(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, league)
}

func (h *Handler) handleJoinLeague(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID      string `json:"user_id"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	league, err := h.game.JoinLeague(r.Context(), chi.URLParam(r, "leagueID"), req.UserID, req.DisplayName)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, league)
}

func (h *Handler) handleLeagueStandings(w http.ResponseWriter, r *http.Request) {
	standings, err := h.game.LeagueStandings(r.Context(), chi.URLParam(r, "leagueID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, standings)
}

func (h *Handler) handleListUserLeagues(w http.ResponseWriter, r *http.Request) {
	leagues, err := h.game.ListLeaguesForUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, leagues)
}

func (h *Handler) handleCreateLeagueGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreatorID   string            `json:"creator_id"`
		CreatorName string            `json:"creator_name"`
		Category    string            `json:"category"`
		Questions   []domain.Question `json:"questions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	leagueID := chi.URLParam(r, "leagueID")
	room, err := h.game.CreateLeagueGame(r.Context(), game.CreateLeagueGameParams{
		LeagueID:    leagueID,
		CreatorID:   req.CreatorID,
		CreatorName: req.CreatorName,
		Category:    req.Category,
		Questions:   req.Questions,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	// Invite the rest of the league
	league, err := h.game.GetLeague(r.Context(), leagueID)
	if err == nil {
		members := make([]string, 0, len(league.Members))
		for _, m := range league.Members {
			members = append(members, m.ID)
		}
		h.notifyInvited(room, members)
	}

	h.respondJSON(w, http.StatusCreated, room)
}

// trackRoutes maps public track names to counter documents
var trackRoutes = map[string]string{
	"single-player": store.CounterSinglePlayerClicks,
	"multiplayer":   store.CounterMultiplayerClicks,
	"share":         store.CounterShareClicks,
	"league-icon":   store.CounterLeagueIconClicks,
}

// handleTrackClick always reports success; losing a click is not worth a
// client-visible failure
func (h *Handler) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	name := chi.URLParam(r, "name")
	counterID, ok := trackRoutes[name]
	if !ok {
		h.respondError(w, http.StatusBadRequest, "unknown track target")
		return
	}
	if err := h.game.TrackCounter(r.Context(), counterID, req.UserID); err != nil {
		h.logger.Warn("tracking click failed", "counter", counterID, "error", err)
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"tracked": name})
}

func (h *Handler) handleTrackCounter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	// Body is optional for counters
	json.NewDecoder(r.Body).Decode(&req)

	counterID := chi.URLParam(r, "counterID")
	if err := h.game.TrackCounter(r.Context(), counterID, req.UserID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"counter": counterID})
}

func (h *Handler) handleGetCounter(w http.ResponseWriter, r *http.Request) {
	counter, err := h.game.GetCounter(r.Context(), chi.URLParam(r, "counterID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, counter)
}
