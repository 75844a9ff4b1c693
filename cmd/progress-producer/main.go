package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/alpha-code-labs/quiz-quest-backend/internal/domain"
)

// Test load generator that publishes progress reports to the ingest topic.
// Useful for exercising the consumer path without a fleet of clients.
func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated kafka brokers")
	topic := flag.String("topic", "quiz-progress", "target topic")
	roomID := flag.String("room", "", "room id to report progress for (required)")
	players := flag.Int("players", 2, "number of synthetic players")
	questions := flag.Int("questions", 5, "questions per player")
	interval := flag.Duration("interval", 200*time.Millisecond, "delay between reports")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if *roomID == "" {
		logger.Error("missing required -room flag")
		os.Exit(1)
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		logger.Error("creating producer failed", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	sent := 0
	for q := 1; q <= *questions; q++ {
		for p := 0; p < *players; p++ {
			update := domain.ProgressUpdate{
				RoomID:          *roomID,
				UserID:          domain.FormatUserID(int64(p + 1)),
				Score:           int64(q * (10 + rand.Intn(10))),
				CurrentQuestion: q,
				TotalTimeSpent:  int64(q) * int64(5+rand.Intn(20)),
			}

			value, err := json.Marshal(update)
			if err != nil {
				logger.Error("encoding update failed", "error", err)
				continue
			}

			// Key on user id so one player's reports stay ordered
			partition, offset, err := producer.SendMessage(&sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(update.UserID),
				Value: sarama.ByteEncoder(value),
			})
			if err != nil {
				logger.Error("sending message failed", "error", err)
				continue
			}
			sent++
			logger.Info("progress sent",
				"user_id", update.UserID, "question", q,
				"partition", partition, "offset", offset)

			time.Sleep(*interval)
		}
	}

	fmt.Printf("done: %d reports sent to %s\n", sent, *topic)
}
