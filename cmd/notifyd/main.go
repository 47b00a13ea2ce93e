// Command notifyd runs a headless message client: it signs in, keeps the
// local cache in sync with the server, and logs newly arrived unread messages
// so shift leads can watch an inbox from a terminal or forward the log.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/travco-dmc/backoffice-messaging/redis"
	"github.com/travco-dmc/backoffice-messaging/remote"
	"github.com/travco-dmc/backoffice-messaging/store"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("Notifier exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	_ = godotenv.Load()

	apiURL := envOr("API_URL", "http://localhost:8080")
	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	username := os.Getenv("BACKOFFICE_USERNAME")
	password := os.Getenv("BACKOFFICE_PASSWORD")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := redis.Connect(ctx, redisAddr)
	if err != nil {
		return err
	}

	client := remote.New(apiURL)
	sess, err := client.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := cache.SaveSession(ctx, sess); err != nil {
		logger.Warn("Could not persist session", "error", err.Error())
	}

	s := &store.Store{
		Logger:  logger,
		Remote:  client,
		Cache:   cache,
		Session: sess,
	}
	s.Start(ctx)
	defer s.Close()

	logger.Info("Watching inbox", "user", sess.Username)

	seen := make(map[string]bool)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, m := range s.UnreadMessages() {
				if seen[m.ID] {
					continue
				}
				seen[m.ID] = true
				content := store.DecodeContent(m.Content)
				attrs := []any{"id", m.ID, "from", m.SenderName, "text", content.Text}
				if content.Link != nil {
					attrs = append(attrs, "link", string(content.Link.Type)+"/"+content.Link.ID)
				}
				logger.Info("New message", attrs...)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
