package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/radu-gajdos/greenthumb/internal/models"
	pkglogger "github.com/radu-gajdos/greenthumb/pkg/logger"
)

// AuthRecorder appends security-relevant events to the durable auth log
// and mirrors them to the structured audit stream. Recording must never
// fail a request: persistence errors are logged and swallowed.
type AuthRecorder struct {
	store       AuthLogStore
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

func NewAuthRecorder(store AuthLogStore, auditLogger *pkglogger.AuditLogger, logger *slog.Logger) *AuthRecorder {
	return &AuthRecorder{
		store:       store,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// RecordedEvent carries the fields of one auth log entry.
type RecordedEvent struct {
	UserID     string // empty when the user is not yet known
	Action     string
	IPAddress  string
	UserAgent  string
	StatusCode int
	StartedAt  time.Time
	Info       models.AuthLogInfo
}

func (r *AuthRecorder) Record(ctx context.Context, event RecordedEvent) {
	entry := &models.AuthLog{
		Action:         event.Action,
		IPAddress:      event.IPAddress,
		UserAgent:      event.UserAgent,
		StatusCode:     event.StatusCode,
		AdditionalInfo: event.Info,
	}
	if event.UserID != "" {
		entry.UserID = &event.UserID
	}
	if !event.StartedAt.IsZero() {
		entry.DurationMs = time.Since(event.StartedAt).Milliseconds()
	}

	if err := r.store.Append(ctx, entry); err != nil {
		r.logger.Error("failed to append auth log entry",
			slog.String("action", event.Action),
			slog.Any("error", err))
	}

	metadata := make(map[string]string, len(event.Info))
	for k, v := range event.Info {
		if s, ok := v.(string); ok {
			metadata[k] = s
		}
	}

	r.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: event.Action,
		UserID:    event.UserID,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		Success:   event.StatusCode < 400,
		Metadata:  metadata,
	})
}
