package audit

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/appcommon/pkg/observability"
)

// SlogLogger writes each record as one log entry with an "audit" group.
type SlogLogger struct {
	logger *slog.Logger
	level  slog.Level
	now    func() time.Time
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger creates a logger writing to l at INFO. A nil l uses
// slog.Default() at the time of each call.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l, level: slog.LevelInfo, now: time.Now}
}

// Log writes the record and counts it.
func (s *SlogLogger) Log(ctx context.Context, category, action, outcome string, metadata map[string]string, info RequestInfo) {
	rec := newRecord(uuid.NewString(), s.now(), category, action, outcome, metadata, info)

	l := s.logger
	if l == nil {
		l = slog.Default()
	}
	l.LogAttrs(ctx, s.level, "audit event", slog.Group("audit", recordAttrs(rec)...))

	observability.AuditEventsTotal.WithLabelValues(action, outcome).Inc()
}

func recordAttrs(rec Record) []any {
	attrs := []any{
		slog.String("id", rec.ID),
		slog.String("category", rec.Category),
		slog.String("action", rec.Action),
		slog.String("outcome", rec.Outcome),
	}
	if rec.SourceIP != "" {
		attrs = append(attrs, slog.String("source_ip", rec.SourceIP))
	}
	if rec.ForwardedFor != "" {
		attrs = append(attrs, slog.String("forwarded_for", rec.ForwardedFor))
	}

	keys := make([]string, 0, len(rec.Metadata))
	for k := range rec.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, rec.Metadata[k]))
	}
	return attrs
}
