package simplecms

import (
	"context"
	"log/slog"
	"time"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ContentCreated(ctx context.Context, event Event) error   { return nil }
func (n *NoopEventSink) ContentUpdated(ctx context.Context, event Event) error   { return nil }
func (n *NoopEventSink) ContentPublished(ctx context.Context, event Event) error { return nil }
func (n *NoopEventSink) ContentTrashed(ctx context.Context, event Event) error   { return nil }
func (n *NoopEventSink) ContentCopied(ctx context.Context, event Event) error    { return nil }
func (n *NoopEventSink) ContentMoved(ctx context.Context, event Event) error     { return nil }

// LoggingEventSink logs events but takes no other action.
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) log(ctx context.Context, name string, e Event) error {
	attrs := []any{
		"event", name,
		"kind", string(e.Kind),
		"content_id", e.ContentID.Hex(),
		"user_id", e.UserID.Hex(),
	}
	if e.VersionID != nil {
		attrs = append(attrs, "version_id", e.VersionID.Hex())
	}
	if e.Language != "" {
		attrs = append(attrs, "language", e.Language)
	}
	l.logger.InfoContext(ctx, "content event", attrs...)
	return nil
}

func (l *LoggingEventSink) ContentCreated(ctx context.Context, e Event) error {
	return l.log(ctx, "created", e)
}

func (l *LoggingEventSink) ContentUpdated(ctx context.Context, e Event) error {
	return l.log(ctx, "updated", e)
}

func (l *LoggingEventSink) ContentPublished(ctx context.Context, e Event) error {
	return l.log(ctx, "published", e)
}

func (l *LoggingEventSink) ContentTrashed(ctx context.Context, e Event) error {
	return l.log(ctx, "trashed", e)
}

func (l *LoggingEventSink) ContentCopied(ctx context.Context, e Event) error {
	return l.log(ctx, "copied", e)
}

func (l *LoggingEventSink) ContentMoved(ctx context.Context, e Event) error {
	return l.log(ctx, "moved", e)
}

// MultiEventSink fans events out to several sinks. Every sink is called;
// the first error is returned.
type MultiEventSink []EventSink

func (m MultiEventSink) each(fire func(EventSink) error) error {
	var first error
	for _, sink := range m {
		if err := fire(sink); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiEventSink) ContentCreated(ctx context.Context, e Event) error {
	return m.each(func(s EventSink) error { return s.ContentCreated(ctx, e) })
}

func (m MultiEventSink) ContentUpdated(ctx context.Context, e Event) error {
	return m.each(func(s EventSink) error { return s.ContentUpdated(ctx, e) })
}

func (m MultiEventSink) ContentPublished(ctx context.Context, e Event) error {
	return m.each(func(s EventSink) error { return s.ContentPublished(ctx, e) })
}

func (m MultiEventSink) ContentTrashed(ctx context.Context, e Event) error {
	return m.each(func(s EventSink) error { return s.ContentTrashed(ctx, e) })
}

func (m MultiEventSink) ContentCopied(ctx context.Context, e Event) error {
	return m.each(func(s EventSink) error { return s.ContentCopied(ctx, e) })
}

func (m MultiEventSink) ContentMoved(ctx context.Context, e Event) error {
	return m.each(func(s EventSink) error { return s.ContentMoved(ctx, e) })
}

type noopObserver struct{}

func (noopObserver) ObserveFlow(kind, flow string, err error, elapsed time.Duration) {}
func (noopObserver) BulkWriteFailures(kind string, n int)                              {}
