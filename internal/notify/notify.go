// Package notify delivers transient user-facing notices.
//
// A notice is the message an operator would see in a toast: one line,
// shown once, never persisted. Controllers emit notices on success and on
// every surfaced failure; the MCP layer returns the ones produced during a
// tool call alongside its result.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Level classifies a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one transient notification.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier receives notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Success emits a success notice.
func Success(ctx context.Context, n Notifier, msg string) {
	n.Notify(ctx, Notice{Level: LevelSuccess, Message: msg})
}

// Info emits an informational notice.
func Info(ctx context.Context, n Notifier, msg string) {
	n.Notify(ctx, Notice{Level: LevelInfo, Message: msg})
}

// Warn emits a warning notice.
func Warn(ctx context.Context, n Notifier, msg string) {
	n.Notify(ctx, Notice{Level: LevelWarning, Message: msg})
}

// Error emits an error notice.
func Error(ctx context.Context, n Notifier, msg string) {
	n.Notify(ctx, Notice{Level: LevelError, Message: msg})
}

// Log writes notices to a slog logger.
type Log struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (l Log) Notify(ctx context.Context, n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	logger.Log(ctx, level, n.Message, slog.String("notice", string(n.Level)))
	if c := collectorFrom(ctx); c != nil {
		c.Notify(ctx, n)
	}
}

// Recorder keeps every notice in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the most recent notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

// Reset drops all recorded notices.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}

type collectorKey struct{}

// Collect returns a context that captures notices emitted through a Log
// notifier while it is in use, and the recorder holding them.
func Collect(ctx context.Context) (context.Context, *Recorder) {
	r := &Recorder{}
	return context.WithValue(ctx, collectorKey{}, r), r
}

func collectorFrom(ctx context.Context) *Recorder {
	r, _ := ctx.Value(collectorKey{}).(*Recorder)
	return r
}
