// Package notify carries fire-and-forget user feedback from the workflow to
// whoever displays it.
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

type Sink interface {
	Notify(level Level, message string)
}

type Notification struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// LogSink writes notifications to the service log.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) LogSink {
	return LogSink{log: log.With().Str("component", "notify").Logger()}
}

func (s LogSink) Notify(level Level, message string) {
	event := s.log.Info()
	if level == LevelError {
		event = s.log.Warn()
	}
	event.Str("level_tag", string(level)).Msg(message)
}

// Feed buffers the most recent notifications for one session until the UI
// drains them.
type Feed struct {
	mu    sync.Mutex
	limit int
	items []Notification
	now   func() time.Time
}

func NewFeed(limit int) *Feed {
	if limit <= 0 {
		limit = 50
	}
	return &Feed{limit: limit, now: time.Now}
}

func (f *Feed) Notify(level Level, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, Notification{Level: level, Message: message, CreatedAt: f.now()})
	if overflow := len(f.items) - f.limit; overflow > 0 {
		f.items = append([]Notification(nil), f.items[overflow:]...)
	}
}

// Drain returns the buffered notifications oldest first and empties the feed.
func (f *Feed) Drain() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.items
	f.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Multi fans a notification out to every sink.
type Multi []Sink

func (m Multi) Notify(level Level, message string) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(level, message)
		}
	}
}
