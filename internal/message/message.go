// Package message collects operator-facing messages produced during a seed
// run: progress lines, warnings about failed renders and the final summary.
package message

import (
	"context"
	"sync"

	"github.com/keithlinneman/linnemanlabs-seed/internal/log"
)

type Level string

const (
	LevelStatus  Level = "status"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Log records messages in order and mirrors each one to a logger.
// Safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	msgs   []Message
	logger log.Logger
}

func NewLog(l log.Logger) *Log {
	if l == nil {
		l = log.Nop()
	}
	return &Log{logger: l}
}

func (l *Log) Add(ctx context.Context, lvl Level, text string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, Message{Level: lvl, Text: text})
	l.mu.Unlock()

	switch lvl {
	case LevelWarning:
		l.logger.Warn(ctx, text, "channel", "operator")
	case LevelError:
		l.logger.Error(ctx, nil, text, "channel", "operator")
	default:
		l.logger.Info(ctx, text, "channel", "operator")
	}
}

func (l *Log) Status(ctx context.Context, text string) { l.Add(ctx, LevelStatus, text) }
func (l *Log) Warn(ctx context.Context, text string)   { l.Add(ctx, LevelWarning, text) }
func (l *Log) Error(ctx context.Context, text string)  { l.Add(ctx, LevelError, text) }

// Messages returns a copy of everything recorded so far.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Count reports how many messages of lvl were recorded.
func (l *Log) Count(lvl Level) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.msgs {
		if m.Level == lvl {
			n++
		}
	}
	return n
}
