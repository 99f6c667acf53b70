package ui

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgnsrekt/MaudeViewFX/internal/events"
	"github.com/google/uuid"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

var levelRank = map[Level]int{
	LevelInfo:    0,
	LevelSuccess: 1,
	LevelWarning: 2,
	LevelDanger:  3,
}

// ParseLevel maps a level name to a Level. Unknown names give info.
func ParseLevel(s string) Level {
	l := Level(s)
	if _, ok := levelRank[l]; ok {
		return l
	}
	return LevelInfo
}

// Notice is a transient message shown to the user.
type Notice struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notify shows a notice and schedules its removal after the notice TTL.
// Notices at or above the forwarding level are also sent to the forwarder.
func (c *Controller) Notify(level Level, message string) Notice {
	n := Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.notices = append(c.notices, n)
	if !c.closed {
		c.timers[n.ID] = time.AfterFunc(c.opts.NoticeTTL, func() {
			if err := c.DismissNotice(n.ID); err != nil {
				slog.Debug("ui notice already dismissed", "id", n.ID, "error", err)
			}
		})
	}
	c.mu.Unlock()

	c.publish(events.KindNotice, n)
	slog.Info("ui notice", "level", level, "message", message)

	if c.opts.Forwarder != nil && levelRank[level] >= levelRank[c.opts.ForwardMin] {
		go c.forward(n)
	}
	return n
}

// DismissNotice removes a notice before it expires.
func (c *Controller) DismissNotice(id string) error {
	c.mu.Lock()
	idx := -1
	for i, n := range c.notices {
		if n.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return newError(CodeNoticeUnknown, "notice "+id+" not found", nil)
	}
	c.notices = append(c.notices[:idx], c.notices[idx+1:]...)
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
	c.mu.Unlock()

	c.publish(events.KindNoticeDismissed, map[string]string{"id": id})
	return nil
}

// Close stops every pending notice timer. Notices raised afterwards are kept
// until dismissed explicitly.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Controller) forward(n Notice) {
	ctx, cancel := context.WithTimeout(context.Background(), forwardTimeout)
	defer cancel()
	if err := c.opts.Forwarder.Forward(ctx, string(n.Level), n.Message); err != nil {
		slog.Warn("ui notice forward failed", "id", n.ID, "error", err)
	}
}
