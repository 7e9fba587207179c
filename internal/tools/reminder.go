package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkamenev/toolgate/internal/model"
)

// Reminder is a scheduled note.
type Reminder struct {
	Message string
	At      time.Time
}

// ScheduleReminder records reminders in memory. Delivery is somebody
// else's problem; the tool only validates and stores.
type ScheduleReminder struct {
	mu        sync.Mutex
	reminders []Reminder
	now       func() time.Time
}

func NewScheduleReminder() *ScheduleReminder {
	return &ScheduleReminder{now: time.Now}
}

func (*ScheduleReminder) Capability() model.Capability { return model.CapScheduleReminder }

func (t *ScheduleReminder) Invoke(_ context.Context, params map[string]string) (string, error) {
	message, err := requireParam(params, "message")
	if err != nil {
		return "", err
	}
	rawAt, err := requireParam(params, "at")
	if err != nil {
		return "", err
	}
	at, err := time.Parse(time.RFC3339, rawAt)
	if err != nil {
		return "", fmt.Errorf("tools: parse reminder time: %w", err)
	}
	if !at.After(t.now()) {
		return "", fmt.Errorf("tools: reminder time %s is in the past", at.Format(time.RFC3339))
	}

	t.mu.Lock()
	t.reminders = append(t.reminders, Reminder{Message: message, At: at.UTC()})
	t.mu.Unlock()

	return fmt.Sprintf("reminder scheduled for %s", at.UTC().Format(time.RFC3339)), nil
}

// Pending returns the stored reminders.
func (t *ScheduleReminder) Pending() []Reminder {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Reminder, len(t.reminders))
	copy(out, t.reminders)
	return out
}
