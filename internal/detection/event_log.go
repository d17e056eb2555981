package detection

import (
	"fmt"

	"fall-detector-go/pkg/models"
)

// EventLog журнал событий падения только на добавление
type EventLog struct {
	events []models.FallEvent
	frozen bool
}

// NewEventLog создает пустой журнал
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Append добавляет событие; номера кадров не убывают
func (l *EventLog) Append(e models.FallEvent) error {
	if l.frozen {
		return fmt.Errorf("event log is frozen")
	}
	if n := len(l.events); n > 0 && e.Frame < l.events[n-1].Frame {
		return fmt.Errorf("event frame %d precedes last frame %d", e.Frame, l.events[n-1].Frame)
	}
	l.events = append(l.events, e)
	return nil
}

// Freeze запрещает дальнейшие изменения
func (l *EventLog) Freeze() { l.frozen = true }

// Frozen закрыт ли журнал
func (l *EventLog) Frozen() bool { return l.frozen }

// Len число событий
func (l *EventLog) Len() int { return len(l.events) }

// Events копия событий
func (l *EventLog) Events() []models.FallEvent {
	out := make([]models.FallEvent, len(l.events))
	copy(out, l.events)
	return out
}
