package alert

import (
	"context"
	"errors"
	"sync"

	"fall-detector-go/pkg/models"
)

// ErrMailboxClosed ячейка сессии закрыта
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox ячейка на одну рекомендацию: новая заменяет прежнюю, очереди нет
type Mailbox struct {
	mu      sync.Mutex
	current *models.Advisory
	changed chan struct{}
	unread  bool
	drops   uint64
	closed  bool
}

// NewMailbox создает пустую ячейку
func NewMailbox() *Mailbox {
	return &Mailbox{changed: make(chan struct{})}
}

// Post заменяет содержимое ячейки и будит ожидающих
func (m *Mailbox) Post(adv models.Advisory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.unread {
		m.drops++
	}
	m.current = &adv
	m.unread = true
	close(m.changed)
	m.changed = make(chan struct{})
}

// Latest последняя рекомендация без ожидания
func (m *Mailbox) Latest() (models.Advisory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return models.Advisory{}, false
	}
	m.unread = false
	return *m.current, true
}

// Wait ждет рекомендацию с номером больше after или отмены контекста
func (m *Mailbox) Wait(ctx context.Context, after uint64) (models.Advisory, error) {
	for {
		m.mu.Lock()
		if m.current != nil && m.current.Sequence > after {
			adv := *m.current
			m.unread = false
			m.mu.Unlock()
			return adv, nil
		}
		if m.closed {
			m.mu.Unlock()
			return models.Advisory{}, ErrMailboxClosed
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return models.Advisory{}, ctx.Err()
		case <-ch:
		}
	}
}

// Drops число рекомендаций, замененных до прочтения
func (m *Mailbox) Drops() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

// Close будит ожидающих; последующие Post игнорируются
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	close(m.changed)
}

// Board ячейки рекомендаций по сессиям
type Board struct {
	mu    sync.Mutex
	boxes map[string]*Mailbox
}

// NewBoard создает пустую доску
func NewBoard() *Board {
	return &Board{boxes: make(map[string]*Mailbox)}
}

// Open создает ячейку сессии; повторный вызов возвращает существующую
func (b *Board) Open(sessionID string) *Mailbox {
	b.mu.Lock()
	defer b.mu.Unlock()

	box, ok := b.boxes[sessionID]
	if !ok {
		box = NewMailbox()
		b.boxes[sessionID] = box
	}
	return box
}

// Lookup возвращает ячейку сессии без создания
func (b *Board) Lookup(sessionID string) (*Mailbox, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	box, ok := b.boxes[sessionID]
	return box, ok
}

// Len число открытых ячеек
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.boxes)
}

// Notify кладет рекомендацию в ячейку ее сессии.
// Рекомендация для удаленной сессии отбрасывается.
func (b *Board) Notify(_ context.Context, adv models.Advisory) error {
	if box, ok := b.Lookup(adv.SessionID); ok {
		box.Post(adv)
	}
	return nil
}

// Remove закрывает и удаляет ячейку сессии
func (b *Board) Remove(sessionID string) {
	b.mu.Lock()
	box, ok := b.boxes[sessionID]
	delete(b.boxes, sessionID)
	b.mu.Unlock()

	if ok {
		box.Close()
	}
}
