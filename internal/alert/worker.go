package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"fall-detector-go/pkg/models"
)

// Advisor внешний генератор текста рекомендаций
type Advisor interface {
	Advise(ctx context.Context, payload models.AlertPayload) (string, error)
}

// Notifier доставляет готовую рекомендацию подписчикам
type Notifier interface {
	Notify(ctx context.Context, adv models.Advisory) error
}

// MultiNotifier рассылает рекомендацию всем получателям, ошибки собираются в лог
type MultiNotifier struct {
	notifiers []Notifier
	logger    *logrus.Logger
}

// NewMultiNotifier пропускает nil-получателей
func NewMultiNotifier(logger *logrus.Logger, notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

func (m *MultiNotifier) Notify(ctx context.Context, adv models.Advisory) error {
	var first error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, adv); err != nil {
			m.logger.Warnf("Ошибка доставки рекомендации для сессии %s: %v", adv.SessionID, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Worker долгоживущий обработчик очереди рекомендаций.
// Задачи не отменяются при завершении цикла кадров сессии.
type Worker struct {
	advisor  Advisor
	notifier Notifier
	logger   *logrus.Logger
	timeout  time.Duration

	queue    chan models.AlertPayload
	seq      atomic.Uint64
	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

// NewWorker создает обработчик с очередью ограниченного размера
func NewWorker(advisor Advisor, notifier Notifier, queueSize int, timeout time.Duration, logger *logrus.Logger) *Worker {
	if queueSize < 1 {
		queueSize = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Worker{
		advisor:  advisor,
		notifier: notifier,
		logger:   logger,
		timeout:  timeout,
		queue:    make(chan models.AlertPayload, queueSize),
		done:     make(chan struct{}),
	}
}

// Start запускает горутину обработки
func (w *Worker) Start() {
	go w.run()
}

// Enqueue ставит задачу без блокировки; false если очередь полна или обработчик остановлен
func (w *Worker) Enqueue(payload models.AlertPayload) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return false
	}
	select {
	case w.queue <- payload:
		return true
	default:
		w.logger.Warnf("Очередь рекомендаций переполнена, событие кадра %d сессии %s отброшено",
			payload.Frame, payload.SessionID)
		return false
	}
}

// Stop закрывает очередь и ждет обработки оставшихся задач
func (w *Worker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		close(w.queue)
		w.mu.Unlock()
	})

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for payload := range w.queue {
		w.handle(payload)
	}
}

func (w *Worker) handle(payload models.AlertPayload) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorf("Паника при генерации рекомендации: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	adv := models.Advisory{
		SessionID: payload.SessionID,
		Sequence:  w.seq.Add(1),
		Payload:   payload,
		CreatedAt: time.Now().Unix(),
	}

	text, err := w.advisor.Advise(ctx, payload)
	if err != nil {
		w.logger.Errorf("Ошибка генерации рекомендации для кадра %d: %v", payload.Frame, err)
		adv.Error = err.Error()
	} else {
		adv.Text = text
	}

	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, adv); err != nil {
		w.logger.Warnf("Рекомендация %d не доставлена: %v", adv.Sequence, err)
	}
}
