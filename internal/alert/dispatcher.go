package alert

import (
	"strings"
	"time"

	"fall-detector-go/pkg/models"
)

// Enqueuer принимает задачи на генерацию рекомендаций без блокировки
type Enqueuer interface {
	Enqueue(payload models.AlertPayload) bool
}

// Clock источник времени для кулдауна, в секундах.
// Получает метку времени кадра, чтобы можно было считать по времени видео.
type Clock func(frameTimestamp float64) float64

// WallClock монотонные часы процесса от момента создания
func WallClock() Clock {
	start := time.Now()
	return func(float64) float64 {
		return time.Since(start).Seconds()
	}
}

// VideoClock время по меткам кадров
func VideoClock() Clock {
	return func(ts float64) float64 { return ts }
}

// NewClock выбирает часы по имени из конфигурации ("wall" или "video")
func NewClock(kind string) Clock {
	if strings.EqualFold(kind, "video") {
		return VideoClock()
	}
	return WallClock()
}

// Dispatcher пропускает не больше одной рекомендации за интервал кулдауна.
// Состояние принадлежит циклу кадров одной сессии.
type Dispatcher struct {
	cooldown  float64
	lastAlert float64
	fired     bool
	triggers  int
	dropped   int
	queue     Enqueuer
}

// NewDispatcher создает диспетчер; queue может быть nil (только учет срабатываний)
func NewDispatcher(cooldown time.Duration, queue Enqueuer) *Dispatcher {
	return &Dispatcher{cooldown: cooldown.Seconds(), queue: queue}
}

// Offer решает, запускать ли рекомендацию для кадра с падением.
// Возвращает true, если кулдаун истек и задача передана в очередь.
func (d *Dispatcher) Offer(now float64, fallDetected bool, payload models.AlertPayload) bool {
	if !fallDetected {
		return false
	}
	if d.fired && now-d.lastAlert < d.cooldown {
		return false
	}
	d.fired = true
	d.lastAlert = now
	d.triggers++
	if d.queue != nil && !d.queue.Enqueue(payload) {
		d.dropped++
	}
	return true
}

// Triggers число срабатываний за сессию
func (d *Dispatcher) Triggers() int { return d.triggers }

// Dropped число срабатываний, не принятых очередью
func (d *Dispatcher) Dropped() int { return d.dropped }

// Reset сбрасывает состояние перед новым видео
func (d *Dispatcher) Reset() {
	d.fired = false
	d.lastAlert = 0
	d.triggers = 0
	d.dropped = 0
}

// BuildPayload собирает структурированное событие из данных кадра
func BuildPayload(sessionID string, frame int, timestamp float64, info *models.FallInfo) models.AlertPayload {
	p := models.AlertPayload{
		SessionID: sessionID,
		Frame:     frame,
		Timestamp: timestamp,
		Type:      models.FallSustained,
	}
	if info == nil {
		return p
	}
	p.Type = info.Type
	p.Confidence = info.Confidence
	p.Velocity = info.Velocity
	center := info.Center
	box := info.BBox
	p.Center = &center
	p.BBox = &box
	return p
}
