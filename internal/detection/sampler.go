package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fall-detector-go/internal/video"
	"fall-detector-go/pkg/models"
)

var (
	// ErrInput источник кадров не открывается
	ErrInput = errors.New("input source unavailable")
	// ErrExcessiveErrors превышен лимит ошибок сессии
	ErrExcessiveErrors = errors.New("too many processing errors")
)

// Detector внешний детектор падений и поз
type Detector interface {
	DetectFalls(ctx context.Context, frame *video.Frame, confidence, iou float64) ([]models.Detection, error)
	DetectPose(ctx context.Context, frame *video.Frame, confidence float64) ([]models.Pose, error)
}

// Evaluation результат обработки кадра контроллером выборки
type Evaluation struct {
	Result    FrameResult
	Evaluated bool  // детектор действительно вызывался
	Err       error // ошибка детектора на этом кадре (восстановлена)
}

// Sampler решает, на каких кадрах вызывать детектор, и кеширует результат.
// Используется только из цикла кадров.
type Sampler struct {
	skip      int
	maxErrors int
	last      FrameResult
	stats     models.PerformanceStats
	now       func() time.Time
}

// NewSampler создает контроллер; skip приводится к >= 1
func NewSampler(skip, maxErrors int) *Sampler {
	if skip < 1 {
		skip = 1
	}
	return &Sampler{skip: skip, maxErrors: maxErrors, now: time.Now}
}

// ShouldDetect для кадра с номером index (с 1)
func (s *Sampler) ShouldDetect(index int) bool {
	return (index-1)%s.skip == 0
}

// Process вызывает evaluate на оцениваемых кадрах и возвращает кеш на остальных.
// Ошибка возвращается только при превышении лимита ошибок.
func (s *Sampler) Process(index int, evaluate func() (FrameResult, error)) (Evaluation, error) {
	if !s.ShouldDetect(index) {
		s.stats.FramesSkipped++
		return Evaluation{Result: s.last}, nil
	}

	start := s.now()
	result, err := evaluate()
	if err != nil {
		s.last = FrameResult{}
		if ferr := s.RecordError(); ferr != nil {
			return Evaluation{Evaluated: true, Err: err}, ferr
		}
		return Evaluation{Evaluated: true, Err: err}, nil
	}

	s.stats.FramesProcessed++
	s.stats.DetectionTime += s.now().Sub(start).Seconds()
	s.last = result
	return Evaluation{Result: result, Evaluated: true}, nil
}

// RecordError учитывает ошибку кадра; при превышении лимита возвращает ErrExcessiveErrors
func (s *Sampler) RecordError() error {
	s.stats.ErrorCount++
	if s.stats.ErrorCount > s.maxErrors {
		return fmt.Errorf("%w: %d errors (limit %d)", ErrExcessiveErrors, s.stats.ErrorCount, s.maxErrors)
	}
	return nil
}

// RecordWriteError учитывает ошибку разметки или записи кадра
func (s *Sampler) RecordWriteError() {
	s.stats.WriteErrors++
}

// Last последний закешированный результат
func (s *Sampler) Last() FrameResult { return s.last }

// Stats копия счетчиков
func (s *Sampler) Stats() models.PerformanceStats { return s.stats }
