package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fall-detector-go/internal/alert"
	"fall-detector-go/internal/config"
	"fall-detector-go/internal/detection"
	"fall-detector-go/internal/video"
	"fall-detector-go/pkg/models"
)

// progressEvery шаг в кадрах между сообщениями о прогрессе
const progressEvery = 30

// ProgressFunc получает процент (0-100) и сообщение
type ProgressFunc func(percent int, message string)

// Options параметры одной сессии обработки
type Options struct {
	SessionID string
	Params    config.DetectionParams
	Cooldown  time.Duration
	Clock     alert.Clock
	Annotate  bool
	Progress  ProgressFunc
}

// Processor последовательный цикл кадров: выборка, детекция, классификация, тревога, журнал
type Processor struct {
	detector  detection.Detector
	queue     alert.Enqueuer
	annotator *video.Annotator
	logger    *logrus.Logger
}

// NewProcessor queue может быть nil, тогда рекомендации не запрашиваются
func NewProcessor(detector detection.Detector, queue alert.Enqueuer, logger *logrus.Logger) *Processor {
	return &Processor{
		detector:  detector,
		queue:     queue,
		annotator: video.NewAnnotator(),
		logger:    logger,
	}
}

// ProcessFile открывает источник и приемник и запускает цикл.
// outputPath пустой - размеченные кадры не сохраняются.
func (p *Processor) ProcessFile(ctx context.Context, inputPath, outputPath string, defaultFPS float64, opts Options) (*models.DetectionResult, error) {
	src, err := video.Open(inputPath, defaultFPS)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detection.ErrInput, err)
	}

	var sink video.Sink = video.NullSink{}
	if outputPath != "" {
		sink, err = video.Create(outputPath, src.Info())
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("failed to create output %s: %w", outputPath, err)
		}
		opts.Annotate = true
	}

	result, err := p.Run(ctx, src, sink, opts)
	if result != nil && outputPath != "" {
		result.OutputPath = outputPath
	}
	return result, err
}

// Run обрабатывает поток до конца, отмены контекста или превышения лимита ошибок.
// Источник и приемник закрываются на любом пути выхода.
// При превышении лимита возвращается частичный результат вместе с ErrExcessiveErrors.
func (p *Processor) Run(ctx context.Context, src video.Source, sink video.Sink, opts Options) (*models.DetectionResult, error) {
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			p.logger.Warnf("Ошибка закрытия приемника кадров: %v", cerr)
		}
		if cerr := src.Close(); cerr != nil {
			p.logger.Warnf("Ошибка закрытия источника кадров: %v", cerr)
		}
	}()

	params := opts.Params.Normalize()
	clock := opts.Clock
	if clock == nil {
		clock = alert.WallClock()
	}

	info := src.Info()
	sampler := detection.NewSampler(params.SkipFrames, params.MaxErrors)
	machine := detection.NewStateMachine(params)
	dispatcher := alert.NewDispatcher(opts.Cooldown, p.queue)
	events := detection.NewEventLog()

	p.logger.WithFields(logrus.Fields{
		"session": opts.SessionID,
		"frames":  info.TotalFrames,
		"fps":     info.FPS,
		"skip":    params.SkipFrames,
	}).Info("Начинаем обработку видео")

	start := time.Now()
	var (
		fatal      error
		terminated bool
		poses      []models.Pose
		frameCount int
	)

loop:
	for {
		if ctx.Err() != nil {
			terminated = true
			break
		}

		frame, err := src.Next(ctx)
		switch {
		case err == nil:
		case video.IsEOF(err):
			break loop
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			terminated = true
			break loop
		default:
			p.logger.Warnf("Ошибка чтения кадра %d: %v", frameCount+1, err)
			if ferr := sampler.RecordError(); ferr != nil {
				fatal = ferr
				break loop
			}
			continue
		}
		frameCount = frame.Index

		ev, ferr := sampler.Process(frame.Index, func() (detection.FrameResult, error) {
			dets, err := p.detector.DetectFalls(ctx, frame, params.DetectionConfidence, params.IOUThreshold)
			if err != nil {
				return detection.FrameResult{}, err
			}
			if params.PoseEnabled {
				poses = p.detectPoses(ctx, frame, params.PoseConfidence)
			}
			return machine.Step(dets), nil
		})
		if ev.Err != nil {
			p.logger.Warnf("Ошибка детекции на кадре %d: %v", frame.Index, ev.Err)
			poses = nil
		}
		if ferr != nil {
			fatal = ferr
			break
		}

		res := ev.Result
		// События и тревоги только на оцененных кадрах: кеш не считается повторно
		if ev.Evaluated && res.FallDetected {
			payload := alert.BuildPayload(opts.SessionID, frame.Index, frame.Timestamp, res.Info)
			if dispatcher.Offer(clock(frame.Timestamp), true, payload) {
				p.logger.Infof("Тревога: падение (%s) на кадре %d", payload.Type, frame.Index)
			}
			if res.Info != nil {
				if err := events.Append(models.FallEvent{
					Frame:      frame.Index,
					Timestamp:  frame.Timestamp,
					Type:       res.Info.Type,
					Confidence: res.Info.Confidence,
					BBox:       res.Info.BBox,
					Center:     res.Info.Center,
				}); err != nil {
					p.logger.Errorf("Не удалось записать событие кадра %d: %v", frame.Index, err)
				}
			}
		}

		if opts.Annotate {
			if err := p.annotate(frame, res, poses); err != nil {
				p.logger.Debugf("Ошибка разметки кадра %d: %v", frame.Index, err)
				sampler.RecordWriteError()
			}
		}
		if err := sink.Write(frame); err != nil {
			p.logger.Debugf("Ошибка записи кадра %d: %v", frame.Index, err)
			sampler.RecordWriteError()
		}

		if opts.Progress != nil && frame.Index%progressEvery == 0 {
			opts.Progress(progressPercent(frame.Index, info.TotalFrames),
				fmt.Sprintf("Обработано кадров: %d/%d", frame.Index, info.TotalFrames))
		}
	}

	events.Freeze()
	stats := sampler.Stats()
	stats.Finalize()

	result := &models.DetectionResult{
		VideoInfo:      info,
		FallEvents:     events.Events(),
		ProcessingTime: time.Since(start).Seconds(),
		ErrorCount:     stats.ErrorCount,
		AlertsSent:     dispatcher.Triggers(),
		Performance:    stats,
		Terminated:     terminated || fatal != nil,
	}

	p.logger.WithFields(logrus.Fields{
		"session":    opts.SessionID,
		"events":     len(result.FallEvents),
		"alerts":     result.AlertsSent,
		"errors":     stats.ErrorCount,
		"evaluated":  stats.FramesProcessed,
		"skipped":    stats.FramesSkipped,
		"terminated": result.Terminated,
	}).Info("Обработка видео завершена")

	if fatal != nil {
		return result, fatal
	}
	return result, nil
}

func (p *Processor) detectPoses(ctx context.Context, frame *video.Frame, confidence float64) []models.Pose {
	poses, err := p.detector.DetectPose(ctx, frame, confidence)
	if err != nil {
		p.logger.Debugf("Ошибка определения позы на кадре %d: %v", frame.Index, err)
		return nil
	}
	return poses
}

func (p *Processor) annotate(frame *video.Frame, res detection.FrameResult, poses []models.Pose) error {
	if err := p.annotator.DrawPoses(frame, poses); err != nil {
		return err
	}
	if !res.FallDetected {
		return nil
	}
	if res.Info != nil {
		return p.annotator.DrawFall(frame, res.Info)
	}
	return p.annotator.DrawBanner(frame)
}

// progressPercent доля цикла кадров занимает первые 80%
func progressPercent(frame, total int) int {
	if total <= 0 {
		return 0
	}
	pct := frame * 80 / total
	return min(pct, 80)
}
