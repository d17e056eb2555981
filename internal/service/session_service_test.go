package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fall-detector-go/internal/advisory"
	"fall-detector-go/internal/alert"
	"fall-detector-go/internal/analysis"
	"fall-detector-go/internal/config"
	"fall-detector-go/internal/detection"
	"fall-detector-go/internal/model"
	"fall-detector-go/internal/pipeline"
	"fall-detector-go/internal/repository"
	"fall-detector-go/internal/video"
	"fall-detector-go/pkg/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// writeFrames каталог из n PNG кадров 64x48
func writeFrames(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 1; i <= n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, 64, 48))
		img.Set(i%64, 10, color.White)
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("img_%03d.png", i)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
	return dir
}

// lyingDetector класс падения на каждом кадре
type lyingDetector struct {
	blockAt int // на этом кадре ждет отмены
}

func (d *lyingDetector) DetectFalls(ctx context.Context, f *video.Frame, _, _ float64) ([]models.Detection, error) {
	if d.blockAt > 0 && f.Index >= d.blockAt {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []models.Detection{{BBox: models.BBox{X1: 10, Y1: 10, X2: 40, Y2: 40}, ClassID: 0, Confidence: 0.8}}, nil
}

func (d *lyingDetector) DetectPose(context.Context, *video.Frame, float64) ([]models.Pose, error) {
	return []models.Pose{{Keypoints: []models.Keypoint{{X: 20, Y: 20}}}}, nil
}

// memoryRepo архив в памяти
type memoryRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sessions: make(map[string]*model.Session)}
}

func (r *memoryRepo) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	return s, nil
}

func (r *memoryRepo) List(context.Context, int, int) ([]*model.Session, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out, int64(len(out)), nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", repository.ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	return nil
}

func newTestService(t *testing.T, det detection.Detector, repo repository.SessionRepository, opts ...func(*config.Config)) *SessionService {
	t.Helper()
	logger := quietLogger()

	cfg := &config.Config{}
	cfg.Detection = config.DefaultDetectionParams()
	cfg.Detection.SkipFrames = 1
	cfg.Alert.CooldownSeconds = 10
	cfg.Alert.Clock = "video"
	cfg.Storage.StaticDir = t.TempDir()
	cfg.Storage.DefaultFPS = 10
	cfg.Storage.InputRoot = os.TempDir()
	for _, opt := range opts {
		opt(cfg)
	}

	advisor := advisory.NewAdvisor(nil, 300, logger)
	board := alert.NewBoard()
	worker := alert.NewWorker(advisor, board, 4, time.Second, logger)
	worker.Start()
	t.Cleanup(func() { _ = worker.Stop(context.Background()) })

	processor := pipeline.NewProcessor(det, worker, logger)
	return NewSessionService(processor, analysis.NewAnalyzer(), advisor, repo, board, cfg, logger)
}

func waitDone(t *testing.T, s *SessionService, id string) {
	t.Helper()
	done, err := s.Done(id)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestSessionService_CompletesAndReports(t *testing.T) {
	repo := newMemoryRepo()
	s := newTestService(t, &lyingDetector{}, repo)

	info, err := s.StartPath(writeFrames(t, 40))
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, info.Status)

	waitDone(t, s, info.ID)

	got, err := s.Get(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.Result)
	assert.Len(t, got.Result.FallEvents, 31)
	assert.Equal(t, 10, got.Result.FallEvents[0].Frame)
	assert.Equal(t, 1, got.Result.AlertsSent)
	assert.NotEmpty(t, got.Result.CareAnalysis)
	assert.Equal(t, models.RiskHigh, got.RiskLevel)
	assert.True(t, got.HasOutput)

	report, err := s.Report(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, report.Summary.TotalFalls)

	data, err := s.ReportXLSX(context.Background(), info.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	out, err := s.OutputPath(context.Background(), info.ID)
	require.NoError(t, err)
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 40)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	adv, err := s.Advisory(ctx, info.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), adv.Sequence)
	assert.Equal(t, 10, adv.Payload.Frame)
	assert.NotEmpty(t, adv.Text)

	// архив
	record, err := repo.GetByID(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", record.Status)
	assert.Equal(t, 31, record.TotalFalls)
	assert.Len(t, record.Events, 31)
	assert.Equal(t, "high", record.RiskLevel)
	assert.Equal(t, 40, record.FramesProcessed)
	assert.Equal(t, got.Result.Performance, modelToResult(record).Performance)
}

func TestSessionService_ArchivedReportRebuilt(t *testing.T) {
	repo := newMemoryRepo()
	require.NoError(t, repo.Create(context.Background(), &model.Session{
		ID: "archived-1", Status: "completed", Duration: 60, TotalFrames: 1800, FPS: 30,
		ErrorCount: 2, FramesProcessed: 100, FramesSkipped: 200, DetectionTime: 5,
		Events: []model.FallEventRecord{
			{Frame: 300, Timestamp: 10, Type: "sustained", Confidence: 0.7, X1: 0, Y1: 0, X2: 10, Y2: 10},
		},
	}))
	s := newTestService(t, &lyingDetector{}, repo)

	info, err := s.Get(context.Background(), "archived-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, info.Status)
	require.NotNil(t, info.Result)
	assert.Len(t, info.Result.FallEvents, 1)

	report, err := s.Report(context.Background(), "archived-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.TotalFalls)
	assert.Equal(t, models.RiskLow, report.Summary.RiskLevel)

	perf := report.Performance
	assert.Equal(t, 100, perf.FramesProcessed)
	assert.Equal(t, 200, perf.FramesSkipped)
	assert.Equal(t, 2, perf.ErrorCount)
	assert.InDelta(t, 5.0, perf.DetectionTime, 1e-9)
	assert.InDelta(t, 0.05, perf.AvgDetectionTime, 1e-9)
	assert.InDelta(t, 3.0, perf.SpeedImprovement, 1e-9)

	_, err = s.Advisory(context.Background(), "archived-1", 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_Stop(t *testing.T) {
	s := newTestService(t, &lyingDetector{blockAt: 5}, nil)

	info, err := s.StartPath(writeFrames(t, 30))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := s.Get(context.Background(), info.ID)
		return err == nil && got.Status == StatusProcessing
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(info.ID))
	waitDone(t, s, info.ID)

	got, err := s.Get(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, got.Status)
	require.NotNil(t, got.Result)
	assert.True(t, got.Result.Terminated)

	assert.ErrorIs(t, s.Stop(info.ID), ErrNotRunning)
}

func TestSessionService_InputErrors(t *testing.T) {
	s := newTestService(t, &lyingDetector{}, nil)

	_, err := s.StartPath(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, detection.ErrInput)

	// пустой каталог открывается с ошибкой уже в цикле
	info, err := s.StartPath(t.TempDir())
	require.NoError(t, err)
	waitDone(t, s, info.ID)

	got, err := s.Get(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "input source unavailable")

	_, err = s.Report(context.Background(), info.ID)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = s.OutputPath(context.Background(), info.ID)
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestSessionService_UploadAndDelete(t *testing.T) {
	s := newTestService(t, &lyingDetector{}, nil)

	// без gocv видеофайл не открывается, но загрузка сохраняется
	info, err := s.StartUpload("clip.mp4", strings.NewReader("not really a video"))
	require.NoError(t, err)
	waitDone(t, s, info.ID)

	videoDir := filepath.Join(s.staticDir, "videos", info.ID)
	_, err = os.Stat(filepath.Join(videoDir, info.ID+".mp4"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), info.ID))
	_, err = os.Stat(videoDir)
	assert.True(t, os.IsNotExist(err))

	_, err = s.Get(context.Background(), info.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, errors.Is(s.Delete(context.Background(), info.ID), ErrSessionNotFound))
}

func TestSessionService_Settings(t *testing.T) {
	s := newTestService(t, &lyingDetector{}, nil)

	skip, conf, iou, cooldown := 0, 5.0, 0.05, 2.5
	got := s.UpdateSettings(SettingsUpdate{
		SkipFrames:          &skip,
		DetectionConfidence: &conf,
		IOUThreshold:        &iou,
		CooldownSeconds:     &cooldown,
	})
	assert.Equal(t, 1, got.SkipFrames)
	assert.Equal(t, 1.0, got.DetectionConfidence)
	assert.Equal(t, 0.1, got.IOUThreshold)
	assert.Equal(t, 2.5, got.CooldownSeconds)
	assert.True(t, got.PoseEnabled)
	assert.Equal(t, got, s.Settings())
}

func TestSessionService_List(t *testing.T) {
	repo := newMemoryRepo()
	require.NoError(t, repo.Create(context.Background(), &model.Session{ID: "old", Status: "completed"}))
	s := newTestService(t, &lyingDetector{}, repo)

	info, err := s.StartPath(writeFrames(t, 3))
	require.NoError(t, err)
	waitDone(t, s, info.ID)

	resp, err := s.List(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, resp.Active, 1)
	assert.Equal(t, info.ID, resp.Active[0].ID)
	assert.Len(t, resp.Archived, 2)
	assert.Equal(t, int64(2), resp.Total)
}

func TestSessionService_SourcePathRestrictedToInputRoot(t *testing.T) {
	root := t.TempDir()
	s := newTestService(t, &lyingDetector{}, nil, func(cfg *config.Config) {
		cfg.Storage.InputRoot = root
	})

	_, err := s.StartPath(writeFrames(t, 2))
	assert.ErrorIs(t, err, ErrPathNotAllowed)

	_, err = s.StartPath(filepath.Join(root, "..", "etc"))
	assert.ErrorIs(t, err, ErrPathNotAllowed)

	_, err = s.StartPath(filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, detection.ErrInput)

	outside := writeFrames(t, 2)
	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err == nil {
		_, err = s.StartPath(link)
		assert.ErrorIs(t, err, ErrPathNotAllowed)
	}

	inside := filepath.Join(root, "cam1")
	require.NoError(t, os.Mkdir(inside, 0755))
	f, err := os.Create(filepath.Join(inside, "001.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 16, 16))))
	require.NoError(t, f.Close())

	info, err := s.StartPath(inside)
	require.NoError(t, err)
	waitDone(t, s, info.ID)
}

func TestSessionService_SourcePathDisabledWithoutRoot(t *testing.T) {
	s := newTestService(t, &lyingDetector{}, nil, func(cfg *config.Config) {
		cfg.Storage.InputRoot = ""
	})

	_, err := s.StartPath(writeFrames(t, 2))
	assert.ErrorIs(t, err, ErrPathNotAllowed)
}

func TestSessionService_ArchivedSessionEvicted(t *testing.T) {
	repo := newMemoryRepo()
	s := newTestService(t, &lyingDetector{}, repo, func(cfg *config.Config) {
		cfg.Storage.LiveRetention = 0.2
	})

	info, err := s.StartPath(writeFrames(t, 12))
	require.NoError(t, err)
	waitDone(t, s, info.ID)

	require.Eventually(t, func() bool {
		return s.live(info.ID) == nil
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := s.board.Lookup(info.ID)
	assert.False(t, ok)

	got, err := s.Get(context.Background(), info.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 12, got.Result.Performance.FramesProcessed)
}

func TestSessionService_KeptInMemoryWithoutRepo(t *testing.T) {
	s := newTestService(t, &lyingDetector{}, nil, func(cfg *config.Config) {
		cfg.Storage.LiveRetention = 0.01
	})

	info, err := s.StartPath(writeFrames(t, 3))
	require.NoError(t, err)
	waitDone(t, s, info.ID)

	time.Sleep(100 * time.Millisecond)
	assert.NotNil(t, s.live(info.ID))
}
