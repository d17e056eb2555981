package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

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

var (
	// ErrSessionNotFound сессии нет ни среди активных, ни в архиве
	ErrSessionNotFound = repository.ErrSessionNotFound
	// ErrNotRunning сессия уже завершена
	ErrNotRunning = errors.New("session is not running")
	// ErrNotReady результат еще не готов
	ErrNotReady = errors.New("session result is not ready")
	// ErrNoOutput размеченное видео не сохранялось
	ErrNoOutput = errors.New("session has no annotated output")
	// ErrPathNotAllowed source_path вне разрешенного каталога
	ErrPathNotAllowed = errors.New("source path is not allowed")
)

const (
	// finalizeTimeout время на анализ ухода и сохранение после цикла кадров
	finalizeTimeout = 60 * time.Second
	// defaultLiveRetention сколько архивированная сессия остается в памяти
	defaultLiveRetention = 10 * time.Minute
)

// liveSession сессия, запущенная этим процессом
type liveSession struct {
	mu         sync.RWMutex
	id         string
	status     Status
	progress   int
	message    string
	filename   string
	videoPath  string
	outputPath string
	errMsg     string
	createdAt  time.Time
	finishedAt *time.Time
	result     *models.DetectionResult
	report     *models.AnalysisReport

	cancel context.CancelFunc
	done   chan struct{}
}

func (ls *liveSession) setProgress(pct int, msg string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if pct > ls.progress {
		ls.progress = pct
	}
	ls.message = msg
}

func (ls *liveSession) info() SessionInfo {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	info := SessionInfo{
		ID:            ls.id,
		Status:        ls.status,
		Progress:      ls.progress,
		Message:       ls.message,
		VideoFilename: ls.filename,
		HasOutput:     ls.outputPath != "" && ls.status != StatusProcessing,
		Error:         ls.errMsg,
		CreatedAt:     ls.createdAt,
		FinishedAt:    ls.finishedAt,
		Result:        ls.result,
	}
	if ls.report != nil {
		info.RiskLevel = ls.report.Summary.RiskLevel
	}
	return info
}

// SessionService запускает сессии обработки и хранит их состояние
type SessionService struct {
	processor *pipeline.Processor
	analyzer  *analysis.Analyzer
	advisor   *advisory.Advisor
	repo      repository.SessionRepository
	board     *alert.Board
	logger    *logrus.Logger

	staticDir     string
	inputRoot     string
	defaultFPS    float64
	clockKind     string
	liveRetention time.Duration

	mu       sync.RWMutex
	sessions map[string]*liveSession
	params   config.DetectionParams
	cooldown time.Duration

	wg sync.WaitGroup
}

// NewSessionService создает сервис сессий; repo может быть nil, тогда архив не ведется
func NewSessionService(
	processor *pipeline.Processor,
	analyzer *analysis.Analyzer,
	advisor *advisory.Advisor,
	repo repository.SessionRepository,
	board *alert.Board,
	cfg *config.Config,
	logger *logrus.Logger,
) *SessionService {
	retention := time.Duration(cfg.Storage.LiveRetention * float64(time.Second))
	if retention <= 0 {
		retention = defaultLiveRetention
	}

	inputRoot := cfg.Storage.InputRoot
	if inputRoot != "" {
		if abs, err := filepath.Abs(inputRoot); err == nil {
			inputRoot = abs
		}
	}

	return &SessionService{
		processor:     processor,
		analyzer:      analyzer,
		advisor:       advisor,
		repo:          repo,
		board:         board,
		logger:        logger,
		staticDir:     cfg.Storage.StaticDir,
		inputRoot:     inputRoot,
		defaultFPS:    cfg.Storage.DefaultFPS,
		clockKind:     cfg.Alert.Clock,
		liveRetention: retention,
		sessions:      make(map[string]*liveSession),
		params:        cfg.Detection.Normalize(),
		cooldown:      time.Duration(cfg.Alert.CooldownSeconds * float64(time.Second)),
	}
}

// GenerateSessionID генерирует уникальный ID для сессии
func (s *SessionService) GenerateSessionID() string {
	return uuid.New().String()
}

// StartUpload сохраняет загруженное видео и запускает обработку
func (s *SessionService) StartUpload(filename string, data io.Reader) (*SessionInfo, error) {
	id := s.GenerateSessionID()
	videoPath, err := s.saveVideoFile(id, filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to save video file: %w", err)
	}
	return s.start(id, filename, videoPath)
}

// StartPath запускает обработку файла или каталога кадров внутри INPUT_ROOT
func (s *SessionService) StartPath(sourcePath string) (*SessionInfo, error) {
	path, err := s.resolveSource(sourcePath)
	if err != nil {
		return nil, err
	}
	return s.start(s.GenerateSessionID(), filepath.Base(path), path)
}

// resolveSource проверяет, что путь существует и не выходит за inputRoot (в том числе по симлинкам)
func (s *SessionService) resolveSource(sourcePath string) (string, error) {
	if s.inputRoot == "" {
		return "", fmt.Errorf("%w: INPUT_ROOT is not configured", ErrPathNotAllowed)
	}

	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", detection.ErrInput, err)
	}
	if !within(s.inputRoot, abs) {
		return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, sourcePath)
	}

	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %v", detection.ErrInput, err)
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", detection.ErrInput, err)
	}
	root := s.inputRoot
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}
	if !within(root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathNotAllowed, sourcePath)
	}
	return abs, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *SessionService) start(id, filename, videoPath string) (*SessionInfo, error) {
	s.mu.RLock()
	params := s.params
	cooldown := s.cooldown
	s.mu.RUnlock()

	ctx, cancel := context.WithCancel(context.Background())
	ls := &liveSession{
		id:         id,
		status:     StatusProcessing,
		message:    "Обработка запущена",
		filename:   filename,
		videoPath:  videoPath,
		outputPath: s.outputPathFor(id, videoPath),
		createdAt:  time.Now(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[id] = ls
	s.mu.Unlock()

	// Ячейка рекомендаций существует с начала сессии
	s.board.Open(id)

	opts := pipeline.Options{
		SessionID: id,
		Params:    params,
		Cooldown:  cooldown,
		Clock:     alert.NewClock(s.clockKind),
		Progress:  ls.setProgress,
	}

	s.logger.WithFields(logrus.Fields{"session_id": id, "source": videoPath}).Info("Запускаем сессию обработки")

	s.wg.Add(1)
	go s.run(ctx, ls, opts)

	info := ls.info()
	return &info, nil
}

func (s *SessionService) run(ctx context.Context, ls *liveSession, opts pipeline.Options) {
	defer s.wg.Done()
	defer close(ls.done)
	defer ls.cancel()

	log := s.logger.WithField("session_id", ls.id)

	result, err := s.processor.ProcessFile(ctx, ls.videoPath, ls.outputPath, s.defaultFPS, opts)

	// Анализ ухода и сохранение не должны прерываться остановкой сессии
	fctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	var report *models.AnalysisReport
	if result != nil {
		ls.setProgress(90, "Анализ результатов")
		r := s.analyzer.Analyze(*result)
		report = &r
		if s.advisor != nil {
			result.CareAnalysis = s.advisor.Summarize(fctx, result.FallEvents)
		}
	}

	status := StatusCompleted
	switch {
	case err != nil:
		status = StatusFailed
		log.Errorf("Сессия завершилась с ошибкой: %v", err)
	case result.Terminated:
		status = StatusStopped
		log.Info("Сессия остановлена")
	default:
		log.Infof("Сессия завершена: падений %d", len(result.FallEvents))
	}

	now := time.Now()
	ls.mu.Lock()
	ls.status = status
	ls.result = result
	ls.report = report
	ls.finishedAt = &now
	if err != nil {
		ls.errMsg = err.Error()
		ls.message = "Ошибка обработки"
		ls.outputPath = existingOutput(ls.outputPath)
	} else {
		ls.progress = 100
		ls.message = "Обработка завершена"
		ls.outputPath = existingOutput(ls.outputPath)
	}
	ls.mu.Unlock()

	s.archive(fctx, ls)
}

// archive сохраняет итог сессии, если база данных подключена
func (s *SessionService) archive(ctx context.Context, ls *liveSession) {
	if s.repo == nil {
		return
	}

	ls.mu.RLock()
	record := sessionToModel(ls)
	ls.mu.RUnlock()

	if err := s.repo.Create(ctx, record); err != nil {
		s.logger.WithField("session_id", ls.id).Errorf("Ошибка сохранения сессии в БД: %v", err)
		return
	}
	s.logger.WithField("session_id", ls.id).Infof("Сессия сохранена в БД с %d событиями", len(record.Events))

	// Дальше сессия отдается из архива
	time.AfterFunc(s.liveRetention, func() { s.evict(ls) })
}

// evict убирает архивированную сессию из памяти
func (s *SessionService) evict(ls *liveSession) {
	s.mu.Lock()
	if s.sessions[ls.id] != ls {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, ls.id)
	s.mu.Unlock()

	s.board.Remove(ls.id)
	s.logger.WithField("session_id", ls.id).Debug("Сессия выгружена из памяти")
}

// Get возвращает состояние сессии
func (s *SessionService) Get(ctx context.Context, id string) (*SessionInfo, error) {
	if ls := s.live(id); ls != nil {
		info := ls.info()
		return &info, nil
	}
	record, err := s.archived(ctx, id)
	if err != nil {
		return nil, err
	}
	return modelToInfo(record), nil
}

// Done закрывается по завершении активной сессии
func (s *SessionService) Done(id string) (<-chan struct{}, error) {
	ls := s.live(id)
	if ls == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ls.done, nil
}

// Report возвращает отчет о рисках; для архивных сессий пересчитывается по событиям
func (s *SessionService) Report(ctx context.Context, id string) (*models.AnalysisReport, error) {
	if ls := s.live(id); ls != nil {
		ls.mu.RLock()
		defer ls.mu.RUnlock()
		if ls.report == nil {
			return nil, ErrNotReady
		}
		return ls.report, nil
	}

	record, err := s.archived(ctx, id)
	if err != nil {
		return nil, err
	}
	report := s.analyzer.Analyze(modelToResult(record))
	return &report, nil
}

// ReportXLSX отчет в формате Excel
func (s *SessionService) ReportXLSX(ctx context.Context, id string) ([]byte, error) {
	report, err := s.Report(ctx, id)
	if err != nil {
		return nil, err
	}
	return analysis.ExportXLSX(*report)
}

// OutputPath путь к размеченному видео или каталогу кадров
func (s *SessionService) OutputPath(ctx context.Context, id string) (string, error) {
	var path string
	if ls := s.live(id); ls != nil {
		ls.mu.RLock()
		if ls.status != StatusProcessing {
			path = ls.outputPath
		}
		ls.mu.RUnlock()
	} else {
		record, err := s.archived(ctx, id)
		if err != nil {
			return "", err
		}
		path = record.OutputPath
	}
	if existingOutput(path) == "" {
		return "", ErrNoOutput
	}
	return path, nil
}

// Advisory ждет рекомендацию с номером больше after
func (s *SessionService) Advisory(ctx context.Context, id string, after uint64) (models.Advisory, error) {
	box, ok := s.board.Lookup(id)
	if !ok || s.live(id) == nil {
		return models.Advisory{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return box.Wait(ctx, after)
}

// List активные сессии процесса и страница архива
func (s *SessionService) List(ctx context.Context, page, size int) (*ListSessionsResponse, error) {
	resp := &ListSessionsResponse{
		Active:   []SessionInfo{},
		Archived: []SessionInfo{},
		Page:     page,
		Size:     size,
	}

	s.mu.RLock()
	for _, ls := range s.sessions {
		resp.Active = append(resp.Active, ls.info())
	}
	s.mu.RUnlock()
	sort.Slice(resp.Active, func(i, j int) bool {
		return resp.Active[i].CreatedAt.After(resp.Active[j].CreatedAt)
	})

	if s.repo == nil {
		resp.Total = int64(len(resp.Active))
		return resp, nil
	}

	records, total, err := s.repo.List(ctx, page, size)
	if err != nil {
		s.logger.Errorf("Ошибка получения списка сессий: %v", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	for _, r := range records {
		resp.Archived = append(resp.Archived, *modelToInfo(r))
	}
	resp.Total = total
	return resp, nil
}

// Stop останавливает активную сессию; результат сохраняется как частичный
func (s *SessionService) Stop(id string) error {
	ls := s.live(id)
	if ls == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	ls.mu.RLock()
	running := ls.status == StatusProcessing
	ls.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	s.logger.WithField("session_id", id).Info("Останавливаем сессию")
	ls.cancel()
	return nil
}

// Delete останавливает сессию и удаляет ее данные, файлы и запись в архиве
func (s *SessionService) Delete(ctx context.Context, id string) error {
	s.logger.Infof("Удаляем сессию %s", id)

	ls := s.live(id)
	if ls != nil {
		ls.cancel()
		select {
		case <-ls.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
	}
	s.board.Remove(id)

	if s.repo != nil {
		err := s.repo.Delete(ctx, id)
		if err != nil && !(ls != nil && errors.Is(err, ErrSessionNotFound)) {
			s.logger.Errorf("Ошибка удаления сессии из БД: %v", err)
			return fmt.Errorf("failed to delete session: %w", err)
		}
	} else if ls == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	for _, dir := range []string{
		filepath.Join(s.staticDir, "videos", id),
		filepath.Join(s.staticDir, "outputs", id),
	} {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warnf("Не удалось удалить каталог %s: %v", dir, err)
		}
	}

	s.logger.Infof("Сессия %s успешно удалена", id)
	return nil
}

// Settings текущие параметры для новых сессий
func (s *SessionService) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Settings{
		SkipFrames:          s.params.SkipFrames,
		DetectionConfidence: s.params.DetectionConfidence,
		IOUThreshold:        s.params.IOUThreshold,
		PoseEnabled:         s.params.PoseEnabled,
		CooldownSeconds:     s.cooldown.Seconds(),
	}
}

// UpdateSettings применяет частичное обновление; значения приводятся к допустимым
func (s *SessionService) UpdateSettings(upd SettingsUpdate) Settings {
	s.mu.Lock()
	p := s.params
	if upd.SkipFrames != nil {
		p.SkipFrames = *upd.SkipFrames
	}
	if upd.DetectionConfidence != nil {
		p.DetectionConfidence = *upd.DetectionConfidence
	}
	if upd.IOUThreshold != nil {
		p.IOUThreshold = *upd.IOUThreshold
	}
	if upd.PoseEnabled != nil {
		p.PoseEnabled = *upd.PoseEnabled
	}
	if upd.CooldownSeconds != nil && *upd.CooldownSeconds >= 0 {
		s.cooldown = time.Duration(*upd.CooldownSeconds * float64(time.Second))
	}
	s.params = p.Normalize()
	s.mu.Unlock()

	settings := s.Settings()
	s.logger.Infof("Настройки обновлены: skip=%d conf=%.2f iou=%.2f", settings.SkipFrames,
		settings.DetectionConfidence, settings.IOUThreshold)
	return settings
}

// ActiveCount число сессий в обработке
func (s *SessionService) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, ls := range s.sessions {
		ls.mu.RLock()
		if ls.status == StatusProcessing {
			n++
		}
		ls.mu.RUnlock()
	}
	return n
}

// Shutdown останавливает все сессии и ждет их завершения
func (s *SessionService) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, ls := range s.sessions {
		ls.cancel()
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SessionService) live(id string) *liveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *SessionService) archived(ctx context.Context, id string) (*model.Session, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.repo.GetByID(ctx, id)
}

// outputPathFor видеофайл на выходе для видео, каталог кадров для последовательности
func (s *SessionService) outputPathFor(id, source string) string {
	dir := filepath.Join(s.staticDir, "outputs", id)
	if video.IsVideoFile(source) {
		return filepath.Join(dir, "annotated.mp4")
	}
	return filepath.Join(dir, "frames")
}

func existingOutput(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// saveVideoFile сохраняет видео файл в статической папке
func (s *SessionService) saveVideoFile(sessionID, originalFilename string, videoData io.Reader) (string, error) {
	s.logger.Infof("Сохраняем видео файл. SessionID: %s, оригинальное имя: %s", sessionID, originalFilename)

	sessionDir := filepath.Join(s.staticDir, "videos", sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		s.logger.Errorf("Ошибка создания директории %s: %v", sessionDir, err)
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	ext := filepath.Ext(originalFilename)
	if ext == "" {
		ext = ".mp4"
		s.logger.Warnf("Расширение файла не найдено, используем .mp4")
	}

	filePath := filepath.Join(sessionDir, sessionID+ext)
	file, err := os.Create(filePath)
	if err != nil {
		s.logger.Errorf("Ошибка создания файла %s: %v", filePath, err)
		return "", fmt.Errorf("failed to create video file: %w", err)
	}
	defer file.Close()

	bytesWritten, err := io.Copy(file, videoData)
	if err != nil {
		s.logger.Errorf("Ошибка записи данных в файл %s: %v", filePath, err)
		os.Remove(filePath)
		return "", fmt.Errorf("failed to write video data: %w", err)
	}

	s.logger.Infof("Видео файл сохранен: %s (записано %d байт)", filePath, bytesWritten)
	return filePath, nil
}
