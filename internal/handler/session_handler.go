package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fall-detector-go/internal/alert"
	"fall-detector-go/internal/detection"
	"fall-detector-go/internal/service"
)

const (
	maxAdvisoryWait     = 60 * time.Second
	defaultAdvisoryWait = 25 * time.Second
)

// SessionHandler обрабатывает HTTP запросы для работы с сессиями обработки
type SessionHandler struct {
	sessions *service.SessionService
	health   *service.HealthService
	upgrader websocket.Upgrader
	pongWait time.Duration
	logger   *logrus.Logger
}

// NewSessionHandler создает новый экземпляр SessionHandler
func NewSessionHandler(sessions *service.SessionService, health *service.HealthService, logger *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		health:   health,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		pongWait: defaultPongWait,
		logger:   logger,
	}
}

// RegisterRoutes регистрирует маршруты API
func (h *SessionHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/health", h.CheckHealth)
		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.UpdateSettings)

		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.POST("/sessions/:id/stop", h.StopSession)
		api.GET("/sessions/:id/report", h.GetReport)
		api.GET("/sessions/:id/report.xlsx", h.GetReportXLSX)
		api.GET("/sessions/:id/advisory", h.GetAdvisory)
		api.GET("/sessions/:id/video", h.GetSessionVideo)
		api.GET("/sessions/:id/ws", h.Stream)
	}
}

// createRequest тело запроса для обработки файла на сервере
type createRequest struct {
	SourcePath string `json:"source_path" form:"source_path"`
}

// CreateSession загружает видео (поле video) или принимает source_path и запускает обработку
func (h *SessionHandler) CreateSession(c *gin.Context) {
	h.logger.Info("Получен запрос на запуск сессии обработки")

	var (
		info *service.SessionInfo
		err  error
	)

	file, header, ferr := c.Request.FormFile("video")
	if ferr == nil {
		defer file.Close()
		h.logger.Infof("Получен видео файл %s (%d байт)", header.Filename, header.Size)
		info, err = h.sessions.StartUpload(header.Filename, file)
	} else {
		var req createRequest
		if bindErr := c.ShouldBind(&req); bindErr != nil || req.SourcePath == "" {
			h.logger.Error("Отсутствует видео файл и source_path")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Нужен видео файл (video) или source_path"})
			return
		}
		info, err = h.sessions.StartPath(req.SourcePath)
	}
	if err != nil {
		h.logger.Errorf("Ошибка запуска сессии: %v", err)
		h.fail(c, err, "Ошибка запуска сессии")
		return
	}

	h.logger.Infof("Сессия %s запущена", info.ID)
	c.JSON(http.StatusAccepted, info)
}

// ListSessions возвращает активные сессии и страницу архива
func (h *SessionHandler) ListSessions(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil || size < 1 || size > 100 {
		size = 10
	}

	resp, err := h.sessions.List(c.Request.Context(), page, size)
	if err != nil {
		h.logger.Errorf("Ошибка получения списка сессий: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка получения списка сессий"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetSession возвращает состояние сессии
func (h *SessionHandler) GetSession(c *gin.Context) {
	info, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Сессия не найдена")
		return
	}
	c.JSON(http.StatusOK, info)
}

// StopSession останавливает обработку; частичный результат сохраняется
func (h *SessionHandler) StopSession(c *gin.Context) {
	id := c.Param("id")
	h.logger.Infof("Получен запрос на остановку сессии %s", id)

	if err := h.sessions.Stop(id); err != nil {
		h.fail(c, err, "Не удалось остановить сессию")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Остановка сессии запрошена"})
}

// DeleteSession удаляет сессию и ее файлы
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	h.logger.Infof("Получен запрос на удаление сессии %s", id)

	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		h.logger.Errorf("Ошибка удаления сессии: %v", err)
		h.fail(c, err, "Ошибка удаления сессии")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Сессия успешно удалена"})
}

// GetReport возвращает отчет о рисках
func (h *SessionHandler) GetReport(c *gin.Context) {
	report, err := h.sessions.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Отчет недоступен")
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetReportXLSX возвращает отчет в формате Excel
func (h *SessionHandler) GetReportXLSX(c *gin.Context) {
	id := c.Param("id")
	data, err := h.sessions.ReportXLSX(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Отчет недоступен")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="fall-report-%s.xlsx"`, id))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// GetAdvisory ждет рекомендацию с номером больше after (long-poll).
// Если за timeout секунд ничего нет, возвращает 204.
func (h *SessionHandler) GetAdvisory(c *gin.Context) {
	after, _ := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)

	wait := defaultAdvisoryWait
	if s := c.Query("timeout"); s != "" {
		if sec, err := strconv.Atoi(s); err == nil && sec >= 0 {
			wait = min(time.Duration(sec)*time.Second, maxAdvisoryWait)
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()

	adv, err := h.sessions.Advisory(ctx, c.Param("id"), after)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, adv)
	case errors.Is(err, context.DeadlineExceeded):
		c.Status(http.StatusNoContent)
	case errors.Is(err, alert.ErrMailboxClosed):
		c.JSON(http.StatusGone, gin.H{"error": "Сессия удалена"})
	default:
		h.fail(c, err, "Рекомендация недоступна")
	}
}

// GetSessionVideo возвращает размеченное видео; каталог кадров отдается zip архивом
func (h *SessionHandler) GetSessionVideo(c *gin.Context) {
	id := c.Param("id")
	path, err := h.sessions.OutputPath(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Видео не найдено")
		return
	}

	st, err := os.Stat(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Видео не найдено"})
		return
	}
	if !st.IsDir() {
		c.File(path)
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="frames-%s.zip"`, id))
	c.Status(http.StatusOK)
	if err := writeZip(c.Writer, path); err != nil {
		h.logger.Errorf("Ошибка упаковки кадров сессии %s: %v", id, err)
	}
}

// CheckHealth проверяет состояние сервиса
func (h *SessionHandler) CheckHealth(c *gin.Context) {
	report := h.health.CheckHealth(c.Request.Context())
	if report.Status == "unhealthy" {
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetSettings текущие параметры производительности
func (h *SessionHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.Settings())
}

// UpdateSettings частичное обновление параметров для новых сессий
func (h *SessionHandler) UpdateSettings(c *gin.Context) {
	var upd service.SettingsUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неверный формат настроек"})
		return
	}
	c.JSON(http.StatusOK, h.sessions.UpdateSettings(upd))
}

// fail отвечает статусом по виду ошибки
func (h *SessionHandler) fail(c *gin.Context, err error, message string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrNoOutput):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotRunning), errors.Is(err, service.ErrNotReady):
		status = http.StatusConflict
	case errors.Is(err, detection.ErrInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrPathNotAllowed):
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": message, "details": err.Error()})
}
