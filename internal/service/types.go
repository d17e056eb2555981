package service

import (
	"time"

	"fall-detector-go/pkg/models"
)

// Status состояние сессии обработки
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusStopped    Status = "stopped" // Остановлена пользователем
	StatusFailed     Status = "failed"
)

// SessionInfo состояние сессии для API
type SessionInfo struct {
	ID            string                  `json:"id"`
	Status        Status                  `json:"status"`
	Progress      int                     `json:"progress"`
	Message       string                  `json:"message"`
	VideoFilename string                  `json:"video_filename"`
	HasOutput     bool                    `json:"has_output"`
	Error         string                  `json:"error,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	FinishedAt    *time.Time              `json:"finished_at,omitempty"`
	Result        *models.DetectionResult `json:"result,omitempty"`
	RiskLevel     models.RiskLevel        `json:"risk_level,omitempty"`
}

// ListSessionsResponse ответ на запрос списка сессий
type ListSessionsResponse struct {
	Active   []SessionInfo `json:"active"`
	Archived []SessionInfo `json:"archived"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	Size     int           `json:"size"`
}

// Settings параметры производительности, применяются к новым сессиям
type Settings struct {
	SkipFrames          int     `json:"skip_frames"`
	DetectionConfidence float64 `json:"detection_confidence"`
	IOUThreshold        float64 `json:"iou_threshold"`
	PoseEnabled         bool    `json:"pose_enabled"`
	CooldownSeconds     float64 `json:"alert_cooldown_seconds"`
}

// SettingsUpdate частичное обновление настроек
type SettingsUpdate struct {
	SkipFrames          *int     `json:"skip_frames"`
	DetectionConfidence *float64 `json:"detection_confidence"`
	IOUThreshold        *float64 `json:"iou_threshold"`
	PoseEnabled         *bool    `json:"pose_enabled"`
	CooldownSeconds     *float64 `json:"alert_cooldown_seconds"`
}

// HealthReport состояние сервиса и зависимостей
type HealthReport struct {
	Status   string                 `json:"status"`
	Detector *models.HealthResponse `json:"detector,omitempty"`
	Database string                 `json:"database"`
	Advisor  string                 `json:"advisor"`
	Active   int                    `json:"active_sessions"`
}
