package model

import (
	"time"

	"gorm.io/gorm"
)

// Session представляет сессию обработки видео в базе данных
type Session struct {
	ID            string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Status        string `gorm:"type:varchar(20);not null;index" json:"status"`
	VideoFilename string `gorm:"type:varchar(255)" json:"video_filename"`
	VideoPath     string `gorm:"type:varchar(500)" json:"video_path"`
	OutputPath    string `gorm:"type:varchar(500)" json:"output_path"`

	// Видео
	Width       int     `gorm:"not null;default:0" json:"width"`
	Height      int     `gorm:"not null;default:0" json:"height"`
	FPS         float64 `gorm:"not null;default:0" json:"fps"`
	TotalFrames int     `gorm:"not null;default:0" json:"total_frames"`
	Duration    float64 `gorm:"not null;default:0" json:"duration"`

	// Итоги обработки
	TotalFalls      int     `gorm:"not null;default:0" json:"total_falls"`
	AlertsTriggered int     `gorm:"not null;default:0" json:"alerts_triggered"`
	ErrorCount      int     `gorm:"not null;default:0" json:"error_count"`
	RiskLevel       string  `gorm:"type:varchar(10)" json:"risk_level"`
	ProcessingTime  float64 `gorm:"not null;default:0" json:"processing_time"`
	Terminated      bool    `gorm:"not null;default:false" json:"terminated_early"`
	CareAnalysis    string  `gorm:"type:text" json:"care_analysis"`
	ErrorMessage    string  `gorm:"type:text" json:"error_message,omitempty"`

	// Производительность
	FramesProcessed int     `gorm:"not null;default:0" json:"frames_processed"`
	FramesSkipped   int     `gorm:"not null;default:0" json:"frames_skipped"`
	DetectionTime   float64 `gorm:"not null;default:0" json:"detection_time"`
	WriteErrors     int     `gorm:"not null;default:0" json:"write_errors"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Events []FallEventRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"events"`
}

// FallEventRecord событие падения в базе данных
type FallEventRecord struct {
	ID         uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  string  `gorm:"type:varchar(36);not null;index" json:"session_id"`
	Frame      int     `gorm:"not null" json:"frame"`
	Timestamp  float64 `gorm:"not null" json:"timestamp"`
	Type       string  `gorm:"type:varchar(20);not null" json:"type"`
	Confidence float64 `gorm:"not null" json:"confidence"`
	X1         int     `gorm:"not null" json:"x1"`
	Y1         int     `gorm:"not null" json:"y1"`
	X2         int     `gorm:"not null" json:"x2"`
	Y2         int     `gorm:"not null" json:"y2"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName указывает имя таблицы для Session
func (Session) TableName() string {
	return "sessions"
}

// TableName указывает имя таблицы для FallEventRecord
func (FallEventRecord) TableName() string {
	return "fall_events"
}
