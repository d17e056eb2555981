package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fall-detector-go/pkg/models"
)

// DetectorHealth проверка состояния сервиса модели
type DetectorHealth interface {
	CheckHealth(ctx context.Context) (*models.HealthResponse, error)
}

// HealthService собирает состояние сервиса и его зависимостей
type HealthService struct {
	detector DetectorHealth
	dbCheck  func() error // nil - база данных отключена
	sessions *SessionService
	llm      bool
	logger   *logrus.Logger
}

// NewHealthService создает сервис проверки состояния
func NewHealthService(detector DetectorHealth, dbCheck func() error, sessions *SessionService, llm bool, logger *logrus.Logger) *HealthService {
	return &HealthService{
		detector: detector,
		dbCheck:  dbCheck,
		sessions: sessions,
		llm:      llm,
		logger:   logger,
	}
}

// CheckHealth недоступный детектор делает сервис unhealthy, база данных - degraded
func (s *HealthService) CheckHealth(ctx context.Context) *HealthReport {
	s.logger.Debug("Проверяем состояние сервиса")

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	report := &HealthReport{Status: "healthy", Database: "disabled", Advisor: "template"}
	if s.llm {
		report.Advisor = "llm"
	}
	if s.sessions != nil {
		report.Active = s.sessions.ActiveCount()
	}

	detectorHealth, err := s.detector.CheckHealth(ctx)
	if err != nil {
		s.logger.Errorf("Сервис модели недоступен: %v", err)
		report.Status = "unhealthy"
		report.Detector = &models.HealthResponse{Status: "unhealthy"}
	} else {
		report.Detector = detectorHealth
		if !detectorHealth.ModelLoaded {
			report.Status = "unhealthy"
		}
	}

	if s.dbCheck != nil {
		if err := s.dbCheck(); err != nil {
			s.logger.Warnf("База данных недоступна: %v", err)
			report.Database = "unavailable"
			if report.Status == "healthy" {
				report.Status = "degraded"
			}
		} else {
			report.Database = "ok"
		}
	}

	return report
}
