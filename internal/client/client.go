package client

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fall-detector-go/internal/config"
	"fall-detector-go/internal/detection"
	"fall-detector-go/pkg/models"
)

// DetectorClient детектор с проверкой состояния и освобождением ресурсов
type DetectorClient interface {
	detection.Detector
	CheckHealth(ctx context.Context) (*models.HealthResponse, error)
	Close() error
}

// New выбирает транспорт по DETECTOR_TRANSPORT
func New(cfg *config.Config, logger *logrus.Logger) (DetectorClient, error) {
	timeout := time.Duration(cfg.Detector.Timeout) * time.Second

	switch cfg.Detector.Transport {
	case "", "http":
		logger.Infof("Детектор: HTTP %s", cfg.Detector.BaseURL)
		return NewPythonAPIClient(cfg.Detector.BaseURL, timeout, logger), nil
	case "grpc":
		return NewGRPCClient(cfg.Detector.GRPCAddr, timeout, logger)
	default:
		return nil, fmt.Errorf("unknown detector transport %q", cfg.Detector.Transport)
	}
}
