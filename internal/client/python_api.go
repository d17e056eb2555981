package client

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"fall-detector-go/internal/video"
	"fall-detector-go/pkg/models"
)

// PythonAPIClient клиент HTTP сервиса модели детекции
type PythonAPIClient struct {
	httpClient *resty.Client
	logger     *logrus.Logger
}

// NewPythonAPIClient создает клиент; timeout 0 - без ограничения времени запроса
func NewPythonAPIClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *PythonAPIClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &PythonAPIClient{
		httpClient: client,
		logger:     logger,
	}
}

// DetectFalls отправляет кадр на /detect
func (c *PythonAPIClient) DetectFalls(ctx context.Context, frame *video.Frame, confidence, iou float64) ([]models.Detection, error) {
	data, err := encodeFrame(frame)
	if err != nil {
		return nil, err
	}

	var result DetectResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFileReader("frame", fmt.Sprintf("frame_%06d.jpg", frame.Index), bytes.NewReader(data)).
		SetFormData(map[string]string{
			"confidence": strconv.FormatFloat(confidence, 'f', 3, 64),
			"iou":        strconv.FormatFloat(iou, 'f', 3, 64),
		}).
		SetResult(&result).
		Post("/detect")
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки HTTP запроса: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Python API вернул ошибку: статус %d, тело: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Debugf("Кадр %d: получено детекций %d", frame.Index, len(result.Detections))
	return toDetections(result.Detections)
}

// DetectPose отправляет кадр на /pose
func (c *PythonAPIClient) DetectPose(ctx context.Context, frame *video.Frame, confidence float64) ([]models.Pose, error) {
	data, err := encodeFrame(frame)
	if err != nil {
		return nil, err
	}

	var result PoseResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFileReader("frame", fmt.Sprintf("frame_%06d.jpg", frame.Index), bytes.NewReader(data)).
		SetFormData(map[string]string{
			"confidence": strconv.FormatFloat(confidence, 'f', 3, 64),
		}).
		SetResult(&result).
		Post("/pose")
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки HTTP запроса: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Python API вернул ошибку: статус %d, тело: %s", resp.StatusCode(), resp.String())
	}
	return toPoses(result.Poses), nil
}

// CheckHealth проверяет состояние сервиса модели
func (c *PythonAPIClient) CheckHealth(ctx context.Context) (*models.HealthResponse, error) {
	c.logger.Debug("Проверка здоровья Python API")

	var health models.HealthResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&health).
		Get("/health")
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки HTTP запроса: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("Python API вернул ошибку: статус %d, тело: %s", resp.StatusCode(), resp.String())
	}
	return &health, nil
}

// Close ничего не держит открытым
func (c *PythonAPIClient) Close() error { return nil }
