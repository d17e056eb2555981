package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"fall-detector-go/internal/video"
	"fall-detector-go/pkg/models"
)

// Методы сервиса модели. Сообщения - google.protobuf.Struct с теми же полями, что и JSON API.
const (
	methodDetectFalls = "/falldetector.Detector/DetectFalls"
	methodDetectPose  = "/falldetector.Detector/DetectPose"
	methodHealth      = "/falldetector.Detector/Health"
)

// GRPCClient клиент gRPC сервиса модели
type GRPCClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  *logrus.Logger
}

// NewGRPCClient подключается к сервису модели; extra позволяет подменить транспорт в тестах
func NewGRPCClient(addr string, timeout time.Duration, logger *logrus.Logger, extra ...grpc.DialOption) (*GRPCClient, error) {
	logger.Infof("Подключение к gRPC сервису модели %s", addr)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(50*1024*1024),
			grpc.MaxCallSendMsgSize(50*1024*1024),
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to gRPC detector at %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn, timeout: timeout, logger: logger}, nil
}

func (c *GRPCClient) DetectFalls(ctx context.Context, frame *video.Frame, confidence, iou float64) ([]models.Detection, error) {
	req, err := c.frameRequest(frame, map[string]interface{}{
		"confidence": confidence,
		"iou":        iou,
	})
	if err != nil {
		return nil, err
	}

	var result DetectResponse
	if err := c.call(ctx, methodDetectFalls, req, &result); err != nil {
		return nil, err
	}
	return toDetections(result.Detections)
}

func (c *GRPCClient) DetectPose(ctx context.Context, frame *video.Frame, confidence float64) ([]models.Pose, error) {
	req, err := c.frameRequest(frame, map[string]interface{}{"confidence": confidence})
	if err != nil {
		return nil, err
	}

	var result PoseResponse
	if err := c.call(ctx, methodDetectPose, req, &result); err != nil {
		return nil, err
	}
	return toPoses(result.Poses), nil
}

func (c *GRPCClient) CheckHealth(ctx context.Context) (*models.HealthResponse, error) {
	var health models.HealthResponse
	if err := c.call(ctx, methodHealth, &structpb.Struct{}, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (c *GRPCClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// frameRequest кадр передается как base64 JPEG в поле "frame"
func (c *GRPCClient) frameRequest(frame *video.Frame, fields map[string]interface{}) (*structpb.Struct, error) {
	data, err := encodeFrame(frame)
	if err != nil {
		return nil, err
	}
	fields["frame"] = base64.StdEncoding.EncodeToString(data)
	fields["index"] = frame.Index
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return req, nil
}

func (c *GRPCClient) call(ctx context.Context, method string, req *structpb.Struct, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return fmt.Errorf("gRPC %s failed: %w", method, err)
	}

	// Struct -> JSON -> структура ответа, чтобы разбор совпадал с HTTP
	data, err := json.Marshal(resp.AsMap())
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
