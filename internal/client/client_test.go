package client

import (
	"context"
	"encoding/json"
	"image"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"fall-detector-go/internal/config"
	"fall-detector-go/internal/video"
	"fall-detector-go/pkg/models"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testFrame() *video.Frame {
	return &video.Frame{Index: 7, Timestamp: 0.23, Width: 64, Height: 48, Image: image.NewRGBA(image.Rect(0, 0, 64, 48))}
}

func TestPythonAPIClient_DetectFalls(t *testing.T) {
	var gotConfidence, gotIOU string
	var gotFrame int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/detect", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotConfidence = r.FormValue("confidence")
		gotIOU = r.FormValue("iou")
		f, hdr, err := r.FormFile("frame")
		require.NoError(t, err)
		defer f.Close()
		gotFrame = hdr.Size

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"detections": []map[string]interface{}{
				{"bbox": []float64{10.4, 20.6, 110, 220}, "class_id": 0, "confidence": 0.82},
			},
		})
	}))
	defer srv.Close()

	c := NewPythonAPIClient(srv.URL, time.Second, quietLogger())
	dets, err := c.DetectFalls(context.Background(), testFrame(), 0.5, 0.4)
	require.NoError(t, err)
	require.Len(t, dets, 1)

	assert.Equal(t, models.BBox{X1: 10, Y1: 20, X2: 110, Y2: 220}, dets[0].BBox)
	assert.Equal(t, 0, dets[0].ClassID)
	assert.InDelta(t, 0.82, dets[0].Confidence, 1e-9)
	assert.Equal(t, "0.500", gotConfidence)
	assert.Equal(t, "0.400", gotIOU)
	assert.Positive(t, gotFrame)
}

func TestPythonAPIClient_InvalidDetectionFailsFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detections":[{"bbox":[1,2,3],"class_id":0,"confidence":0.9}]}`))
	}))
	defer srv.Close()

	c := NewPythonAPIClient(srv.URL, time.Second, quietLogger())
	_, err := c.DetectFalls(context.Background(), testFrame(), 0.5, 0.4)
	assert.Error(t, err)
}

func TestPythonAPIClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewPythonAPIClient(srv.URL, time.Second, quietLogger())
	_, err := c.DetectFalls(context.Background(), testFrame(), 0.5, 0.4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestPythonAPIClient_PoseAndHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pose", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"poses":[{"keypoints":[[1,2],[0,0],[5]]}]}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy","model_loaded":true,"version":"1.2.0"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewPythonAPIClient(srv.URL, 0, quietLogger())
	poses, err := c.DetectPose(context.Background(), testFrame(), 0.25)
	require.NoError(t, err)
	require.Len(t, poses, 1)
	assert.Equal(t, []models.Keypoint{{X: 1, Y: 2}, {X: 0, Y: 0}}, poses[0].Keypoints)

	health, err := c.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.ModelLoaded)
}

func TestEncodeFrame_NoImage(t *testing.T) {
	_, err := encodeFrame(&video.Frame{Index: 1})
	assert.Error(t, err)
}

// structHandler унарный обработчик без сгенерированного кода
func structHandler(fn func(*structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}
		return fn(in)
	}
}

func startDetectorServer(t *testing.T) *bufconn.Listener {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()

	desc := &grpc.ServiceDesc{
		ServiceName: "falldetector.Detector",
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "DetectFalls", Handler: structHandler(func(in *structpb.Struct) (*structpb.Struct, error) {
				if in.Fields["frame"].GetStringValue() == "" {
					return structpb.NewStruct(map[string]interface{}{"detections": []interface{}{}})
				}
				return structpb.NewStruct(map[string]interface{}{
					"detections": []interface{}{
						map[string]interface{}{
							"bbox":       []interface{}{50.0, 60.0, 150.0, 260.0},
							"class_id":   1.0,
							"confidence": in.Fields["confidence"].GetNumberValue() + 0.3,
						},
					},
				})
			})},
			{MethodName: "DetectPose", Handler: structHandler(func(*structpb.Struct) (*structpb.Struct, error) {
				return structpb.NewStruct(map[string]interface{}{
					"poses": []interface{}{
						map[string]interface{}{"keypoints": []interface{}{[]interface{}{3.0, 4.0}}},
					},
				})
			})},
			{MethodName: "Health", Handler: structHandler(func(*structpb.Struct) (*structpb.Struct, error) {
				return structpb.NewStruct(map[string]interface{}{"status": "healthy", "model_loaded": true})
			})},
		},
	}
	srv.RegisterService(desc, struct{}{})

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis
}

func TestGRPCClient_RoundTrip(t *testing.T) {
	lis := startDetectorServer(t)

	c, err := NewGRPCClient("passthrough:///bufnet", time.Second, quietLogger(),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	defer c.Close()

	dets, err := c.DetectFalls(context.Background(), testFrame(), 0.5, 0.4)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 1, dets[0].ClassID)
	assert.Equal(t, models.BBox{X1: 50, Y1: 60, X2: 150, Y2: 260}, dets[0].BBox)
	assert.InDelta(t, 0.8, dets[0].Confidence, 1e-9)

	poses, err := c.DetectPose(context.Background(), testFrame(), 0.25)
	require.NoError(t, err)
	require.Len(t, poses, 1)
	assert.Equal(t, models.Keypoint{X: 3, Y: 4}, poses[0].Keypoints[0])

	health, err := c.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.ModelLoaded)
}

func TestNew_Transport(t *testing.T) {
	cfg := &config.Config{}
	cfg.Detector.BaseURL = "http://localhost:8000"

	c, err := New(cfg, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &PythonAPIClient{}, c)

	cfg.Detector.Transport = "grpc"
	cfg.Detector.GRPCAddr = "localhost:50051"
	c, err = New(cfg, quietLogger())
	require.NoError(t, err)
	assert.IsType(t, &GRPCClient{}, c)
	assert.NoError(t, c.Close())

	cfg.Detector.Transport = "carrier-pigeon"
	_, err = New(cfg, quietLogger())
	assert.Error(t, err)
}
