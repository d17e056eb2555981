package client

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"fall-detector-go/internal/video"
	"fall-detector-go/pkg/models"
)

const jpegQuality = 90

// rawDetection детекция в формате ответа сервиса модели
type rawDetection struct {
	BBox       []float64 `json:"bbox"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
}

// rawPose ключевые точки в формате [[x, y], ...]
type rawPose struct {
	Keypoints [][]float64 `json:"keypoints"`
}

// DetectResponse ответ /detect
type DetectResponse struct {
	Detections []rawDetection `json:"detections"`
}

// PoseResponse ответ /pose
type PoseResponse struct {
	Poses []rawPose `json:"poses"`
}

// encodeFrame кадр в JPEG для передачи сервису модели
func encodeFrame(frame *video.Frame) ([]byte, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("frame has no pixel buffer")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame %d: %w", frame.Index, err)
	}
	return buf.Bytes(), nil
}

// toDetections проверяет каждую детекцию; одна некорректная делает ответ ошибочным
func toDetections(raw []rawDetection) ([]models.Detection, error) {
	out := make([]models.Detection, 0, len(raw))
	for i, r := range raw {
		d, err := models.NewDetection(r.BBox, r.ClassID, r.Confidence)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func toPoses(raw []rawPose) []models.Pose {
	out := make([]models.Pose, 0, len(raw))
	for _, r := range raw {
		pose := models.Pose{Keypoints: make([]models.Keypoint, 0, len(r.Keypoints))}
		for _, kp := range r.Keypoints {
			if len(kp) < 2 {
				continue
			}
			pose.Keypoints = append(pose.Keypoints, models.Keypoint{X: kp[0], Y: kp[1]})
		}
		out = append(out, pose)
	}
	return out
}
