package models

import (
	"errors"
	"fmt"
)

// ErrInvalidDetection возвращается при разборе некорректного ответа детектора
var ErrInvalidDetection = errors.New("invalid detection")

// FallType тип события падения
type FallType string

const (
	FallSustained FallType = "sustained" // Устойчивое падение (голосование по окну)
	FallSudden    FallType = "sudden"    // Резкое падение (скачок центра вниз)
)

// Point целочисленная точка на кадре
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BBox ограничивающая рамка в пикселях
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Center возвращает центр рамки
func (b BBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Slice возвращает рамку в виде [x1, y1, x2, y2]
func (b BBox) Slice() []int {
	return []int{b.X1, b.Y1, b.X2, b.Y2}
}

// Detection одна детекция, прошедшая проверку
type Detection struct {
	BBox       BBox    `json:"bbox"`       // Рамка объекта
	ClassID    int     `json:"class_id"`   // Класс модели
	Confidence float64 `json:"confidence"` // Уверенность 0..1
}

// NewDetection проверяет сырые поля детектора и собирает Detection
func NewDetection(xyxy []float64, classID int, confidence float64) (Detection, error) {
	if len(xyxy) < 4 {
		return Detection{}, fmt.Errorf("%w: bbox has %d coordinates", ErrInvalidDetection, len(xyxy))
	}
	box := BBox{X1: int(xyxy[0]), Y1: int(xyxy[1]), X2: int(xyxy[2]), Y2: int(xyxy[3])}
	d := Detection{BBox: box, ClassID: classID, Confidence: confidence}
	if err := d.Validate(); err != nil {
		return Detection{}, err
	}
	return d, nil
}

// Validate проверяет координаты и уверенность
func (d Detection) Validate() error {
	b := d.BBox
	if b.X1 < 0 || b.Y1 < 0 {
		return fmt.Errorf("%w: negative origin (%d,%d)", ErrInvalidDetection, b.X1, b.Y1)
	}
	if b.X1 >= b.X2 || b.Y1 >= b.Y2 {
		return fmt.Errorf("%w: degenerate bbox %v", ErrInvalidDetection, b.Slice())
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f out of [0,1]", ErrInvalidDetection, d.Confidence)
	}
	return nil
}

// Keypoint ключевая точка позы
type Keypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pose набор ключевых точек одного человека
type Pose struct {
	Keypoints []Keypoint `json:"keypoints"`
}

// FallInfo кандидат падения для текущего кадра
type FallInfo struct {
	Type       FallType `json:"type"`
	Confidence float64  `json:"confidence"`
	BBox       BBox     `json:"bbox"`
	Center     Point    `json:"center"`
	Velocity   float64  `json:"velocity,omitempty"`
}

// FallEvent запись журнала событий
type FallEvent struct {
	Frame      int      `json:"frame"`      // Номер кадра (с 1)
	Timestamp  float64  `json:"timestamp"`  // Секунды от начала видео
	Type       FallType `json:"type"`       // sustained / sudden
	Confidence float64  `json:"confidence"` // Уверенность
	BBox       BBox     `json:"bbox"`       // Рамка
	Center     Point    `json:"center"`     // Центр рамки
}

// VideoInfo метаданные видео
type VideoInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	TotalFrames int     `json:"total_frames"`
	Duration    float64 `json:"duration"` // Секунды
}

// PerformanceStats счетчики производительности сессии
type PerformanceStats struct {
	FramesProcessed  int     `json:"frames_processed"`   // Кадры с реальной детекцией
	FramesSkipped    int     `json:"frames_skipped"`     // Кадры с кешированным результатом
	DetectionTime    float64 `json:"detection_time"`     // Суммарное время детекции, сек
	ErrorCount       int     `json:"error_count"`        // Ошибки детектора и чтения
	WriteErrors      int     `json:"write_errors"`       // Ошибки разметки и записи кадров
	AvgDetectionTime float64 `json:"avg_detection_time"` // Среднее время детекции, сек
	SpeedImprovement float64 `json:"speed_improvement"`  // Во сколько раз меньше вызовов детектора
}

// Finalize пересчитывает производные показатели
func (p *PerformanceStats) Finalize() {
	evaluated := p.FramesProcessed
	if evaluated < 1 {
		evaluated = 1
	}
	p.AvgDetectionTime = p.DetectionTime / float64(evaluated)
	p.SpeedImprovement = float64(p.FramesProcessed+p.FramesSkipped) / float64(evaluated)
}

// AlertPayload структурированное событие для генерации рекомендаций
type AlertPayload struct {
	SessionID  string   `json:"session_id"`
	Frame      int      `json:"frame"`
	Timestamp  float64  `json:"timestamp"`
	Type       FallType `json:"fall_type"`
	Confidence float64  `json:"confidence,omitempty"`
	Velocity   float64  `json:"velocity,omitempty"`
	Center     *Point   `json:"center,omitempty"`
	BBox       *BBox    `json:"bbox,omitempty"`
}

// Advisory текст рекомендации, полученный асинхронно
type Advisory struct {
	SessionID string       `json:"session_id"`
	Sequence  uint64       `json:"sequence"`
	Payload   AlertPayload `json:"payload"`
	Text      string       `json:"text,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt int64        `json:"created_at"`
}
