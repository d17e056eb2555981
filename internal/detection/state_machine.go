package detection

import (
	"math"

	"fall-detector-go/internal/config"
	"fall-detector-go/pkg/models"
)

// Уверенность и полуразмер рамки для синтезированного резкого падения
const (
	suddenConfidence = 0.8
	suddenHalfSize   = 50
)

// FrameResult классификация одного оцененного кадра
type FrameResult struct {
	FallDetected   bool             `json:"fall_detected"`
	PersistentFall bool             `json:"persistent_fall"`
	SuddenFall     bool             `json:"sudden_fall"`
	Votes          int              `json:"votes"`
	Info           *models.FallInfo `json:"info,omitempty"`
}

// StateMachine классификатор падений по окну голосования и движению центров.
// Состояние живет одну сессию, не потокобезопасен.
type StateMachine struct {
	params      config.DetectionParams
	fallClasses map[int]struct{}
	window      *VoteWindow
	prevCenters []models.Point
}

// NewStateMachine создает автомат с заданными параметрами
func NewStateMachine(params config.DetectionParams) *StateMachine {
	params = params.Normalize()
	classes := make(map[int]struct{}, len(params.FallClasses))
	for _, c := range params.FallClasses {
		classes[c] = struct{}{}
	}
	return &StateMachine{
		params:      params,
		fallClasses: classes,
		window:      NewVoteWindow(params.WindowSize),
	}
}

// IsFallClass проверяет, является ли класс классом падения
func (m *StateMachine) IsFallClass(classID int) bool {
	_, ok := m.fallClasses[classID]
	return ok
}

// Step обрабатывает детекции одного оцененного кадра
func (m *StateMachine) Step(detections []models.Detection) FrameResult {
	var (
		candidate *models.FallInfo
		centers   = make([]models.Point, 0, len(detections))
		anyFall   bool
	)

	// 1. Классификация
	for _, d := range detections {
		center := d.BBox.Center()
		centers = append(centers, center)
		if !m.IsFallClass(d.ClassID) {
			continue
		}
		anyFall = true
		if candidate == nil || d.Confidence > candidate.Confidence {
			candidate = &models.FallInfo{
				Type:       models.FallSustained,
				Confidence: d.Confidence,
				BBox:       d.BBox,
				Center:     center,
			}
		}
	}

	// 2. Голосование
	m.window.Push(anyFall)
	persistent := m.window.Count() >= m.params.VoteThreshold

	// 3. Движение: пары по индексу, не по идентичности
	sudden := false
	n := min(len(centers), len(m.prevCenters))
	for i := 0; i < n; i++ {
		now, prev := centers[i], m.prevCenters[i]
		velocity := Velocity(now, prev)
		deltaY := float64(now.Y - prev.Y)
		if velocity > m.params.VelocityThreshold && deltaY > m.params.DownwardThreshold {
			sudden = true
			if candidate == nil {
				candidate = &models.FallInfo{
					Confidence: suddenConfidence,
					BBox: models.BBox{
						X1: now.X - suddenHalfSize, Y1: now.Y - suddenHalfSize,
						X2: now.X + suddenHalfSize, Y2: now.Y + suddenHalfSize,
					},
					Center: now,
				}
			}
			candidate.Type = models.FallSudden
			candidate.Velocity = velocity
			break
		}
	}

	// 4. Объединение, 5. перенос центров
	m.prevCenters = centers

	return FrameResult{
		FallDetected:   persistent || sudden,
		PersistentFall: persistent,
		SuddenFall:     sudden,
		Votes:          m.window.Count(),
		Info:           candidate,
	}
}

// Reset сбрасывает окно и историю центров
func (m *StateMachine) Reset() {
	m.window.Reset()
	m.prevCenters = nil
}

// Velocity евклидово расстояние между центрами соседних оцененных кадров
func Velocity(now, prev models.Point) float64 {
	dx := float64(now.X - prev.X)
	dy := float64(now.Y - prev.Y)
	return math.Hypot(dx, dy)
}
