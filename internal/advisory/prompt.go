package advisory

import (
	"encoding/json"
	"fmt"
	"strings"

	"fall-detector-go/pkg/models"
)

// maxSampleEvents ограничение числа событий в запросе к модели
const maxSampleEvents = 10

const systemPrompt = "You are an elderly care expert. Answer in English, kindly and concretely."

// Summary сводка по событиям сессии для запроса к модели
type Summary struct {
	TotalFalls    int               `json:"total_falls"`
	SampleEvents  int               `json:"sample_events"`
	FallTypes     []models.FallType `json:"fall_types"`
	MaxConfidence float64           `json:"max_confidence"`
	MinConfidence float64           `json:"min_confidence"`
	AvgConfidence float64           `json:"avg_confidence"`
	FirstEvent    float64           `json:"first_event"`
	LastEvent     float64           `json:"last_event"`
	TimeSpan      float64           `json:"time_span"`
}

// Summarize считает сводку по первым maxSampleEvents событиям
func Summarize(events []models.FallEvent) Summary {
	s := Summary{TotalFalls: len(events)}
	if len(events) == 0 {
		return s
	}
	sample := events
	if len(sample) > maxSampleEvents {
		sample = sample[:maxSampleEvents]
	}
	s.SampleEvents = len(sample)

	seen := make(map[models.FallType]bool)
	var sum float64
	s.MinConfidence = sample[0].Confidence
	s.FirstEvent = sample[0].Timestamp
	for _, e := range sample {
		if !seen[e.Type] {
			seen[e.Type] = true
			s.FallTypes = append(s.FallTypes, e.Type)
		}
		sum += e.Confidence
		s.MaxConfidence = max(s.MaxConfidence, e.Confidence)
		s.MinConfidence = min(s.MinConfidence, e.Confidence)
		s.FirstEvent = min(s.FirstEvent, e.Timestamp)
		s.LastEvent = max(s.LastEvent, e.Timestamp)
	}
	s.AvgConfidence = sum / float64(len(sample))
	s.TimeSpan = s.LastEvent - s.FirstEvent
	return s
}

func (s Summary) hasType(t models.FallType) bool {
	for _, ft := range s.FallTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// EventPrompt запрос по одному событию
func EventPrompt(payload models.AlertPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal alert payload: %w", err)
	}
	return fmt.Sprintf("Based on the following fall event data, generate a concise care suggestion or an alert message.\nEvent data: %s", data), nil
}

// SessionPrompt запрос по итогам сессии
func SessionPrompt(s Summary) string {
	types := make([]string, 0, len(s.FallTypes))
	for _, t := range s.FallTypes {
		types = append(types, string(t))
	}

	var b strings.Builder
	b.WriteString("Based on the following fall detection data, provide professional care advice.\n\n")
	b.WriteString("Detection summary:\n")
	fmt.Fprintf(&b, "- Total falls: %d\n", s.TotalFalls)
	fmt.Fprintf(&b, "- Fall types: %s\n", strings.Join(types, ", "))
	fmt.Fprintf(&b, "- Confidence: max %.2f, min %.2f, avg %.2f\n", s.MaxConfidence, s.MinConfidence, s.AvgConfidence)
	fmt.Fprintf(&b, "- Time span: %.1f seconds\n\n", s.TimeSpan)
	b.WriteString("Cover the following aspects:\n")
	b.WriteString("1. Risk assessment (low/medium/high) based on the number and type of falls\n")
	b.WriteString("2. Immediate measures\n")
	b.WriteString("3. Prevention advice\n")
	b.WriteString("4. Home environment improvements\n")
	b.WriteString("5. Whether professional medical help is needed\n\n")
	b.WriteString("Use short, specific sentences for each aspect.")
	return b.String()
}

// EventFallback шаблонная рекомендация по событию
func EventFallback(p models.AlertPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fall detected at %.1fs (frame %d, %s).\n", p.Timestamp, p.Frame, p.Type)
	if p.Type == models.FallSudden {
		b.WriteString("A sudden fall may indicate loss of balance. Check on the person immediately and look for head injury.\n")
	} else {
		b.WriteString("The person appears to be on the ground. Check whether they can get up and call for help if not.\n")
	}
	b.WriteString("Do not move the person if they report pain in the neck, back or hip.")
	return b.String()
}

// SessionFallback шаблонный разбор сессии
func SessionFallback(s Summary) string {
	if s.TotalFalls == 0 {
		return `Risk assessment: low.
No fall events were detected.

Prevention:
- Keep up regular exercise to maintain balance
- Review home safety periodically
- Keep rooms well lit

Environment:
- Remove floor obstacles and loose rugs
- Install grab bars and non-slip mats
- Keep walkways clear`
	}

	risk := "medium"
	immediate := "Increase supervision and assess the cause of the falls."
	if s.TotalFalls > 2 {
		risk = "high"
		immediate = "Seek medical help now and arrange professional care."
	}

	var typeAdvice string
	if s.hasType(models.FallSudden) {
		typeAdvice += "\n- Sudden falls may be related to balance or coordination problems"
	}
	if s.hasType(models.FallSustained) {
		typeAdvice += "\n- Sustained falls may point to difficulty getting up"
	}

	return fmt.Sprintf(`Risk assessment: %s.
%d fall events were detected and need attention.

Immediate measures:
%s

Prevention:
- Strength and balance training
- Regular health check-ups
- Consider walking aids (cane, walker)%s

Environment:
- Check and improve the living space now
- Add lighting and remove obstacles
- Consider installing an emergency call device

Medical advice:
- Consult a doctor for a full assessment
- Physical therapy or rehabilitation may be needed`, risk, s.TotalFalls, immediate, typeAdvice)
}
