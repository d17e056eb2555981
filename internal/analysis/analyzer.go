package analysis

import (
	"fmt"
	"math"
	"sort"

	"fall-detector-go/pkg/models"
)

const (
	heatmapSegmentSeconds = 30
	heatmapMaxSegments    = 20
	confidenceBins        = 5
)

// riskBand границы уровня риска по числу падений
type riskBand struct {
	level    models.RiskLevel
	minFalls int
	maxFalls int
}

var riskBands = []riskBand{
	{level: models.RiskLow, minFalls: 0, maxFalls: 1},
	{level: models.RiskMedium, minFalls: 2, maxFalls: 4},
	{level: models.RiskHigh, minFalls: 5, maxFalls: math.MaxInt},
}

// Analyzer строит отчет о рисках по завершенному журналу событий
type Analyzer struct{}

// NewAnalyzer создает анализатор
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze строит отчет. Пустой журнал дает фиксированный отчет без статистики.
func (a *Analyzer) Analyze(result models.DetectionResult) models.AnalysisReport {
	events := result.FallEvents
	duration := result.VideoInfo.Duration

	if len(events) == 0 {
		report := a.noFallReport(duration)
		report.Summary.ErrorCount = result.ErrorCount
		report.Summary.Terminated = result.Terminated
		report.Performance = result.Performance
		return report
	}

	timestamps := make([]float64, len(events))
	confidences := make([]float64, len(events))
	for i, e := range events {
		timestamps[i] = e.Timestamp
		confidences[i] = e.Confidence
	}

	fallTypes := a.countTypes(events)
	risk := a.AssessRisk(len(events), confidences)

	return models.AnalysisReport{
		Summary: models.ReportSummary{
			TotalFalls:     len(events),
			RiskLevel:      risk,
			ProcessingTime: result.ProcessingTime,
			VideoDuration:  duration,
			ErrorCount:     result.ErrorCount,
			Terminated:     result.Terminated,
		},
		FallTypes:          fallTypes,
		TimeAnalysis:       a.analyzeTime(timestamps, duration),
		ConfidenceAnalysis: a.analyzeConfidence(confidences),
		ChartData:          a.chartData(events, duration),
		Recommendations:    a.recommendations(risk, fallTypes),
		Timeline:           a.timeline(events),
		Performance:        result.Performance,
	}
}

// AssessRisk уровень по числу падений с повышением по средней уверенности.
// Понижения нет: уровень только поднимается.
func (a *Analyzer) AssessRisk(totalFalls int, confidences []float64) models.RiskLevel {
	if totalFalls == 0 {
		return models.RiskLow
	}

	base := models.RiskHigh
	for _, band := range riskBands {
		if totalFalls >= band.minFalls && totalFalls <= band.maxFalls {
			base = band.level
			break
		}
	}

	if len(confidences) > 0 {
		avg := mean(confidences)
		if avg > 0.8 && base == models.RiskLow {
			return models.RiskMedium
		}
		if avg > 0.9 && base == models.RiskMedium {
			return models.RiskHigh
		}
	}
	return base
}

func (a *Analyzer) noFallReport(duration float64) models.AnalysisReport {
	return models.AnalysisReport{
		Summary: models.ReportSummary{
			TotalFalls:    0,
			RiskLevel:     models.RiskLow,
			VideoDuration: duration,
		},
		FallTypes: models.FallTypeStats{Distribution: map[models.FallType]int{}},
		TimeAnalysis: models.TimeAnalysis{
			PeakHours:    []int{},
			Distribution: []models.HourCount{},
		},
		ConfidenceAnalysis: models.ConfidenceAnalysis{Distribution: []models.ConfidenceBucket{}},
		ChartData: models.ChartData{
			Timeline:        []models.TimelinePoint{},
			ConfidenceTrend: []models.TrendPoint{},
			RiskHeatmap:     []models.HeatmapSegment{},
		},
		Recommendations: []string{
			"No fall events were detected in the video",
			"Activity appears normal",
			"Schedule regular checks to keep the home safe",
		},
		Timeline: []models.TimelineEntry{},
	}
}

func (a *Analyzer) countTypes(events []models.FallEvent) models.FallTypeStats {
	stats := models.FallTypeStats{Distribution: make(map[models.FallType]int)}
	for _, e := range events {
		stats.Distribution[e.Type]++
	}
	stats.Sustained = stats.Distribution[models.FallSustained]
	stats.Sudden = stats.Distribution[models.FallSudden]
	return stats
}

// analyzeTime распределение по часу суток от метки времени и три пиковых часа
func (a *Analyzer) analyzeTime(timestamps []float64, duration float64) models.TimeAnalysis {
	counts := make(map[int]int)
	var order []int
	first, last := timestamps[0], timestamps[0]
	for _, ts := range timestamps {
		hour := int(math.Mod(ts, 86400) / 3600)
		if _, ok := counts[hour]; !ok {
			order = append(order, hour)
		}
		counts[hour]++
		first = math.Min(first, ts)
		last = math.Max(last, ts)
	}

	// при равенстве выигрывает час, встреченный раньше
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	peaks := order
	if len(peaks) > 3 {
		peaks = peaks[:3]
	}

	distribution := make([]models.HourCount, 24)
	for h := range distribution {
		distribution[h] = models.HourCount{Hour: h, Count: counts[h]}
	}

	return models.TimeAnalysis{
		PeakHours:            peaks,
		Distribution:         distribution,
		TotalDurationMinutes: duration / 60,
		FirstEvent:           first,
		LastEvent:            last,
		TimeSpan:             last - first,
	}
}

// analyzeConfidence статистика и гистограмма из 5 интервалов на [0,1]; последний интервал закрыт справа
func (a *Analyzer) analyzeConfidence(confidences []float64) models.ConfidenceAnalysis {
	edges := make([]float64, confidenceBins+1)
	for i := range edges {
		edges[i] = float64(i) / confidenceBins
	}

	counts := make([]int, confidenceBins)
	lo, hi := confidences[0], confidences[0]
	for _, c := range confidences {
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
		for i := 0; i < confidenceBins; i++ {
			last := i == confidenceBins-1
			if c >= edges[i] && (c < edges[i+1] || (last && c == edges[i+1])) {
				counts[i]++
				break
			}
		}
	}

	buckets := make([]models.ConfidenceBucket, confidenceBins)
	for i := range buckets {
		buckets[i] = models.ConfidenceBucket{
			Range: fmt.Sprintf("%.1f-%.1f", edges[i], edges[i+1]),
			Count: counts[i],
		}
	}

	return models.ConfidenceAnalysis{
		Average:      mean(confidences),
		Max:          hi,
		Min:          lo,
		Distribution: buckets,
	}
}

func (a *Analyzer) chartData(events []models.FallEvent, duration float64) models.ChartData {
	data := models.ChartData{
		Timeline:        make([]models.TimelinePoint, len(events)),
		ConfidenceTrend: make([]models.TrendPoint, len(events)),
	}
	for i, e := range events {
		data.Timeline[i] = models.TimelinePoint{
			Timestamp:  e.Timestamp,
			Frame:      e.Frame,
			Confidence: e.Confidence,
			Type:       e.Type,
		}
		data.ConfidenceTrend[i] = models.TrendPoint{X: i + 1, Y: e.Confidence, Type: e.Type}
	}
	data.RiskHeatmap = a.Heatmap(events, duration)
	return data
}

// Heatmap делит видео на отрезки примерно по 30 с (от 1 до 20) и считает события в [start, end)
func (a *Analyzer) Heatmap(events []models.FallEvent, duration float64) []models.HeatmapSegment {
	if duration <= 0 {
		return []models.HeatmapSegment{}
	}
	count := int(math.Floor(duration / heatmapSegmentSeconds))
	count = max(1, min(heatmapMaxSegments, count))
	segDuration := duration / float64(count)

	segments := make([]models.HeatmapSegment, count)
	for i := range segments {
		start := float64(i) * segDuration
		end := float64(i+1) * segDuration
		n := 0
		for _, e := range events {
			if e.Timestamp >= start && e.Timestamp < end {
				n++
			}
		}
		segments[i] = models.HeatmapSegment{
			Segment:   i,
			StartTime: start,
			EndTime:   end,
			RiskLevel: n,
			Events:    n,
		}
	}
	return segments
}

func (a *Analyzer) recommendations(risk models.RiskLevel, types models.FallTypeStats) []string {
	var recs []string
	switch risk {
	case models.RiskLow:
		recs = append(recs,
			"Overall risk is low, the person appears to be doing well",
			"Keep up regular observation",
			"Consider adding basic home safety measures",
		)
	case models.RiskMedium:
		recs = append(recs,
			"Medium risk detected, attention is needed",
			"Family members or caregivers should check in regularly",
			"Consider consulting a healthcare professional",
			"Strengthen home safety measures",
		)
	default:
		recs = append(recs,
			"High risk detected, immediate attention is required",
			"Contact family members or emergency contacts now",
			"Seeking medical help is strongly recommended",
			"Consider arranging professional care staff",
			"Improve the safety of the living environment immediately",
		)
	}

	if types.Sudden > 0 {
		recs = append(recs, "Sudden falls detected, body coordination may need to be checked")
	}
	if types.Sustained > 0 {
		recs = append(recs, "Sustained falls detected, the ability to get up may need to be assessed")
	}
	return recs
}

func (a *Analyzer) timeline(events []models.FallEvent) []models.TimelineEntry {
	entries := make([]models.TimelineEntry, len(events))
	for i, e := range events {
		minutes := int(e.Timestamp / 60)
		seconds := int(math.Mod(e.Timestamp, 60))
		entries[i] = models.TimelineEntry{
			ID:          i + 1,
			Time:        fmt.Sprintf("%02d:%02d", minutes, seconds),
			Timestamp:   e.Timestamp,
			Type:        e.Type,
			Confidence:  e.Confidence,
			Frame:       e.Frame,
			Description: fmt.Sprintf("Fall event #%d (%s)", i+1, e.Type),
		}
	}
	return entries
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
