package models

// RiskLevel уровень риска
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ReportSummary сводка отчета
type ReportSummary struct {
	TotalFalls     int       `json:"total_falls"`
	RiskLevel      RiskLevel `json:"risk_level"`
	ProcessingTime float64   `json:"processing_time"`
	VideoDuration  float64   `json:"video_duration"`
	ErrorCount     int       `json:"error_count"`
	Terminated     bool      `json:"terminated_early"`
}

// FallTypeStats распределение по типам
type FallTypeStats struct {
	Sustained    int              `json:"sustained"`
	Sudden       int              `json:"sudden"`
	Distribution map[FallType]int `json:"distribution"`
}

// HourCount количество событий в часе
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// TimeAnalysis временное распределение событий
type TimeAnalysis struct {
	PeakHours            []int       `json:"peak_hours"`
	Distribution         []HourCount `json:"distribution"`
	TotalDurationMinutes float64     `json:"total_duration_minutes"`
	FirstEvent           float64     `json:"first_event"`
	LastEvent            float64     `json:"last_event"`
	TimeSpan             float64     `json:"time_span"`
}

// ConfidenceBucket интервал гистограммы уверенности
type ConfidenceBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// ConfidenceAnalysis статистика уверенности
type ConfidenceAnalysis struct {
	Average      float64            `json:"average"`
	Max          float64            `json:"max"`
	Min          float64            `json:"min"`
	Distribution []ConfidenceBucket `json:"distribution"`
}

// TimelinePoint точка графика временной шкалы
type TimelinePoint struct {
	Timestamp  float64  `json:"timestamp"`
	Frame      int      `json:"frame"`
	Confidence float64  `json:"confidence"`
	Type       FallType `json:"type"`
}

// TrendPoint точка тренда уверенности
type TrendPoint struct {
	X    int      `json:"x"`
	Y    float64  `json:"y"`
	Type FallType `json:"type"`
}

// HeatmapSegment сегмент тепловой карты риска
type HeatmapSegment struct {
	Segment   int     `json:"segment"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	RiskLevel int     `json:"risk_level"`
	Events    int     `json:"events"`
}

// ChartData данные для графиков
type ChartData struct {
	Timeline        []TimelinePoint  `json:"timeline"`
	ConfidenceTrend []TrendPoint     `json:"confidence_trend"`
	RiskHeatmap     []HeatmapSegment `json:"risk_heatmap"`
}

// TimelineEntry запись хронологии событий
type TimelineEntry struct {
	ID          int      `json:"id"`
	Time        string   `json:"time"`
	Timestamp   float64  `json:"timestamp"`
	Type        FallType `json:"type"`
	Confidence  float64  `json:"confidence"`
	Frame       int      `json:"frame"`
	Description string   `json:"description"`
}

// AnalysisReport итоговый отчет о рисках
type AnalysisReport struct {
	Summary            ReportSummary      `json:"summary"`
	FallTypes          FallTypeStats      `json:"fall_types"`
	TimeAnalysis       TimeAnalysis       `json:"time_analysis"`
	ConfidenceAnalysis ConfidenceAnalysis `json:"confidence_analysis"`
	ChartData          ChartData          `json:"chart_data"`
	Recommendations    []string           `json:"recommendations"`
	Timeline           []TimelineEntry    `json:"timeline"`
	Performance        PerformanceStats   `json:"performance_stats"`
}

// DetectionResult результат обработки видео
type DetectionResult struct {
	VideoInfo      VideoInfo        `json:"video_info"`
	FallEvents     []FallEvent      `json:"fall_events"`
	ProcessingTime float64          `json:"processing_time"`
	OutputPath     string           `json:"output_path,omitempty"`
	ErrorCount     int              `json:"error_count"`
	AlertsSent     int              `json:"alerts_triggered"`
	Performance    PerformanceStats `json:"performance_stats"`
	Terminated     bool             `json:"terminated_early"`
	CareAnalysis   string           `json:"care_analysis,omitempty"`
}

// HealthResponse представляет ответ проверки здоровья сервиса
type HealthResponse struct {
	Status      string `json:"status"`       // Статус сервиса (healthy/unhealthy)
	ModelLoaded bool   `json:"model_loaded"` // Загружена ли модель нейронной сети
	Version     string `json:"version"`      // Версия сервиса
}
