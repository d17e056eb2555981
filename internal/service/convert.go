package service

import (
	"fall-detector-go/internal/model"
	"fall-detector-go/pkg/models"
)

// sessionToModel преобразует завершенную сессию в модель базы данных.
// Вызывается под блокировкой чтения сессии.
func sessionToModel(ls *liveSession) *model.Session {
	record := &model.Session{
		ID:            ls.id,
		Status:        string(ls.status),
		VideoFilename: ls.filename,
		VideoPath:     ls.videoPath,
		OutputPath:    ls.outputPath,
		ErrorMessage:  ls.errMsg,
		CreatedAt:     ls.createdAt,
	}
	if ls.report != nil {
		record.RiskLevel = string(ls.report.Summary.RiskLevel)
	}

	r := ls.result
	if r == nil {
		return record
	}

	record.Width = r.VideoInfo.Width
	record.Height = r.VideoInfo.Height
	record.FPS = r.VideoInfo.FPS
	record.TotalFrames = r.VideoInfo.TotalFrames
	record.Duration = r.VideoInfo.Duration
	record.TotalFalls = len(r.FallEvents)
	record.AlertsTriggered = r.AlertsSent
	record.ErrorCount = r.ErrorCount
	record.ProcessingTime = r.ProcessingTime
	record.Terminated = r.Terminated
	record.CareAnalysis = r.CareAnalysis
	record.FramesProcessed = r.Performance.FramesProcessed
	record.FramesSkipped = r.Performance.FramesSkipped
	record.DetectionTime = r.Performance.DetectionTime
	record.WriteErrors = r.Performance.WriteErrors

	for _, e := range r.FallEvents {
		record.Events = append(record.Events, model.FallEventRecord{
			SessionID:  ls.id,
			Frame:      e.Frame,
			Timestamp:  e.Timestamp,
			Type:       string(e.Type),
			Confidence: e.Confidence,
			X1:         e.BBox.X1,
			Y1:         e.BBox.Y1,
			X2:         e.BBox.X2,
			Y2:         e.BBox.Y2,
		})
	}
	return record
}

// modelToResult восстанавливает результат обработки из архива
func modelToResult(record *model.Session) models.DetectionResult {
	result := models.DetectionResult{
		VideoInfo: models.VideoInfo{
			Width:       record.Width,
			Height:      record.Height,
			FPS:         record.FPS,
			TotalFrames: record.TotalFrames,
			Duration:    record.Duration,
		},
		FallEvents:     make([]models.FallEvent, 0, len(record.Events)),
		ProcessingTime: record.ProcessingTime,
		OutputPath:     record.OutputPath,
		ErrorCount:     record.ErrorCount,
		AlertsSent:     record.AlertsTriggered,
		Terminated:     record.Terminated,
		CareAnalysis:   record.CareAnalysis,
	}
	result.Performance = models.PerformanceStats{
		FramesProcessed: record.FramesProcessed,
		FramesSkipped:   record.FramesSkipped,
		DetectionTime:   record.DetectionTime,
		ErrorCount:      record.ErrorCount,
		WriteErrors:     record.WriteErrors,
	}
	result.Performance.Finalize()

	for _, e := range record.Events {
		box := models.BBox{X1: e.X1, Y1: e.Y1, X2: e.X2, Y2: e.Y2}
		result.FallEvents = append(result.FallEvents, models.FallEvent{
			Frame:      e.Frame,
			Timestamp:  e.Timestamp,
			Type:       models.FallType(e.Type),
			Confidence: e.Confidence,
			BBox:       box,
			Center:     box.Center(),
		})
	}
	return result
}

// modelToInfo преобразует модель базы данных в ответ API
func modelToInfo(record *model.Session) *SessionInfo {
	finished := record.UpdatedAt
	info := &SessionInfo{
		ID:            record.ID,
		Status:        Status(record.Status),
		Progress:      100,
		Message:       "Из архива",
		VideoFilename: record.VideoFilename,
		HasOutput:     record.OutputPath != "",
		Error:         record.ErrorMessage,
		CreatedAt:     record.CreatedAt,
		FinishedAt:    &finished,
		RiskLevel:     models.RiskLevel(record.RiskLevel),
	}
	if len(record.Events) > 0 || record.TotalFrames > 0 {
		result := modelToResult(record)
		info.Result = &result
	}
	return info
}
