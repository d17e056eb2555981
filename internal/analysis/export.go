package analysis

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"fall-detector-go/pkg/models"
)

const (
	summarySheet = "Summary"
	eventsSheet  = "Events"
	heatmapSheet = "Heatmap"
)

var eventsHeader = []string{"#", "Time", "Timestamp, s", "Frame", "Type", "Confidence", "Description"}

// ExportXLSX выгружает отчет в книгу Excel: сводка, события, тепловая карта
func ExportXLSX(report models.AnalysisReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{eventsSheet, heatmapSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSummary(f, report, headerStyle); err != nil {
		return nil, err
	}
	if err := writeEvents(f, report.Timeline, headerStyle); err != nil {
		return nil, err
	}
	if err := writeHeatmap(f, report.ChartData.RiskHeatmap, headerStyle); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, report models.AnalysisReport, style int) error {
	s := report.Summary
	p := report.Performance
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Total falls", s.TotalFalls},
		{"Risk level", string(s.RiskLevel)},
		{"Sustained falls", report.FallTypes.Sustained},
		{"Sudden falls", report.FallTypes.Sudden},
		{"Average confidence", report.ConfidenceAnalysis.Average},
		{"Video duration, s", s.VideoDuration},
		{"Processing time, s", s.ProcessingTime},
		{"Frames processed", p.FramesProcessed},
		{"Frames skipped", p.FramesSkipped},
		{"Errors", s.ErrorCount},
		{"Terminated early", s.Terminated},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	start := len(rows) + 2
	cell, _ := excelize.CoordinatesToCellName(1, start)
	if err := f.SetCellValue(summarySheet, cell, "Recommendations"); err != nil {
		return fmt.Errorf("failed to write recommendations header: %w", err)
	}
	if err := f.SetCellStyle(summarySheet, cell, cell, style); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	for i, rec := range report.Recommendations {
		cell, _ := excelize.CoordinatesToCellName(1, start+i+1)
		if err := f.SetCellValue(summarySheet, cell, rec); err != nil {
			return fmt.Errorf("failed to write recommendation: %w", err)
		}
	}

	if err := f.SetCellStyle(summarySheet, "A1", "B1", style); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	return f.SetColWidth(summarySheet, "A", "A", 30)
}

func writeEvents(f *excelize.File, timeline []models.TimelineEntry, style int) error {
	if err := writeHeader(f, eventsSheet, eventsHeader, style); err != nil {
		return err
	}
	for i, e := range timeline {
		row := []interface{}{e.ID, e.Time, e.Timestamp, e.Frame, string(e.Type), e.Confidence, e.Description}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(eventsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write event row %d: %w", i+1, err)
		}
	}
	return f.SetColWidth(eventsSheet, "G", "G", 30)
}

func writeHeatmap(f *excelize.File, segments []models.HeatmapSegment, style int) error {
	if err := writeHeader(f, heatmapSheet, []string{"Segment", "Start, s", "End, s", "Events"}, style); err != nil {
		return err
	}
	for i, seg := range segments {
		row := []interface{}{seg.Segment, seg.StartTime, seg.EndTime, seg.Events}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(heatmapSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write heatmap row %d: %w", i, err)
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}
