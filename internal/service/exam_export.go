package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/gema-exam-engine/internal/dto"
	"github.com/noah-isme/gema-exam-engine/internal/models"
)

const (
	exportSheet    = "Results"
	exportPageSize = 200
)

var exportHeader = []interface{}{
	"Exam ID", "Candidate ID", "Status", "Auto Score", "Manual Score",
	"Final Score", "Percentage", "Qualified", "Approved", "Generated At", "Submitted At", "Graded At",
}

// Export writes every exam matching the filter into an xlsx workbook.
func (s *examService) Export(ctx context.Context, req dto.ExamListRequest, w io.Writer) error {
	if err := s.validator.Struct(req); err != nil {
		return err
	}

	spanCtx, span := s.tracer.Start(ctx, "exams.export")
	defer span.End()

	book := excelize.NewFile()
	defer func() {
		if err := book.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close export workbook")
		}
	}()

	if err := book.SetSheetName("Sheet1", exportSheet); err != nil {
		return recordSpanError(span, err)
	}
	if err := writeExportRow(book, 1, exportHeader); err != nil {
		return recordSpanError(span, err)
	}

	style, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return recordSpanError(span, err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err != nil {
		return recordSpanError(span, err)
	}
	if err := book.SetCellStyle(exportSheet, "A1", lastHeader, style); err != nil {
		return recordSpanError(span, err)
	}

	filter := toExamFilter(req)
	filter.PageSize = exportPageSize
	row := 2
	for page := 1; ; page++ {
		filter.Page = page
		exams, total, err := s.repo.List(spanCtx, filter)
		if err != nil {
			return recordSpanError(span, err)
		}
		for _, exam := range exams {
			if err := writeExportRow(book, row, exportValues(exam)); err != nil {
				return recordSpanError(span, err)
			}
			row++
		}
		if len(exams) == 0 || int64(page*exportPageSize) >= total {
			break
		}
	}

	if _, err := book.WriteTo(w); err != nil {
		return recordSpanError(span, err)
	}

	s.logger.Info().Int("rows", row-2).Msg("exam results exported")
	return nil
}

func writeExportRow(book *excelize.File, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return book.SetSheetRow(exportSheet, cell, &values)
}

func exportValues(exam models.Exam) []interface{} {
	values := []interface{}{
		exam.ID,
		exam.CandidateID,
		exam.Status,
		optional(exam.AutoScore),
		optional(exam.ManualScore),
		optional(exam.FinalScore),
		optional(exam.Percentage),
		optional(exam.Qualified),
		exam.Approved,
		exam.GeneratedAt.UTC().Format(time.RFC3339),
		formatTime(exam.SubmittedAt),
		formatTime(exam.GradedAt),
	}
	return values
}

func optional[T any](v *T) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ExportFilename names an export produced at the given time.
func ExportFilename(at time.Time) string {
	return fmt.Sprintf("exam-results-%s.xlsx", at.UTC().Format("20060102-150405"))
}
