package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-engine/internal/dto"
	"github.com/noah-isme/gema-exam-engine/internal/grading"
	"github.com/noah-isme/gema-exam-engine/internal/models"
)

func newProctoringFixture(t *testing.T) (*examFixture, ProctoringService) {
	t.Helper()
	f := newExamFixture(t, nil)
	svc := NewProctoringService(f.repo, NewActivityService(f.activity, testLogger()), f.activity, validator.New(), testLogger())
	return f, svc
}

func TestProctoringServiceLogAndReport(t *testing.T) {
	f, svc := newProctoringFixture(t)
	ctx := context.Background()
	exam := generateExam(t, f, "cand-1")
	candidate := ActivityActor{ID: "cand-1", Role: "candidate"}

	entry, err := svc.Log(ctx, candidate, exam.ID, dto.ProctoringLogRequest{ActivityType: "TAB_SWITCH"})
	require.NoError(t, err)
	require.Equal(t, "proctoring.tab_switch", entry.Action)
	require.Equal(t, models.SeverityLow, entry.Severity)
	require.Equal(t, "cand-1", entry.Metadata["candidate_id"])

	_, err = svc.Log(ctx, candidate, exam.ID, dto.ProctoringLogRequest{ActivityType: models.ProctoringTabSwitch, Severity: "medium"})
	require.NoError(t, err)

	entry, err = svc.Log(ctx, ActivityActor{}, exam.ID, dto.ProctoringLogRequest{
		ActivityType: models.ProctoringPhoneDetected,
		Severity:     "HIGH",
		Message:      "<i>phone</i> in view & \"visible\"",
		Metadata:     map[string]interface{}{"confidence": 0.92},
		IP:           "10.0.0.7",
	})
	require.NoError(t, err)
	require.Equal(t, "cand-1", entry.ActorID)
	require.Equal(t, "phone in view & \"visible\"", entry.Metadata["message"])
	require.Equal(t, "10.0.0.7", entry.Metadata["ip"])
	require.Equal(t, 0.92, entry.Metadata["confidence"])

	report, err := svc.Report(ctx, exam.ID)
	require.NoError(t, err)
	require.Equal(t, exam.ID, report.ExamID)
	require.Equal(t, "cand-1", report.CandidateID)
	require.EqualValues(t, 3, report.TotalLogs)
	require.Len(t, report.Logs, 3)
	require.Equal(t, map[string]int64{models.ProctoringTabSwitch: 2, models.ProctoringPhoneDetected: 1}, report.CountsByType)
	require.Equal(t, map[string]int64{models.SeverityLow: 1, models.SeverityMedium: 1, models.SeverityHigh: 1}, report.CountsBySeverity)
}

func TestProctoringServiceRejectsInvalidSignals(t *testing.T) {
	f, svc := newProctoringFixture(t)
	ctx := context.Background()
	exam := generateExam(t, f, "cand-1")

	_, err := svc.Log(ctx, ActivityActor{}, exam.ID, dto.ProctoringLogRequest{ActivityType: "screen_recording"})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)

	_, err = svc.Log(ctx, ActivityActor{}, exam.ID, dto.ProctoringLogRequest{ActivityType: models.ProctoringCustom, Severity: "critical"})
	require.ErrorAs(t, err, &validationErrors)

	_, err = svc.Log(ctx, ActivityActor{}, "missing", dto.ProctoringLogRequest{ActivityType: models.ProctoringCustom})
	require.ErrorIs(t, err, grading.ErrNotFound)

	_, err = svc.Report(ctx, "missing")
	require.ErrorIs(t, err, grading.ErrNotFound)
}

func TestProctoringReportIsEmptyWithoutSignals(t *testing.T) {
	f, svc := newProctoringFixture(t)
	exam := generateExam(t, f, "cand-1")

	report, err := svc.Report(context.Background(), exam.ID)
	require.NoError(t, err)
	require.Zero(t, report.TotalLogs)
	require.Empty(t, report.CountsByType)
	require.Empty(t, report.Logs)
	require.Equal(t, map[string]int64{models.SeverityLow: 0, models.SeverityMedium: 0, models.SeverityHigh: 0}, report.CountsBySeverity)
}
