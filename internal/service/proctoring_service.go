package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-engine/internal/dto"
	"github.com/noah-isme/gema-exam-engine/internal/models"
	"github.com/noah-isme/gema-exam-engine/internal/observability"
	"github.com/noah-isme/gema-exam-engine/internal/repository"
)

// ProctoringService records proctoring signals against an exam and reports on them.
type ProctoringService interface {
	Log(ctx context.Context, actor ActivityActor, examID string, req dto.ProctoringLogRequest) (dto.ActivityResponse, error)
	Report(ctx context.Context, examID string) (dto.ProctoringReport, error)
}

type proctoringService struct {
	exams     repository.ExamRepository
	recorder  ActivityRecorder
	logs      repository.ActivityLogRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewProctoringService constructs the proctoring service. Signals are persisted through recorder.
func NewProctoringService(exams repository.ExamRepository, recorder ActivityRecorder, logs repository.ActivityLogRepository, validate *validator.Validate, logger zerolog.Logger) ProctoringService {
	return &proctoringService{
		exams:     exams,
		recorder:  recorder,
		logs:      logs,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "proctoring_service").Logger(),
	}
}

func (s *proctoringService) Log(ctx context.Context, actor ActivityActor, examID string, req dto.ProctoringLogRequest) (dto.ActivityResponse, error) {
	req.ActivityType = strings.ToLower(strings.TrimSpace(req.ActivityType))
	req.Severity = strings.ToLower(strings.TrimSpace(req.Severity))
	if err := s.validator.Struct(req); err != nil {
		return dto.ActivityResponse{}, err
	}
	if req.Severity == "" {
		req.Severity = models.SeverityLow
	}

	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return dto.ActivityResponse{}, err
	}

	metadata := make(map[string]interface{}, len(req.Metadata)+3)
	for key, value := range req.Metadata {
		metadata[key] = value
	}
	metadata["candidate_id"] = exam.CandidateID
	if message := plainText(s.sanitizer, req.Message); message != "" {
		metadata["message"] = message
	}
	if ip := strings.TrimSpace(req.IP); ip != "" {
		metadata["ip"] = ip
	}

	if strings.TrimSpace(actor.ID) == "" {
		actor = ActivityActor{ID: exam.CandidateID, Role: "candidate"}
	}

	entry, err := s.recorder.Record(ctx, ActivityEntry{
		Actor:      actor,
		Action:     models.ProctoringAction(req.ActivityType),
		EntityType: models.ActivityEntityExam,
		EntityID:   exam.ID,
		Severity:   req.Severity,
		Metadata:   metadata,
	})
	if err != nil {
		return dto.ActivityResponse{}, err
	}

	observability.ProctoringSignals().WithLabelValues(req.ActivityType, req.Severity).Inc()
	event := s.logger.Info()
	if req.Severity == models.SeverityHigh {
		event = s.logger.Warn()
	}
	event.Str("exam_id", exam.ID).Str("candidate_id", exam.CandidateID).Str("type", req.ActivityType).Str("severity", req.Severity).Msg("proctoring signal recorded")
	return entry, nil
}

func (s *proctoringService) Report(ctx context.Context, examID string) (dto.ProctoringReport, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return dto.ProctoringReport{}, err
	}

	filter := repository.ActivityLogFilter{EntityID: exam.ID, ActionPrefix: models.ActivityProctoringPrefix}
	counts, err := s.logs.CountBy(ctx, filter)
	if err != nil {
		return dto.ProctoringReport{}, err
	}
	entries, total, err := s.logs.List(ctx, filter)
	if err != nil {
		return dto.ProctoringReport{}, err
	}

	report := dto.ProctoringReport{
		ExamID:       exam.ID,
		CandidateID:  exam.CandidateID,
		TotalLogs:    total,
		CountsByType: map[string]int64{},
		CountsBySeverity: map[string]int64{
			models.SeverityLow:    0,
			models.SeverityMedium: 0,
			models.SeverityHigh:   0,
		},
		Logs: make([]dto.ActivityResponse, 0, len(entries)),
	}
	for _, bucket := range counts {
		report.CountsByType[models.ProctoringSignal(bucket.Action)] += bucket.Count
		report.CountsBySeverity[bucket.Severity] += bucket.Count
	}
	for _, entry := range entries {
		report.Logs = append(report.Logs, dto.NewActivityResponse(entry))
	}
	return report, nil
}
