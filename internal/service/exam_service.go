package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-engine/internal/dto"
	"github.com/noah-isme/gema-exam-engine/internal/grading"
	"github.com/noah-isme/gema-exam-engine/internal/models"
	"github.com/noah-isme/gema-exam-engine/internal/observability"
	"github.com/noah-isme/gema-exam-engine/internal/repository"
	"github.com/noah-isme/gema-exam-engine/pkg/ai"
)

const maxUpdateAttempts = 3

// ErrQuestionSource is returned when the question generator fails or produces an unusable exam.
var ErrQuestionSource = errors.New("question source failed")

// ExamService drives the exam lifecycle: generation, submission, grading, review and results.
type ExamService interface {
	Generate(ctx context.Context, req dto.GenerateExamRequest) (dto.ExamResponse, error)
	Get(ctx context.Context, id string) (dto.ExamResponse, error)
	Submit(ctx context.Context, id string, req dto.SubmitExamRequest) (dto.ExamResponse, error)
	Grade(ctx context.Context, actor ActivityActor, id string, req dto.ManualGradeRequest) (dto.ExamResponse, error)
	Result(ctx context.Context, id string) (dto.ResultResponse, error)
	CheckEligibility(ctx context.Context, candidateID string, lastAttemptAt *time.Time) (dto.EligibilityResponse, error)
	List(ctx context.Context, req dto.ExamListRequest) (dto.ExamListResponse, error)
	Approve(ctx context.Context, actor ActivityActor, id string, req dto.ApproveExamRequest) (dto.ExamResponse, error)
	Hold(ctx context.Context, actor ActivityActor, id string) (dto.ExamResponse, error)
	Export(ctx context.Context, req dto.ExamListRequest, w io.Writer) error
}

// ExamServiceOptions carries the optional collaborators and tunables of the exam service.
type ExamServiceOptions struct {
	Activity      ActivityRecorder
	Events        EventPublisher
	Cache         *redis.Client
	CacheTTL      time.Duration
	QuestionCount int
	ApproveDelay  time.Duration
}

type examService struct {
	repo          repository.ExamRepository
	questions     ai.QuestionGenerator
	engine        grading.Engine
	activity      ActivityRecorder
	events        EventPublisher
	cache         *redis.Client
	cacheTTL      time.Duration
	questionCount int
	approveDelay  time.Duration
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	logger        zerolog.Logger
	tracer        trace.Tracer
	now           func() time.Time
	newID         func() string
}

// NewExamService constructs the exam lifecycle service.
func NewExamService(repo repository.ExamRepository, questions ai.QuestionGenerator, engine grading.Engine, validate *validator.Validate, opts ExamServiceOptions, logger zerolog.Logger) ExamService {
	events := opts.Events
	if events == nil {
		events = noopPublisher{}
	}
	questionCount := opts.QuestionCount
	if questionCount <= 0 {
		questionCount = 28
	}
	approveDelay := opts.ApproveDelay
	if approveDelay < 0 {
		approveDelay = 0
	}

	return &examService{
		repo:          repo,
		questions:     questions,
		engine:        engine,
		activity:      opts.Activity,
		events:        events,
		cache:         opts.Cache,
		cacheTTL:      opts.CacheTTL,
		questionCount: questionCount,
		approveDelay:  approveDelay,
		validator:     validate,
		sanitizer:     bluemonday.StrictPolicy(),
		logger:        logger.With().Str("component", "exam_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-exam-engine/internal/service/exam"),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

func (s *examService) Generate(ctx context.Context, req dto.GenerateExamRequest) (dto.ExamResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ExamResponse{}, err
	}

	candidateID := strings.TrimSpace(req.CandidateID)
	spanCtx, span := s.tracer.Start(ctx, "exams.generate", trace.WithAttributes(
		attribute.String("exam.candidate_id", candidateID),
	))
	defer span.End()

	now := s.now().UTC()
	last, err := s.lastAttempt(spanCtx, candidateID)
	if err != nil {
		return dto.ExamResponse{}, recordSpanError(span, err)
	}
	if !s.engine.Gate.CanAttempt(last, now) {
		return dto.ExamResponse{}, recordSpanError(span, grading.AttemptNotAllowedError(candidateID))
	}

	profile := ai.CandidateProfile{
		CandidateID:   candidateID,
		Name:          strings.TrimSpace(req.Name),
		Experience:    strings.TrimSpace(req.Experience),
		Skills:        req.Skills,
		Qualification: strings.TrimSpace(req.Qualification),
	}
	questions, err := s.questions.GenerateQuestions(spanCtx, profile, s.questionCount)
	if err != nil {
		return dto.ExamResponse{}, recordSpanError(span, fmt.Errorf("%w: %v", ErrQuestionSource, err))
	}

	for i := range questions {
		if strings.TrimSpace(questions[i].ID) == "" {
			questions[i].ID = s.newID()
		}
	}
	if err := s.engine.ValidateQuestions(questions); err != nil {
		s.logger.Warn().Err(err).Str("candidate_id", candidateID).Msg("generated questions rejected")
		return dto.ExamResponse{}, recordSpanError(span, fmt.Errorf("%w: %v", ErrQuestionSource, err))
	}

	exam := models.NewExam(s.newID(), candidateID, questions, now)
	if err := s.repo.Create(spanCtx, &exam); err != nil {
		return dto.ExamResponse{}, recordSpanError(span, err)
	}

	span.SetAttributes(attribute.String("exam.id", exam.ID), attribute.Int("exam.questions", len(questions)))
	observability.ExamsGenerated().Inc()
	s.afterCommit(spanCtx, ActivityActor{ID: candidateID, Role: "candidate"}, models.ActivityExamGenerated, EventExamGenerated, exam, map[string]interface{}{
		"questions": len(questions),
	})

	s.logger.Info().Str("exam_id", exam.ID).Str("candidate_id", candidateID).Int("questions", len(questions)).Msg("exam generated")
	return dto.NewExamResponse(exam), nil
}

func (s *examService) Get(ctx context.Context, id string) (dto.ExamResponse, error) {
	exam, err := s.load(ctx, id)
	if err != nil {
		return dto.ExamResponse{}, err
	}
	return dto.NewExamResponse(exam), nil
}

func (s *examService) Submit(ctx context.Context, id string, req dto.SubmitExamRequest) (dto.ExamResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "exams.submit", trace.WithAttributes(attribute.String("exam.id", id)))
	defer span.End()

	var scores grading.Scores
	exam, err := s.mutate(spanCtx, id, func(exam *models.Exam) error {
		instance := exam.Instance()
		if instance.Status != grading.StatusGenerated {
			return grading.AlreadySubmittedError(exam.ID)
		}

		result, err := s.engine.Grader.AutoGrade(instance.Questions, req.Answers)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		instance.SubmittedAnswers = req.Answers
		instance.PerQuestion = result.PerQuestion
		instance.Status = grading.StatusGraded
		instance.SubmittedAt = &now
		instance.GradedAt = &now

		scores = s.engine.Aggregator.Aggregate(instance)
		scores.Apply(&instance)
		exam.Apply(instance, scores)
		return nil
	})
	if err != nil {
		return dto.ExamResponse{}, recordSpanError(span, err)
	}

	span.SetAttributes(attribute.Float64("exam.percentage", scores.Percentage), attribute.Bool("exam.qualified", scores.Qualified))
	observability.ExamsGraded().WithLabelValues(strconv.FormatBool(scores.Qualified)).Inc()
	observability.ExamPercentage().Observe(scores.Percentage)
	s.afterCommit(spanCtx, ActivityActor{ID: exam.CandidateID, Role: "candidate"}, models.ActivityExamSubmitted, EventExamGraded, exam, map[string]interface{}{
		"auto_score": scores.AutoScore,
		"percentage": scores.Percentage,
	})

	s.logger.Info().Str("exam_id", exam.ID).Int("auto_score", scores.AutoScore).Float64("percentage", scores.Percentage).Msg("exam submitted and graded")
	return dto.NewExamResponse(exam), nil
}

func (s *examService) Grade(ctx context.Context, actor ActivityActor, id string, req dto.ManualGradeRequest) (dto.ExamResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ExamResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "exams.grade", trace.WithAttributes(
		attribute.String("exam.id", id),
		attribute.String("exam.question_id", req.QuestionID),
	))
	defer span.End()

	feedback := plainText(s.sanitizer, req.Feedback)

	var scores grading.Scores
	exam, err := s.mutate(spanCtx, id, func(exam *models.Exam) error {
		instance := exam.Instance()
		now := s.now().UTC()
		if _, err := grading.ApplyManualGrade(&instance, strings.TrimSpace(req.QuestionID), *req.Score, feedback, now); err != nil {
			return err
		}

		if instance.Status != grading.StatusUnderReview {
			instance.Status = grading.StatusManuallyGraded
		}
		instance.ReviewedAt = &now

		scores = s.engine.Aggregator.Aggregate(instance)
		scores.Apply(&instance)
		exam.Apply(instance, scores)
		return nil
	})
	if err != nil {
		return dto.ExamResponse{}, recordSpanError(span, err)
	}

	observability.ManualGrades().Inc()
	s.afterCommit(spanCtx, actor, models.ActivityExamManualGrade, EventExamManuallyGraded, exam, map[string]interface{}{
		"question_id": req.QuestionID,
		"score":       *req.Score,
		"final_score": scores.FinalScore,
	})

	s.logger.Info().Str("exam_id", exam.ID).Str("question_id", req.QuestionID).Float64("final_score", scores.FinalScore).Msg("manual grade recorded")
	return dto.NewExamResponse(exam), nil
}

func (s *examService) Result(ctx context.Context, id string) (dto.ResultResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "exams.result", trace.WithAttributes(attribute.String("exam.id", id)))
	defer span.End()

	if cached, ok := s.cachedResult(spanCtx, id); ok {
		return cached, nil
	}

	exam, err := s.load(spanCtx, id)
	if err != nil {
		return dto.ResultResponse{}, recordSpanError(span, err)
	}

	status := exam.GradingStatus()
	if !status.HasSubmission() || !exam.IsVisible(s.now()) {
		return dto.ResultResponse{}, grading.NotReadyError(exam.ID)
	}

	scores := s.engine.Aggregator.Aggregate(exam.Instance())
	response := dto.NewResultResponse(exam.ID, status, scores)

	if status != grading.StatusUnderReview {
		s.storeResult(spanCtx, response)
	}
	return response, nil
}

func (s *examService) CheckEligibility(ctx context.Context, candidateID string, lastAttemptAt *time.Time) (dto.EligibilityResponse, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return dto.EligibilityResponse{}, grading.ValidationError("candidate_id", "candidate id is required")
	}

	last := lastAttemptAt
	if last == nil {
		stored, err := s.lastAttempt(ctx, candidateID)
		if err != nil {
			return dto.EligibilityResponse{}, err
		}
		last = stored
	}

	eligible := s.engine.Gate.CanAttempt(last, s.now())
	response := dto.EligibilityResponse{
		CandidateID:   candidateID,
		Eligible:      eligible,
		LastAttemptAt: last,
	}
	if !eligible {
		response.NextAttemptAt = s.engine.Gate.NextAttemptAt(last)
	}
	return response, nil
}

func (s *examService) List(ctx context.Context, req dto.ExamListRequest) (dto.ExamListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ExamListResponse{}, err
	}

	exams, total, err := s.repo.List(ctx, toExamFilter(req))
	if err != nil {
		return dto.ExamListResponse{}, err
	}

	items := make([]dto.ExamSummaryResponse, 0, len(exams))
	for _, exam := range exams {
		items = append(items, dto.NewExamSummaryResponse(exam))
	}

	return dto.ExamListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *examService) Approve(ctx context.Context, actor ActivityActor, id string, req dto.ApproveExamRequest) (dto.ExamResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ExamResponse{}, err
	}

	delay := s.approveDelay
	if req.DelayMinutes != nil {
		delay = time.Duration(*req.DelayMinutes) * time.Minute
	}

	spanCtx, span := s.tracer.Start(ctx, "exams.approve", trace.WithAttributes(attribute.String("exam.id", id)))
	defer span.End()

	exam, err := s.mutate(spanCtx, id, func(exam *models.Exam) error {
		if !exam.GradingStatus().HasSubmission() {
			return grading.NotSubmittedError(exam.ID)
		}
		now := s.now().UTC()
		visibleAt := now.Add(delay)
		exam.Approved = true
		exam.ApprovedAt = &now
		exam.VisibleAt = &visibleAt
		return nil
	})
	if err != nil {
		return dto.ExamResponse{}, recordSpanError(span, err)
	}

	s.afterCommit(spanCtx, actor, models.ActivityExamApproved, EventExamApproved, exam, map[string]interface{}{
		"visible_at": exam.VisibleAt,
	})
	return dto.NewExamResponse(exam), nil
}

func (s *examService) Hold(ctx context.Context, actor ActivityActor, id string) (dto.ExamResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "exams.hold", trace.WithAttributes(attribute.String("exam.id", id)))
	defer span.End()

	changed := false
	exam, err := s.mutate(spanCtx, id, func(exam *models.Exam) error {
		status := exam.GradingStatus()
		if !status.HasSubmission() {
			return grading.NotSubmittedError(exam.ID)
		}
		changed = status != grading.StatusUnderReview || exam.Approved
		exam.Status = string(grading.StatusUnderReview)
		exam.Approved = false
		exam.ApprovedAt = nil
		exam.VisibleAt = nil
		return nil
	})
	if err != nil {
		return dto.ExamResponse{}, recordSpanError(span, err)
	}

	if changed {
		s.afterCommit(spanCtx, actor, models.ActivityExamHeld, EventExamHeld, exam, nil)
	}
	return dto.NewExamResponse(exam), nil
}

// mutate loads the exam, applies fn and persists the result guarded by the
// status and version that were read. A concurrent write causes a reload so fn
// re-checks its preconditions against the fresh state.
func (s *examService) mutate(ctx context.Context, id string, fn func(exam *models.Exam) error) (models.Exam, error) {
	for attempt := 1; ; attempt++ {
		exam, err := s.load(ctx, id)
		if err != nil {
			return models.Exam{}, err
		}

		readStatus := exam.Status
		if err := fn(&exam); err != nil {
			return models.Exam{}, err
		}

		err = s.repo.UpdateIfStatus(ctx, &exam, readStatus)
		if err == nil {
			return exam, nil
		}
		if !errors.Is(err, repository.ErrConflict) || attempt >= maxUpdateAttempts {
			return models.Exam{}, err
		}
		s.logger.Debug().Str("exam_id", id).Int("attempt", attempt).Msg("exam changed concurrently, retrying")
	}
}

// plainText strips markup from user input while keeping literal characters
// such as "<" and "&" that the policy escapes.
func plainText(policy *bluemonday.Policy, raw string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(raw)))
}

func (s *examService) load(ctx context.Context, id string) (models.Exam, error) {
	return loadExam(ctx, s.repo, id)
}

func loadExam(ctx context.Context, repo repository.ExamRepository, id string) (models.Exam, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Exam{}, grading.ValidationError("id", "exam id is required")
	}

	exam, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Exam{}, grading.NotFoundError("exam %s not found", id)
		}
		return models.Exam{}, err
	}
	return exam, nil
}

func (s *examService) lastAttempt(ctx context.Context, candidateID string) (*time.Time, error) {
	latest, err := s.repo.LatestByCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	at := latest.GeneratedAt
	if latest.SubmittedAt != nil {
		at = *latest.SubmittedAt
	}
	return &at, nil
}

func (s *examService) afterCommit(ctx context.Context, actor ActivityActor, action, eventType string, exam models.Exam, metadata map[string]interface{}) {
	s.invalidateResult(ctx, exam.ID)

	if err := s.events.Publish(ctx, NewExamEvent(eventType, exam, s.now())); err != nil {
		s.logger.Warn().Err(err).Str("exam_id", exam.ID).Str("event", eventType).Msg("failed to publish lifecycle event")
	}

	if s.activity == nil {
		return
	}
	entry := ActivityEntry{
		Actor:      actor,
		Action:     action,
		EntityType: models.ActivityEntityExam,
		EntityID:   exam.ID,
		Metadata:   metadata,
	}
	if _, err := s.activity.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("exam_id", exam.ID).Str("action", action).Msg("failed to record activity")
	}
}

func resultCacheKey(id string) string {
	return fmt.Sprintf("exam:result:%s", id)
}

func (s *examService) cachedResult(ctx context.Context, id string) (dto.ResultResponse, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return dto.ResultResponse{}, false
	}

	cached, err := s.cache.Get(ctx, resultCacheKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read result cache")
		}
		observability.ResultCacheLookups().WithLabelValues("miss").Inc()
		return dto.ResultResponse{}, false
	}

	var response dto.ResultResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		observability.ResultCacheLookups().WithLabelValues("miss").Inc()
		return dto.ResultResponse{}, false
	}

	observability.ResultCacheLookups().WithLabelValues("hit").Inc()
	s.logger.Debug().Str("exam_id", id).Msg("result cache hit")
	return response, true
}

func (s *examService) storeResult(ctx context.Context, response dto.ResultResponse) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, resultCacheKey(response.ExamID), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store result cache")
	}
}

func (s *examService) invalidateResult(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, resultCacheKey(id)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("exam_id", id).Msg("failed to invalidate result cache")
	}
}

func toExamFilter(req dto.ExamListRequest) repository.ExamFilter {
	return repository.ExamFilter{
		CandidateID: strings.TrimSpace(req.CandidateID),
		Status:      strings.TrimSpace(req.Status),
		Qualified:   req.Qualified,
		Page:        req.Page,
		PageSize:    req.PageSize,
	}
}

func recordSpanError(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	if grading.KindOf(err) == "" {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
