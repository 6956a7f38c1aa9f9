package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-engine/internal/dto"
	"github.com/noah-isme/gema-exam-engine/internal/middleware"
	"github.com/noah-isme/gema-exam-engine/internal/service"
	"github.com/noah-isme/gema-exam-engine/internal/utils"
)

// ExamHandler exposes the exam lifecycle over HTTP.
type ExamHandler struct {
	service    service.ExamService
	activity   service.ActivityService
	proctoring service.ProctoringService
	generate   fiber.Handler
	logger   zerolog.Logger
	now      func() time.Time
}

// ExamHandlerOptions configures optional handler collaborators.
type ExamHandlerOptions struct {
	Activity   service.ActivityService
	Proctoring service.ProctoringService
	// GenerateLimiter guards the generate route, typically middleware.RateLimit.
	GenerateLimiter fiber.Handler
}

// NewExamHandler constructs the exam handler.
func NewExamHandler(svc service.ExamService, opts ExamHandlerOptions, logger zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		service:    svc,
		activity:   opts.Activity,
		proctoring: opts.Proctoring,
		generate:   opts.GenerateLimiter,
		logger:     logger.With().Str("component", "exam_handler").Logger(),
		now:        time.Now,
	}
}

// Register attaches exam routes to the router group.
func (h *ExamHandler) Register(router fiber.Router) {
	staff := middleware.AuthOptions{Role: middleware.AuthRoleStaff}

	if h.generate != nil {
		router.Post("/generate", h.generate, h.generateExam)
	} else {
		router.Post("/generate", h.generateExam)
	}
	router.Get("/", middleware.WithAuth(h.list, staff))
	router.Get("/export", middleware.WithAuth(h.export, staff))
	router.Get("/:id", h.get)
	router.Post("/:id/submit", h.submit)
	router.Get("/:id/result", h.result)
	router.Post("/:id/grades", middleware.WithAuth(h.grade, staff))
	router.Post("/:id/approve", middleware.WithAuth(h.approve, staff))
	router.Post("/:id/hold", middleware.WithAuth(h.hold, staff))
	if h.activity != nil {
		router.Get("/:id/activity", middleware.WithAuth(h.listActivity, staff))
	}
	if h.proctoring != nil {
		router.Post("/:id/proctoring", h.logProctoring)
		router.Get("/:id/proctoring", middleware.WithAuth(h.proctoringReport, staff))
	}
}

// RegisterCandidates attaches candidate routes to the router group.
func (h *ExamHandler) RegisterCandidates(router fiber.Router) {
	router.Get("/:id/eligibility", h.eligibility)
}

func (h *ExamHandler) generateExam(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.GenerateExamRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", "invalid payload")
	}

	if !middleware.IsStaffRole(userRoleFromContext(c)) {
		// candidates may only generate for themselves
		if userID := userIDFromContext(c); userID != "" {
			if payload.CandidateID == "" {
				payload.CandidateID = userID
			}
			if payload.CandidateID != userID {
				return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
			}
		}
	}

	exam, err := h.service.Generate(c.UserContext(), payload)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to generate exam")
	}

	logger.Info().Str("exam_id", exam.ID).Str("candidate_id", exam.CandidateID).Msg("exam generated")
	if !middleware.IsStaffRole(userRoleFromContext(c)) {
		exam = exam.CandidateView()
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "exam generated", exam)
}

func (h *ExamHandler) get(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	exam, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return sendServiceError(c, logger, err, "failed to load exam")
	}
	if !h.canAccess(c, exam.CandidateID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	if !middleware.IsStaffRole(userRoleFromContext(c)) {
		exam = exam.CandidateView()
	}
	return utils.SendSuccess(c, "exam retrieved", exam)
}

func (h *ExamHandler) submit(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)
	id := c.Params("id")

	var payload dto.SubmitExamRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", "invalid payload")
	}

	if ok, err := h.authorizeExam(c, id); !ok {
		return err
	}

	exam, err := h.service.Submit(c.UserContext(), id, payload)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to submit exam")
	}

	logger.Info().Str("exam_id", exam.ID).Msg("exam submitted")
	if !middleware.IsStaffRole(userRoleFromContext(c)) {
		exam = exam.CandidateView()
	}
	return utils.SendSuccess(c, "exam submitted", exam)
}

func (h *ExamHandler) result(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)
	id := c.Params("id")

	if ok, err := h.authorizeExam(c, id); !ok {
		return err
	}

	result, err := h.service.Result(c.UserContext(), id)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to compute result")
	}
	return utils.SendSuccess(c, "result retrieved", result)
}

func (h *ExamHandler) grade(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.ManualGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", "invalid payload")
	}

	exam, err := h.service.Grade(c.UserContext(), activityActorFromContext(c), c.Params("id"), payload)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to record grade")
	}
	return utils.SendSuccess(c, "grade recorded", exam)
}

func (h *ExamHandler) approve(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	var payload dto.ApproveExamRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", "invalid payload")
		}
	}

	exam, err := h.service.Approve(c.UserContext(), activityActorFromContext(c), c.Params("id"), payload)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to approve exam")
	}
	return utils.SendSuccess(c, "exam approved", exam)
}

func (h *ExamHandler) hold(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	exam, err := h.service.Hold(c.UserContext(), activityActorFromContext(c), c.Params("id"))
	if err != nil {
		return sendServiceError(c, logger, err, "failed to hold exam")
	}
	return utils.SendSuccess(c, "exam held for review", exam)
}

func (h *ExamHandler) list(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	req, err := parseExamListRequest(c)
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", err.Error())
	}

	exams, err := h.service.List(c.UserContext(), req)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to list exams")
	}
	return utils.SendSuccess(c, "exams retrieved", exams)
}

func (h *ExamHandler) export(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	req, err := parseExamListRequest(c)
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", err.Error())
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Attachment(service.ExportFilename(h.now()))
	if err := h.service.Export(c.UserContext(), req, c.Response().BodyWriter()); err != nil {
		c.Response().ResetBody()
		c.Set(fiber.HeaderContentDisposition, "")
		return sendServiceError(c, logger, err, "failed to export exams")
	}
	return nil
}

func (h *ExamHandler) listActivity(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", "invalid page parameter")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", "invalid page_size parameter")
	}

	entries, err := h.activity.List(c.UserContext(), dto.ActivityListRequest{
		Page:     page,
		PageSize: pageSize,
		Action:   c.Query("action"),
		EntityID: c.Params("id"),
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to list exam activity")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list activity")
	}
	return utils.SendSuccess(c, "activity retrieved", entries)
}

func (h *ExamHandler) logProctoring(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)
	id := c.Params("id")

	var payload dto.ProctoringLogRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", "invalid payload")
	}
	payload.IP = c.IP()

	if ok, err := h.authorizeExam(c, id); !ok {
		return err
	}

	entry, err := h.proctoring.Log(c.UserContext(), activityActorFromContext(c), id, payload)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to record proctoring signal")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "proctoring signal recorded", entry)
}

func (h *ExamHandler) proctoringReport(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)

	report, err := h.proctoring.Report(c.UserContext(), c.Params("id"))
	if err != nil {
		return sendServiceError(c, logger, err, "failed to build proctoring report")
	}
	return utils.SendSuccess(c, "proctoring report retrieved", report)
}

func (h *ExamHandler) eligibility(c *fiber.Ctx) error {
	logger := requestLogger(h.logger, c)
	candidateID := c.Params("id")

	if !h.canAccess(c, candidateID) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var lastAttempt *time.Time
	if raw := strings.TrimSpace(c.Query("last_attempt_at")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return utils.SendErrorKind(c, fiber.StatusBadRequest, "ValidationError", "last_attempt_at must be RFC3339")
		}
		lastAttempt = &parsed
	}

	eligibility, err := h.service.CheckEligibility(c.UserContext(), candidateID, lastAttempt)
	if err != nil {
		return sendServiceError(c, logger, err, "failed to check eligibility")
	}
	return utils.SendSuccess(c, "eligibility checked", eligibility)
}

// authorizeExam rejects candidates acting on exams that are not theirs. When
// it reports false the response has already been written.
func (h *ExamHandler) authorizeExam(c *fiber.Ctx, id string) (bool, error) {
	if middleware.IsStaffRole(userRoleFromContext(c)) || userIDFromContext(c) == "" {
		return true, nil
	}

	exam, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return false, sendServiceError(c, requestLogger(h.logger, c), err, "failed to load exam")
	}
	if !h.canAccess(c, exam.CandidateID) {
		return false, utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}
	return true, nil
}

func (h *ExamHandler) canAccess(c *fiber.Ctx, candidateID string) bool {
	if middleware.IsStaffRole(userRoleFromContext(c)) {
		return true
	}
	userID := userIDFromContext(c)
	return userID == "" || userID == candidateID
}

func parseExamListRequest(c *fiber.Ctx) (dto.ExamListRequest, error) {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return dto.ExamListRequest{}, fiber.NewError(fiber.StatusBadRequest, "invalid page parameter")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return dto.ExamListRequest{}, fiber.NewError(fiber.StatusBadRequest, "invalid page_size parameter")
	}
	qualified, err := parseQueryBool(c, "qualified")
	if err != nil {
		return dto.ExamListRequest{}, fiber.NewError(fiber.StatusBadRequest, "invalid qualified parameter")
	}

	return dto.ExamListRequest{
		Page:        page,
		PageSize:    pageSize,
		CandidateID: c.Query("candidate_id"),
		Status:      c.Query("status"),
		Qualified:   qualified,
	}, nil
}
