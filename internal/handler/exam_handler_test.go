package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-engine/internal/dto"
	"github.com/noah-isme/gema-exam-engine/internal/grading"
	"github.com/noah-isme/gema-exam-engine/internal/handler"
	"github.com/noah-isme/gema-exam-engine/internal/models"
	"github.com/noah-isme/gema-exam-engine/internal/repository"
	"github.com/noah-isme/gema-exam-engine/internal/service"
	"github.com/noah-isme/gema-exam-engine/pkg/ai"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func handlerQuestions() []grading.Question {
	return []grading.Question{
		{ID: "q1", Text: "Capital of France", Type: grading.SingleChoice, Options: []string{"Paris", "Rome"}, CorrectAnswer: grading.TextAnswer("Paris")},
		{ID: "q2", Text: "Capital of Italy", Type: grading.SingleChoice, Options: []string{"Paris", "Rome"}, CorrectAnswer: grading.TextAnswer("Rome")},
		{ID: "q3", Text: "Pick the vowels", Type: grading.MultiChoice, Options: []string{"A", "B", "E"}, CorrectAnswer: grading.ChoicesAnswer("A", "E")},
		{ID: "q4", Text: "Explain channels", Type: grading.Descriptive, CorrectAnswer: grading.TextAnswer("typed conduits for communicating sequential processes")},
	}
}

// newTestApp serves the exam routes with identities taken from X-User and X-Role headers.
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Exam{}, &models.ActivityLog{}))

	logger := zerolog.New(io.Discard)
	activityLogs := repository.NewActivityLogRepository(db)
	activity := service.NewActivityService(activityLogs, logger)
	examRepo := repository.NewExamRepository(db)
	exams := service.NewExamService(
		examRepo,
		ai.NewQuestionBank(handlerQuestions(), false),
		grading.NewEngine(grading.DefaultOptions()),
		validator.New(validator.WithRequiredStructEnabled()),
		service.ExamServiceOptions{Activity: activity, QuestionCount: 4},
		logger,
	)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user := c.Get("X-User"); user != "" {
			c.Locals("user_id", user)
			c.Locals("user_role", c.Get("X-Role"))
		}
		return c.Next()
	})

	proctoring := service.NewProctoringService(examRepo, activity, activityLogs, validator.New(validator.WithRequiredStructEnabled()), logger)
	h := handler.NewExamHandler(exams, handler.ExamHandlerOptions{Activity: activity, Proctoring: proctoring}, logger)
	h.Register(app.Group("/api/v1/exams"))
	h.RegisterCandidates(app.Group("/api/v1/candidates"))
	return app
}

func call(t *testing.T, app *fiber.App, method, path, user, role string, body interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
		req.Header.Set("X-Role", role)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	var env envelope
	if json.Valid(raw) {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp, env
}

func generateFor(t *testing.T, app *fiber.App, candidate string) dto.ExamResponse {
	t.Helper()
	resp, env := call(t, app, http.MethodPost, "/api/v1/exams/generate", candidate, "candidate", map[string]interface{}{"skills": []string{"go"}})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Message)

	var exam dto.ExamResponse
	require.NoError(t, json.Unmarshal(env.Data, &exam))
	return exam
}

var submission = map[string]interface{}{
	"answers": map[string]interface{}{
		"0": "paris",
		"1": "Rome",
		"2": []string{"A"},
		"3": "no idea",
	},
}

func TestExamHandlerSubmitResultGradeFlow(t *testing.T) {
	app := newTestApp(t)
	exam := generateFor(t, app, "cand-1")
	require.Equal(t, "cand-1", exam.CandidateID)
	require.Len(t, exam.Questions, 4)

	resp, env := call(t, app, http.MethodGet, "/api/v1/exams/"+exam.ID+"/result", "cand-1", "candidate", nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "NotReadyError", env.Error)

	resp, env = call(t, app, http.MethodPost, "/api/v1/exams/"+exam.ID+"/submit", "cand-1", "candidate", submission)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Message)

	var submitted dto.ExamResponse
	require.NoError(t, json.Unmarshal(env.Data, &submitted))
	require.Equal(t, grading.StatusGraded, submitted.Status)
	require.Nil(t, submitted.AutoScore, "candidates do not see scores on the exam view")

	resp, env = call(t, app, http.MethodPost, "/api/v1/exams/"+exam.ID+"/submit", "cand-1", "candidate", submission)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "AlreadySubmittedError", env.Error)

	resp, env = call(t, app, http.MethodPost, "/api/v1/exams/"+exam.ID+"/grades", "cand-1", "candidate", map[string]interface{}{"question_id": "q4", "score": 0.5})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, env = call(t, app, http.MethodPost, "/api/v1/exams/"+exam.ID+"/grades", "rev-1", "reviewer", map[string]interface{}{"question_id": "q4", "score": 0.5, "feedback": "partially right"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Message)

	resp, env = call(t, app, http.MethodGet, "/api/v1/exams/"+exam.ID+"/result", "cand-1", "candidate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result dto.ResultResponse
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.InDelta(t, 2.5, result.Score, 1e-9)
	require.Equal(t, 4, result.Total)
	require.InDelta(t, 62.5, result.Percentage, 1e-9)
	require.False(t, result.Qualified)
	require.Equal(t, grading.StatusManuallyGraded, result.Status)

	resp, env = call(t, app, http.MethodGet, "/api/v1/exams/"+exam.ID+"/activity", "rev-1", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var activity dto.ActivityListResponse
	require.NoError(t, json.Unmarshal(env.Data, &activity))
	require.Len(t, activity.Items, 3)
	require.Equal(t, models.ActivityExamManualGrade, activity.Items[0].Action)
}

func TestExamHandlerErrorMapping(t *testing.T) {
	app := newTestApp(t)
	exam := generateFor(t, app, "cand-1")

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		role   string
		body   interface{}
		status int
		kind   string
	}{
		{"unknown exam", http.MethodGet, "/api/v1/exams/missing", "rev-1", "reviewer", nil, fiber.StatusNotFound, "NotFoundError"},
		{"incomplete answers", http.MethodPost, "/api/v1/exams/" + exam.ID + "/submit", "cand-1", "candidate", map[string]interface{}{"answers": map[string]string{"0": "Paris"}}, fiber.StatusBadRequest, "ValidationError"},
		{"grade before submit", http.MethodPost, "/api/v1/exams/" + exam.ID + "/grades", "rev-1", "reviewer", map[string]interface{}{"question_id": "q4", "score": 1}, fiber.StatusConflict, "NotSubmittedError"},
		{"missing score", http.MethodPost, "/api/v1/exams/" + exam.ID + "/grades", "rev-1", "reviewer", map[string]interface{}{"question_id": "q4"}, fiber.StatusBadRequest, "ValidationError"},
		{"cooldown", http.MethodPost, "/api/v1/exams/generate", "cand-1", "candidate", map[string]interface{}{}, fiber.StatusTooManyRequests, "AttemptNotAllowedError"},
		{"other candidate", http.MethodGet, "/api/v1/exams/" + exam.ID, "cand-2", "candidate", nil, fiber.StatusForbidden, ""},
		{"bad list filter", http.MethodGet, "/api/v1/exams?status=bogus", "rev-1", "admin", nil, fiber.StatusBadRequest, "ValidationError"},
		{"bad eligibility time", http.MethodGet, "/api/v1/candidates/cand-1/eligibility?last_attempt_at=yesterday", "cand-1", "candidate", nil, fiber.StatusBadRequest, "ValidationError"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := call(t, app, tc.method, tc.path, tc.user, tc.role, tc.body)
			require.Equal(t, tc.status, resp.StatusCode, env.Message)
			require.False(t, env.Success)
			require.Equal(t, tc.kind, env.Error)
		})
	}
}

func TestExamHandlerEligibility(t *testing.T) {
	app := newTestApp(t)
	generateFor(t, app, "cand-1")

	resp, env := call(t, app, http.MethodGet, "/api/v1/candidates/cand-1/eligibility", "cand-1", "candidate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var eligibility dto.EligibilityResponse
	require.NoError(t, json.Unmarshal(env.Data, &eligibility))
	require.False(t, eligibility.Eligible)
	require.NotNil(t, eligibility.NextAttemptAt)

	last := time.Now().Add(-30 * 24 * time.Hour).UTC().Format(time.RFC3339)
	resp, env = call(t, app, http.MethodGet, "/api/v1/candidates/cand-1/eligibility?last_attempt_at="+last, "cand-1", "candidate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(env.Data, &eligibility))
	require.True(t, eligibility.Eligible)
}

func TestExamHandlerReviewAndExport(t *testing.T) {
	app := newTestApp(t)
	exam := generateFor(t, app, "cand-1")

	resp, _ := call(t, app, http.MethodPost, "/api/v1/exams/"+exam.ID+"/submit", "cand-1", "candidate", submission)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = call(t, app, http.MethodPost, "/api/v1/exams/"+exam.ID+"/hold", "rev-1", "reviewer", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, env := call(t, app, http.MethodGet, "/api/v1/exams/"+exam.ID+"/result", "cand-1", "candidate", nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
	require.Equal(t, "NotReadyError", env.Error)

	resp, _ = call(t, app, http.MethodPost, "/api/v1/exams/"+exam.ID+"/approve", "rev-1", "admin", map[string]int{"delay_minutes": 0})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = call(t, app, http.MethodGet, "/api/v1/exams/"+exam.ID+"/result", "cand-1", "candidate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, env = call(t, app, http.MethodGet, "/api/v1/exams?status=under_review", "rev-1", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list dto.ExamListResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Items, 1)
	require.True(t, list.Items[0].Approved)

	resp, _ = call(t, app, http.MethodGet, "/api/v1/exams/export", "cand-1", "candidate", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = call(t, app, http.MethodGet, "/api/v1/exams/export", "rev-1", "admin", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "exam-results-")

	book, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, exam.ID, rows[1][0])
}

func TestResultContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("testdata", "result.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	app := newTestApp(t)
	exam := generateFor(t, app, "cand-1")
	resp, _ := call(t, app, http.MethodPost, "/api/v1/exams/"+exam.ID+"/submit", "cand-1", "candidate", submission)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = call(t, app, http.MethodGet, "/api/v1/exams/"+exam.ID+"/result", "cand-1", "candidate", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestExamHandlerProctoring(t *testing.T) {
	app := newTestApp(t)
	exam := generateFor(t, app, "cand-1")
	path := "/api/v1/exams/" + exam.ID + "/proctoring"

	resp, env := call(t, app, http.MethodPost, path, "cand-1", "candidate", map[string]interface{}{
		"activity_type": "tab_switch",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, env.Message)

	var entry dto.ActivityResponse
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	require.Equal(t, "proctoring.tab_switch", entry.Action)
	require.Equal(t, "low", entry.Severity)
	require.Equal(t, "cand-1", entry.ActorID)

	resp, _ = call(t, app, http.MethodPost, path, "cand-1", "candidate", map[string]interface{}{
		"activity_type": "MULTIPLE_FACES",
		"severity":      "high",
		"message":       "two faces & a phone",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, env = call(t, app, http.MethodPost, path, "cand-1", "candidate", map[string]interface{}{"activity_type": "daydreaming"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "ValidationError", env.Error)

	resp, _ = call(t, app, http.MethodPost, path, "cand-2", "candidate", map[string]interface{}{"activity_type": "tab_switch"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = call(t, app, http.MethodGet, path, "cand-1", "candidate", nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, env = call(t, app, http.MethodGet, path, "rev-1", "reviewer", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, env.Message)

	var report dto.ProctoringReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.EqualValues(t, 2, report.TotalLogs)
	require.Equal(t, map[string]int64{"tab_switch": 1, "multiple_faces": 1}, report.CountsByType)
	require.Equal(t, map[string]int64{"low": 1, "medium": 0, "high": 1}, report.CountsBySeverity)
	require.Len(t, report.Logs, 2)

	resp, env = call(t, app, http.MethodGet, "/api/v1/exams/missing/proctoring", "rev-1", "reviewer", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "NotFoundError", env.Error)
}
