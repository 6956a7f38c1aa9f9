package dto

// ProctoringLogRequest is a signal raised by the exam client while an attempt is open.
type ProctoringLogRequest struct {
	ActivityType string                 `json:"activity_type" validate:"required,oneof=tab_switch window_switch face_not_detected multiple_faces sound_detected phone_detected no_face_for_long cheating_suspected custom"`
	Severity     string                 `json:"severity" validate:"omitempty,oneof=low medium high"`
	Message      string                 `json:"message" validate:"max=500"`
	Metadata     map[string]interface{} `json:"metadata"`
	IP           string                 `json:"-"`
}

// ProctoringReport summarises the proctoring signals of one exam.
type ProctoringReport struct {
	ExamID           string             `json:"exam_id"`
	CandidateID      string             `json:"candidate_id"`
	TotalLogs        int64              `json:"total_logs"`
	CountsByType     map[string]int64   `json:"counts_by_type"`
	CountsBySeverity map[string]int64   `json:"counts_by_severity"`
	Logs             []ActivityResponse `json:"logs"`
}
