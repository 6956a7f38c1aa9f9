package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ActivityLog captures auditable actions on an exam: reviewer decisions,
// lifecycle transitions and proctoring signals raised during an attempt.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    string            `gorm:"size:64;not null" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   string            `gorm:"size:64;index" json:"entity_id"`
	Severity   string            `gorm:"size:16;index" json:"severity,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Activity actions recorded by the exam lifecycle.
const (
	ActivityExamGenerated   = "exam.generated"
	ActivityExamSubmitted   = "exam.submitted"
	ActivityExamManualGrade = "exam.manual_grade"
	ActivityExamApproved    = "exam.approved"
	ActivityExamHeld        = "exam.held"
	ActivityEntityExam      = "exam"
)

// ActivityProctoringPrefix namespaces proctoring signals among activity actions.
const ActivityProctoringPrefix = "proctoring."

// Proctoring signal types reported by the exam client.
const (
	ProctoringTabSwitch         = "tab_switch"
	ProctoringWindowSwitch      = "window_switch"
	ProctoringFaceNotDetected   = "face_not_detected"
	ProctoringMultipleFaces     = "multiple_faces"
	ProctoringSoundDetected     = "sound_detected"
	ProctoringPhoneDetected     = "phone_detected"
	ProctoringNoFaceForLong     = "no_face_for_long"
	ProctoringCheatingSuspected = "cheating_suspected"
	ProctoringCustom            = "custom"
)

// Proctoring severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// ProctoringAction returns the activity action stored for a proctoring signal type.
func ProctoringAction(signal string) string {
	return ActivityProctoringPrefix + signal
}

// ProctoringSignal returns the signal type of a proctoring action, or "" for other actions.
func ProctoringSignal(action string) string {
	if !strings.HasPrefix(action, ActivityProctoringPrefix) {
		return ""
	}
	return strings.TrimPrefix(action, ActivityProctoringPrefix)
}
