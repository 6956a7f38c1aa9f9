package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-engine/internal/dto"
	"github.com/noah-isme/gema-exam-engine/internal/models"
	"github.com/noah-isme/gema-exam-engine/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	var matched []models.ActivityLog
	for _, entry := range m.entries {
		if filter.EntityID != "" && entry.EntityID != filter.EntityID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.ActionPrefix != "" && !strings.HasPrefix(entry.Action, filter.ActionPrefix) {
			continue
		}
		matched = append(matched, entry)
	}
	return matched, int64(len(matched)), nil
}

func (m *memoryActivityRepo) CountBy(ctx context.Context, filter repository.ActivityLogFilter) ([]repository.ActivityCount, error) {
	matched, _, _ := m.List(ctx, filter)

	index := map[[2]string]int{}
	var counts []repository.ActivityCount
	for _, entry := range matched {
		key := [2]string{entry.Action, entry.Severity}
		if i, ok := index[key]; ok {
			counts[i].Count++
			continue
		}
		index[key] = len(counts)
		counts = append(counts, repository.ActivityCount{Action: entry.Action, Severity: entry.Severity, Count: 1})
	}
	return counts, nil
}

func (m *memoryActivityRepo) actions() []string {
	actions := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

func TestActivityServiceRecordMasksSecrets(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		Actor:      ActivityActor{ID: "rev-1", Role: "Reviewer"},
		Action:     models.ActivityExamManualGrade,
		EntityType: models.ActivityEntityExam,
		EntityID:   "exam-1",
		Metadata: map[string]interface{}{
			"reviewer_email": "rev@example.com",
			"question_id":    "q2",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["reviewer_email"])
	require.Equal(t, "q2", entry.Metadata["question_id"])
	require.Equal(t, "rev-1", entry.ActorID)
	require.Equal(t, "reviewer", entry.ActorRole)
}

func TestActivityServiceRecordDefaultsToSystemActor(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{Action: "Exam.Generated", EntityType: "exam", EntityID: "exam-2"})
	require.NoError(t, err)
	require.Equal(t, "system", entry.ActorID)
	require.Equal(t, "system", entry.ActorRole)
	require.Equal(t, models.ActivityExamGenerated, entry.Action)

	_, err = svc.Record(context.Background(), ActivityEntry{EntityType: "exam"})
	require.Error(t, err)
}

func TestActivityServiceListPaginates(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())
	for i := 0; i < 3; i++ {
		_, err := svc.Record(context.Background(), ActivityEntry{Action: models.ActivityExamHeld, EntityType: "exam", EntityID: "exam-9"})
		require.NoError(t, err)
	}

	list, err := svc.List(context.Background(), dto.ActivityListRequest{EntityID: "exam-9", PageSize: 2})
	require.NoError(t, err)
	require.Len(t, list.Items, 3)
	require.Equal(t, 2, list.Pagination.TotalPages)
	require.Equal(t, 1, list.Pagination.Page)
}
