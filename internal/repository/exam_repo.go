package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-engine/internal/models"
)

// ErrConflict is returned when a guarded update finds the exam changed since it was read.
var ErrConflict = errors.New("exam was modified concurrently")

// ExamFilter narrows exam list queries.
type ExamFilter struct {
	CandidateID string
	Status      string
	Qualified   *bool
	Page        int
	PageSize    int
}

// ExamRepository persists exam instances.
type ExamRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	GetByID(ctx context.Context, id string) (models.Exam, error)
	LatestByCandidate(ctx context.Context, candidateID string) (models.Exam, error)
	List(ctx context.Context, filter ExamFilter) ([]models.Exam, int64, error)
	UpdateIfStatus(ctx context.Context, exam *models.Exam, statuses ...string) error
}

type examRepository struct {
	db *gorm.DB
}

// NewExamRepository constructs the exam repository.
func NewExamRepository(db *gorm.DB) ExamRepository {
	return &examRepository{db: db}
}

func (r *examRepository) Create(ctx context.Context, exam *models.Exam) error {
	return r.db.WithContext(ctx).Create(exam).Error
}

func (r *examRepository) GetByID(ctx context.Context, id string) (models.Exam, error) {
	var exam models.Exam
	if err := r.db.WithContext(ctx).First(&exam, "id = ?", id).Error; err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *examRepository) LatestByCandidate(ctx context.Context, candidateID string) (models.Exam, error) {
	var exam models.Exam
	err := r.db.WithContext(ctx).
		Where("candidate_id = ?", candidateID).
		Order("generated_at DESC").
		First(&exam).Error
	if err != nil {
		return models.Exam{}, err
	}
	return exam, nil
}

func (r *examRepository) List(ctx context.Context, filter ExamFilter) ([]models.Exam, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Exam{})

	if filter.CandidateID != "" {
		query = query.Where("candidate_id = ?", filter.CandidateID)
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if filter.Qualified != nil {
		query = query.Where("qualified = ?", *filter.Qualified)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var exams []models.Exam
	if err := query.Order("created_at DESC").Find(&exams).Error; err != nil {
		return nil, 0, err
	}

	return exams, total, nil
}

// UpdateIfStatus writes every column of exam only while the stored row still has
// the version exam was read at and is in one of statuses. The version is bumped on success.
func (r *examRepository) UpdateIfStatus(ctx context.Context, exam *models.Exam, statuses ...string) error {
	expected := exam.Version
	exam.Version = expected + 1

	result := r.db.WithContext(ctx).
		Model(exam).
		Where("version = ?", expected).
		Where("status IN ?", statuses).
		Select("*").
		Omit("id", "created_at").
		Updates(exam)
	if result.Error != nil {
		exam.Version = expected
		return result.Error
	}
	if result.RowsAffected == 0 {
		exam.Version = expected
		return ErrConflict
	}
	return nil
}
