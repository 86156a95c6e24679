package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"catalog-import-service/internal/models"
)

// Cache TTL constants
const (
	ProgressTTL = 1 * time.Hour // Progress snapshots outlive the job slightly
)

type ImportJobsRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewImportJobsRepository(db *gorm.DB, redis *redis.Client) *ImportJobsRepository {
	return &ImportJobsRepository{
		db:    db,
		redis: redis,
	}
}

func progressKey(jobID uuid.UUID) string {
	return fmt.Sprintf("catalog:import:progress:%s", jobID.String())
}

func (r *ImportJobsRepository) Create(ctx context.Context, job *models.ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.ImportStatusPending
	}
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *ImportJobsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *ImportJobsRepository) List(ctx context.Context, limit int) ([]models.ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []models.ImportJob
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (r *ImportJobsRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ImportStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Finish stores the final report and terminal status in one update.
func (r *ImportJobsRepository) Finish(ctx context.Context, id uuid.UUID, status models.ImportStatus, report *models.ImportReport, jobErr error) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      status,
		"finished_at": now,
	}
	if report != nil {
		raw, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		payload := models.JSON{}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		updates["report"] = &payload
		updates["total_rows"] = report.Total
		updates["successful"] = report.Successful
		updates["failed"] = report.Failed
	}
	if jobErr != nil {
		msg := jobErr.Error()
		updates["error"] = &msg
	}

	if err := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return err
	}

	// The last progress snapshot stays readable until the TTL expires.
	return nil
}

// SaveProgress writes the latest progress snapshot to Redis. Progress is
// advisory; a write failure never fails the job.
func (r *ImportJobsRepository) SaveProgress(ctx context.Context, jobID uuid.UUID, progress models.Progress) error {
	if r.redis == nil {
		return nil
	}
	raw, err := json.Marshal(progress)
	if err != nil {
		return err
	}
	return r.redis.Set(ctx, progressKey(jobID), raw, ProgressTTL).Err()
}

func (r *ImportJobsRepository) GetProgress(ctx context.Context, jobID uuid.UUID) (*models.Progress, error) {
	if r.redis == nil {
		return nil, redis.Nil
	}
	raw, err := r.redis.Get(ctx, progressKey(jobID)).Bytes()
	if err != nil {
		return nil, err
	}
	var progress models.Progress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}
