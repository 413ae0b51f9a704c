package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/estatebill/internal/generation/domain"
	"gorm.io/gorm"
)

const defaultLogLimit = 20

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertLog(ctx context.Context, db *gorm.DB, entry *domain.GenerationLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) FindLog(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.GenerationLog, error) {
	var entry domain.GenerationLog
	err := db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repo) ListLogs(ctx context.Context, db *gorm.DB, req domain.ListLogsRequest) ([]domain.GenerationLog, error) {
	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = defaultLogLimit
	}
	stmt := db.WithContext(ctx).Model(&domain.GenerationLog{})
	if req.TargetPeriod != "" {
		stmt = stmt.Where("target_period = ?", req.TargetPeriod)
	}
	var rows []domain.GenerationLog
	if err := stmt.Order("created_at desc, id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
