package store

import (
	"context"
	"fmt"

	"hostbin/file-api/internal/model"
)

// ListForOwner returns a page of an owner's uploads, newest first,
// along with the total count for pagination
func (s *DB) ListForOwner(ctx context.Context, ownerID uint, limit, offset int) ([]model.Upload, int64, error) {
	total, err := s.CountForOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, err
	}

	var uploads []model.Upload

	err = s.db.WithContext(ctx).
		Preload("Image").
		Where("user_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&uploads).
		Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list uploads, %w", err)
	}

	return uploads, total, nil
}

// ServiceStats is the public aggregate exposed on the stats endpoint
type ServiceStats struct {
	Uploads   int64 `json:"uploads"`
	Images    int64 `json:"images"`
	TotalSize int64 `json:"total_size"`
	Views     int64 `json:"views"`
}

// Stats aggregates service-wide numbers over public uploads
func (s *DB) Stats(ctx context.Context) (*ServiceStats, error) {
	var stats ServiceStats

	err := s.db.WithContext(ctx).
		Model(model.Upload{}).
		Select("COUNT(*) AS uploads, COALESCE(SUM(size), 0) AS total_size, COALESCE(SUM(viewed), 0) AS views").
		Where("private = ?", false).
		Scan(&stats).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate upload stats, %w", err)
	}

	err = s.db.WithContext(ctx).
		Model(model.Image{}).
		Count(&stats.Images).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to count images, %w", err)
	}

	return &stats, nil
}
