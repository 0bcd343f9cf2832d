package repository

import (
	"fmt"
	"time"

	"ChromaFM/model"

	"gorm.io/gorm"
)

// ScanHistoryRepository records extraction runs. Implemented with GORM; this
// is the newer persistence path and coexists with the database/sql stores.
type ScanHistoryRepository interface {
	StartScan(directory string) (int64, error)
	EndScan(id int64, totalFiles, successfulFiles, errs int) error
	RecentScans(limit int) ([]*model.ScanHistory, error)
}

type gormScanHistoryRepository struct {
	db *gorm.DB
}

// NewGormScanHistoryRepository creates a GORM-backed scan history repository.
func NewGormScanHistoryRepository(db *gorm.DB) ScanHistoryRepository {
	return &gormScanHistoryRepository{db: db}
}

func (r *gormScanHistoryRepository) StartScan(directory string) (int64, error) {
	record := &model.ScanHistory{Directory: directory}
	if err := r.db.Create(record).Error; err != nil {
		return 0, fmt.Errorf("failed to create scan history record: %w", err)
	}
	return record.ID, nil
}

func (r *gormScanHistoryRepository) EndScan(id int64, totalFiles, successfulFiles, errs int) error {
	now := time.Now()
	err := r.db.Model(&model.ScanHistory{}).Where("id = ?", id).Updates(map[string]interface{}{
		"end_time":         &now,
		"total_files":      totalFiles,
		"successful_files": successfulFiles,
		"errors":           errs,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to finalize scan history record %d: %w", id, err)
	}
	return nil
}

func (r *gormScanHistoryRepository) RecentScans(limit int) ([]*model.ScanHistory, error) {
	var scans []*model.ScanHistory
	if err := r.db.Order("start_time DESC").Limit(limit).Find(&scans).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent scans: %w", err)
	}
	return scans, nil
}
