// Package sqlite implements core.MetadataIndex on SQLite through gorm. The
// driver is pure Go, so no cgo toolchain is needed.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/meigma/dicomblob/core"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// instance is one row of the instances table.
type instance struct {
	ID             uint   `gorm:"primaryKey"`
	StudyUID       string `gorm:"column:study_uid;not null;index:idx_instances_study_series,priority:1"`
	SeriesUID      string `gorm:"column:series_uid;not null;index:idx_instances_study_series,priority:2"`
	SOPInstanceUID string `gorm:"column:sop_instance_uid;not null;uniqueIndex"`
	CreatedAt      time.Time
}

func (instance) TableName() string { return "instances" }

func (r instance) identifier() core.ResourceIdentifier {
	return core.NewResourceIdentifier(r.StudyUID, r.SeriesUID, r.SOPInstanceUID)
}

// Index lists instances in the order they were added.
type Index struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) {
		idx.logger = logger
	}
}

// Open opens or creates the database at dsn and migrates the schema.
func Open(dsn string, opts ...Option) (*Index, error) {
	if dsn == "" {
		return nil, errors.New("sqlite index: dsn is empty")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite index: open %s: %w", dsn, err)
	}
	if dsn == MemoryDSN {
		// Each connection to :memory: is a separate database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&instance{}); err != nil {
		return nil, fmt.Errorf("sqlite index: migrate: %w", err)
	}

	idx := &Index{db: db}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

func (idx *Index) log() *slog.Logger {
	if idx.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return idx.logger
}

// ListInstances returns the instances of study, or of one series when
// series is non-empty.
func (idx *Index) ListInstances(ctx context.Context, study, series string) ([]core.ResourceIdentifier, error) {
	q := idx.db.WithContext(ctx).Where("study_uid = ?", study)
	if series != "" {
		q = q.Where("series_uid = ?", series)
	}
	var rows []instance
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}

	out := make([]core.ResourceIdentifier, len(rows))
	for i, r := range rows {
		out[i] = r.identifier()
	}
	idx.log().Debug("listed instances", "study", study, "series", series, "count", len(out))
	return out, nil
}

// Add inserts id. An existing SOP Instance UID is left unchanged.
func (idx *Index) Add(ctx context.Context, id core.ResourceIdentifier) error {
	if err := id.Validate(); err != nil {
		return err
	}
	row := instance{StudyUID: id.StudyUID, SeriesUID: id.SeriesUID, SOPInstanceUID: id.SOPInstanceUID}
	res := idx.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sop_instance_uid"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return fmt.Errorf("%w: add %s: %v", core.ErrStorageFailure, id, res.Error)
	}
	if res.RowsAffected == 0 {
		idx.log().Debug("instance already indexed", "id", id.String())
	}
	return nil
}

// Close closes the database.
func (idx *Index) Close() error {
	sqlDB, err := idx.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
