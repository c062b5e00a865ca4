package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jsyadav90/abcd-backend2/internal/models"
)

type LogOptions struct {
	BranchID    *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

// Sink receives finished activity entries.
type Sink interface {
	Write(ctx context.Context, entry *models.ActivityLog) error
}

// Recorder turns LogOptions into ActivityLog rows and hands them to every
// sink. The first sink is authoritative: its error is returned. The rest are
// best effort and only logged.
type Recorder struct {
	sinks []Sink
	log   *zap.Logger
}

func NewRecorder(log *zap.Logger, primary Sink, others ...Sink) *Recorder {
	return &Recorder{sinks: append([]Sink{primary}, others...), log: log}
}

func (r *Recorder) Write(ctx context.Context, opts LogOptions) error {
	entry := &models.ActivityLog{
		BranchID:    opts.BranchID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  marshalOrNull(opts.Before),
		AfterData:   marshalOrNull(opts.After),
	}

	for i, s := range r.sinks {
		if err := s.Write(ctx, entry); err != nil {
			if i == 0 {
				return fmt.Errorf("write activity log: %w", err)
			}
			r.log.Warn("activity sink failed",
				zap.String("entity_type", entry.EntityType),
				zap.Uint("entity_id", entry.EntityID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func marshalOrNull(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// DBSink stores entries in the activity_logs table.
type DBSink struct {
	db *gorm.DB
}

func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Write(ctx context.Context, entry *models.ActivityLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

type ListFilter struct {
	BranchID   *uint
	UserID     uint
	EntityType string
	EntityID   uint
	Limit      int
}

// List returns newest entries first.
func (s *DBSink) List(ctx context.Context, f ListFilter) ([]models.ActivityLog, error) {
	q := s.db.WithContext(ctx).Model(&models.ActivityLog{})
	if f.BranchID != nil {
		q = q.Where("branch_id = ?", *f.BranchID)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}

	var logs []models.ActivityLog
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
