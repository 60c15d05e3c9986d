package repository

import (
	"context"
	"fmt"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"

	"gorm.io/gorm"
)

type alarmRow struct {
	ID          string  `gorm:"primaryKey;size:36"`
	DeviceID    string  `gorm:"size:128;not null;index"`
	PushToken   string  `gorm:"size:512"`
	ProductCode string  `gorm:"size:32;not null"`
	Side        string  `gorm:"size:8;not null"`
	Condition   string  `gorm:"size:8;not null"`
	TargetPrice float64 `gorm:"not null"`
	IsTriggered bool    `gorm:"not null;default:false;index:idx_alarm_pending,priority:2"`
	TriggeredAt *time.Time
	IsActive    bool `gorm:"not null;default:true;index:idx_alarm_pending,priority:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (alarmRow) TableName() string { return "price_alarms" }

// AlarmRepository reads pending alarms and records triggers in Postgres.
type AlarmRepository struct {
	db *gorm.DB
}

var _ drepo.AlarmRepository = (*AlarmRepository)(nil)

func NewAlarmRepository(db *gorm.DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

func (r *AlarmRepository) ListActive(ctx context.Context) ([]models.Alarm, error) {
	var rows []alarmRow
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND is_triggered = ?", true, false).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list active alarms: %w", err)
	}
	out := make([]models.Alarm, 0, len(rows))
	for _, row := range rows {
		side, err := models.ParseSide(row.Side)
		if err != nil {
			continue
		}
		out = append(out, models.Alarm{
			ID:          row.ID,
			DeviceID:    row.DeviceID,
			PushToken:   row.PushToken,
			ProductCode: row.ProductCode,
			Side:        side,
			Condition:   models.Condition(row.Condition),
			TargetPrice: row.TargetPrice,
			IsTriggered: row.IsTriggered,
			TriggeredAt: row.TriggeredAt,
			IsActive:    row.IsActive,
		})
	}
	return out, nil
}

// MarkTriggered only updates a row that is still untriggered, so concurrent
// evaluators cannot fire the same alarm twice.
func (r *AlarmRepository) MarkTriggered(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&alarmRow{}).
		Where("id = ? AND is_triggered = ?", id, false).
		Updates(map[string]interface{}{"is_triggered": true, "triggered_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("mark alarm %s triggered: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
