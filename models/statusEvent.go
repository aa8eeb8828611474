package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/warehouse_backend/config"
	"bitbucket.org/mmdatafocus/warehouse_backend/utils"
	"gorm.io/gorm"
)

// StatusEvent is the append-only audit trail of status transitions for
// lots and orders. It exists for audit display; transition guards read the
// aggregate's current status, never this log.
type StatusEvent struct {
	ID            int           `gorm:"primary_key" json:"id"`
	AggregateKind AggregateKind `gorm:"size:10;index:idx_status_event_agg,priority:1;not null" json:"aggregate_kind"`
	AggregateId   int           `gorm:"index:idx_status_event_agg,priority:2;not null" json:"aggregate_id"`
	FromStatus    string        `gorm:"size:32;not null" json:"from_status"`
	ToStatus      string        `gorm:"size:32;not null" json:"to_status"`
	UserId        int           `gorm:"index" json:"user_id"`
	UserName      string        `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

// RecordStatusEvent appends a transition inside the caller's transaction.
func RecordStatusEvent(tx *gorm.DB, kind AggregateKind, aggregateId int, from, to string) error {
	event := StatusEvent{
		AggregateKind: kind,
		AggregateId:   aggregateId,
		FromStatus:    from,
		ToStatus:      to,
	}
	ctx := tx.Statement.Context
	if ctx != nil {
		if userId, ok := utils.GetUserIdFromContext(ctx); ok {
			event.UserId = userId
		}
		if userName, ok := utils.GetUserNameFromContext(ctx); ok {
			event.UserName = userName
		}
	}
	return tx.Create(&event).Error
}

func GetStatusEvents(ctx context.Context, kind AggregateKind, aggregateId int) ([]*StatusEvent, error) {
	db := config.GetDB()
	var results []*StatusEvent

	err := db.WithContext(ctx).
		Where("aggregate_kind = ? AND aggregate_id = ?", kind, aggregateId).
		Order("created_at, id").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
