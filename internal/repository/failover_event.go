package repository

import (
	"time"

	"llmgateway/internal/database"
	"llmgateway/internal/model"

	"github.com/google/uuid"
)

type FailoverEventRepositoryInterface interface {
	Append(event *model.FailoverEvent) error
	// List 按时间倒序返回最近的事件，limit 上限 500
	List(limit int) ([]*model.FailoverEvent, error)
}

var _ FailoverEventRepositoryInterface = (*FailoverEventRepository)(nil)

type FailoverEventRepository struct{}

func NewFailoverEventRepository() *FailoverEventRepository {
	return &FailoverEventRepository{}
}

func (r *FailoverEventRepository) Append(event *model.FailoverEvent) error {
	db := database.GetDB()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	_, err := db.Exec(
		`INSERT INTO failover_events (id, from_model_id, to_model_id, reason, error_message, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.FromModelID, event.ToModelID, event.Reason,
		event.ErrorMessage, event.LatencyMs, event.CreatedAt,
	)
	return err
}

func (r *FailoverEventRepository) List(limit int) ([]*model.FailoverEvent, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	db := database.GetDB()
	rows, err := db.Query(
		`SELECT id, from_model_id, to_model_id, reason, error_message, latency_ms, created_at
		 FROM failover_events ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*model.FailoverEvent
	for rows.Next() {
		event := &model.FailoverEvent{}
		err := rows.Scan(
			&event.ID, &event.FromModelID, &event.ToModelID, &event.Reason,
			&event.ErrorMessage, &event.LatencyMs, &event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
