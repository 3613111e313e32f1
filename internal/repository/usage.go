package repository

import (
	"database/sql"
	"time"

	"llmgateway/internal/database"
	"llmgateway/internal/model"
)

type UsageRepositoryInterface interface {
	Get(entityType model.EntityType, entityID string) (*model.Usage, error)
	// Upsert 写入计数快照，不存在则插入
	Upsert(usage *model.Usage) error
	List() ([]*model.Usage, error)
	// ResetDailyBefore 将日窗口早于 cutoff 的计数清零
	ResetDailyBefore(cutoff time.Time) error
}

var _ UsageRepositoryInterface = (*UsageRepository)(nil)

type UsageRepository struct{}

func NewUsageRepository() *UsageRepository {
	return &UsageRepository{}
}

const usageColumns = `entity_type, entity_id, requests_today, requests_this_minute, last_request_at, minute_window_start, day_window_start, total_tokens, total_calls, total_successes, total_failures`

func scanUsage(row interface{ Scan(...interface{}) error }) (*model.Usage, error) {
	u := &model.Usage{}
	var lastRequest, minuteStart, dayStart sql.NullTime
	err := row.Scan(
		&u.EntityType, &u.EntityID, &u.RequestsToday, &u.RequestsThisMinute,
		&lastRequest, &minuteStart, &dayStart,
		&u.TotalTokens, &u.TotalCalls, &u.TotalSuccesses, &u.TotalFailures,
	)
	if err != nil {
		return nil, err
	}
	if lastRequest.Valid {
		t := lastRequest.Time
		u.LastRequestAt = &t
	}
	u.MinuteWindowStart = minuteStart.Time
	u.DayWindowStart = dayStart.Time
	return u, nil
}

func (r *UsageRepository) Get(entityType model.EntityType, entityID string) (*model.Usage, error) {
	db := database.GetDB()
	u, err := scanUsage(db.QueryRow(
		`SELECT `+usageColumns+` FROM usage_counters WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UsageRepository) Upsert(usage *model.Usage) error {
	db := database.GetDB()
	_, err := db.Exec(
		`INSERT INTO usage_counters (`+usageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(entity_type, entity_id) DO UPDATE SET
		   requests_today = excluded.requests_today,
		   requests_this_minute = excluded.requests_this_minute,
		   last_request_at = excluded.last_request_at,
		   minute_window_start = excluded.minute_window_start,
		   day_window_start = excluded.day_window_start,
		   total_tokens = excluded.total_tokens,
		   total_calls = excluded.total_calls,
		   total_successes = excluded.total_successes,
		   total_failures = excluded.total_failures`,
		usage.EntityType, usage.EntityID, usage.RequestsToday, usage.RequestsThisMinute,
		usage.LastRequestAt, usage.MinuteWindowStart, usage.DayWindowStart,
		usage.TotalTokens, usage.TotalCalls, usage.TotalSuccesses, usage.TotalFailures,
	)
	return err
}

func (r *UsageRepository) List() ([]*model.Usage, error) {
	db := database.GetDB()
	rows, err := db.Query(`SELECT ` + usageColumns + ` FROM usage_counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usages []*model.Usage
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}

func (r *UsageRepository) ResetDailyBefore(cutoff time.Time) error {
	db := database.GetDB()
	_, err := db.Exec(
		`UPDATE usage_counters SET requests_today = 0, day_window_start = ? WHERE day_window_start < ?`,
		cutoff, cutoff,
	)
	return err
}
