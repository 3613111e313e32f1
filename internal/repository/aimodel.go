package repository

import (
	"database/sql"
	"time"

	"llmgateway/internal/database"
	"llmgateway/internal/model"

	"github.com/google/uuid"
)

type ModelRepositoryInterface interface {
	Create(m *model.Model) error
	GetByID(id string) (*model.Model, error)
	GetByName(backendID, name string) (*model.Model, error)
	ListByBackend(backendID string) ([]*model.Model, error)
	ListEnabledByBackend(backendID string) ([]*model.Model, error)
	// ListEnabledDetailed 一次性联表读出所有启用后端下的启用模型及其排名
	ListEnabledDetailed() ([]*model.ModelDetail, error)
	Update(m *model.Model) error
	SetEnabled(id string, enabled bool) error
	Delete(id string) error
}

var _ ModelRepositoryInterface = (*ModelRepository)(nil)

type ModelRepository struct{}

func NewModelRepository() *ModelRepository {
	return &ModelRepository{}
}

const modelColumns = `id, backend_id, name, display_name, rpm_limit, rpd_limit, input_cost_per_1k, output_cost_per_1k, max_tokens, context_window, enabled, is_default, created_at, updated_at`

func scanModel(row interface{ Scan(...interface{}) error }) (*model.Model, error) {
	m := &model.Model{}
	err := row.Scan(
		&m.ID, &m.BackendID, &m.Name, &m.DisplayName, &m.RPMLimit, &m.RPDLimit,
		&m.InputCostPer1K, &m.OutputCostPer1K, &m.MaxTokens, &m.ContextWindow,
		&m.Enabled, &m.IsDefault, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *ModelRepository) Create(m *model.Model) error {
	db := database.GetDB()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := db.Exec(
		`INSERT INTO models (`+modelColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BackendID, m.Name, m.DisplayName, m.RPMLimit, m.RPDLimit,
		m.InputCostPer1K, m.OutputCostPer1K, m.MaxTokens, m.ContextWindow,
		m.Enabled, m.IsDefault, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

func (r *ModelRepository) GetByID(id string) (*model.Model, error) {
	db := database.GetDB()
	m, err := scanModel(db.QueryRow(`SELECT `+modelColumns+` FROM models WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *ModelRepository) GetByName(backendID, name string) (*model.Model, error) {
	db := database.GetDB()
	m, err := scanModel(db.QueryRow(`SELECT `+modelColumns+` FROM models WHERE backend_id = ? AND name = ?`, backendID, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *ModelRepository) ListByBackend(backendID string) ([]*model.Model, error) {
	return r.list(`SELECT `+modelColumns+` FROM models WHERE backend_id = ? ORDER BY is_default DESC, name ASC`, backendID)
}

func (r *ModelRepository) ListEnabledByBackend(backendID string) ([]*model.Model, error) {
	return r.list(`SELECT `+modelColumns+` FROM models WHERE backend_id = ? AND enabled = 1 ORDER BY is_default DESC, name ASC`, backendID)
}

func (r *ModelRepository) list(query string, args ...interface{}) ([]*model.Model, error) {
	db := database.GetDB()
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var models []*model.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

func (r *ModelRepository) ListEnabledDetailed() ([]*model.ModelDetail, error) {
	db := database.GetDB()
	rows, err := db.Query(
		`SELECT m.id, m.backend_id, m.name, m.display_name, m.rpm_limit, m.rpd_limit,
		        m.input_cost_per_1k, m.output_cost_per_1k, m.max_tokens, m.context_window,
		        m.enabled, m.is_default, m.created_at, m.updated_at,
		        b.id, b.name, b.slug, b.base_url, b.api_key, b.format,
		        b.auth_header, b.auth_prefix, b.headers_json, b.rpm_limit, b.rpd_limit,
		        b.enabled, b.priority, b.created_at, b.updated_at,
		        r.success_rate, r.avg_latency_ms, r.quality_score, r.score, r.sample_size, r.calculated_at
		 FROM models m
		 JOIN backends b ON b.id = m.backend_id
		 LEFT JOIN rankings r ON r.model_id = m.id
		 WHERE m.enabled = 1 AND b.enabled = 1
		 ORDER BY b.priority ASC, m.is_default DESC, m.name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []*model.ModelDetail
	for rows.Next() {
		m := &model.Model{}
		b := &model.Backend{}
		var successRate, avgLatency, quality, score sql.NullFloat64
		var sampleSize sql.NullInt64
		var calculatedAt sql.NullTime

		err := rows.Scan(
			&m.ID, &m.BackendID, &m.Name, &m.DisplayName, &m.RPMLimit, &m.RPDLimit,
			&m.InputCostPer1K, &m.OutputCostPer1K, &m.MaxTokens, &m.ContextWindow,
			&m.Enabled, &m.IsDefault, &m.CreatedAt, &m.UpdatedAt,
			&b.ID, &b.Name, &b.Slug, &b.BaseURL, &b.APIKey, &b.Format,
			&b.AuthHeader, &b.AuthPrefix, &b.HeadersJSON, &b.RPMLimit, &b.RPDLimit,
			&b.Enabled, &b.Priority, &b.CreatedAt, &b.UpdatedAt,
			&successRate, &avgLatency, &quality, &score, &sampleSize, &calculatedAt,
		)
		if err != nil {
			return nil, err
		}

		detail := &model.ModelDetail{Model: m, Backend: b}
		if score.Valid {
			detail.Ranking = &model.Ranking{
				ModelID:      m.ID,
				SuccessRate:  successRate.Float64,
				AvgLatencyMs: avgLatency.Float64,
				QualityScore: quality.Float64,
				Score:        score.Float64,
				SampleSize:   sampleSize.Int64,
				CalculatedAt: calculatedAt.Time,
			}
		}
		details = append(details, detail)
	}
	return details, rows.Err()
}

func (r *ModelRepository) Update(m *model.Model) error {
	db := database.GetDB()
	m.UpdatedAt = time.Now()

	// backend_id 创建后不可变更，不在 UPDATE 列表中
	_, err := db.Exec(
		`UPDATE models SET name = ?, display_name = ?, rpm_limit = ?, rpd_limit = ?, input_cost_per_1k = ?, output_cost_per_1k = ?, max_tokens = ?, context_window = ?, enabled = ?, is_default = ?, updated_at = ?
		 WHERE id = ?`,
		m.Name, m.DisplayName, m.RPMLimit, m.RPDLimit, m.InputCostPer1K, m.OutputCostPer1K,
		m.MaxTokens, m.ContextWindow, m.Enabled, m.IsDefault, m.UpdatedAt,
		m.ID,
	)
	return err
}

func (r *ModelRepository) SetEnabled(id string, enabled bool) error {
	db := database.GetDB()
	_, err := db.Exec(`UPDATE models SET enabled = ?, updated_at = ? WHERE id = ?`, enabled, time.Now(), id)
	return err
}

func (r *ModelRepository) Delete(id string) error {
	db := database.GetDB()
	_, err := db.Exec(`DELETE FROM models WHERE id = ?`, id)
	return err
}
