package repository

import (
	"database/sql"
	"time"

	"llmgateway/internal/database"
	"llmgateway/internal/model"

	"github.com/google/uuid"
)

type BackendRepositoryInterface interface {
	Create(backend *model.Backend) error
	GetByID(id string) (*model.Backend, error)
	GetBySlug(slug string) (*model.Backend, error)
	List() ([]*model.Backend, error)
	ListEnabled() ([]*model.Backend, error)
	Update(backend *model.Backend) error
	SetEnabled(id string, enabled bool) error
	Delete(id string) error
}

var _ BackendRepositoryInterface = (*BackendRepository)(nil)

type BackendRepository struct{}

func NewBackendRepository() *BackendRepository {
	return &BackendRepository{}
}

const backendColumns = `id, name, slug, base_url, api_key, format, auth_header, auth_prefix, headers_json, rpm_limit, rpd_limit, enabled, priority, created_at, updated_at`

func scanBackend(row interface{ Scan(...interface{}) error }) (*model.Backend, error) {
	b := &model.Backend{}
	err := row.Scan(
		&b.ID, &b.Name, &b.Slug, &b.BaseURL, &b.APIKey, &b.Format,
		&b.AuthHeader, &b.AuthPrefix, &b.HeadersJSON, &b.RPMLimit, &b.RPDLimit,
		&b.Enabled, &b.Priority, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BackendRepository) Create(backend *model.Backend) error {
	db := database.GetDB()
	if backend.ID == "" {
		backend.ID = uuid.New().String()
	}
	now := time.Now()
	backend.CreatedAt = now
	backend.UpdatedAt = now

	_, err := db.Exec(
		`INSERT INTO backends (`+backendColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		backend.ID, backend.Name, backend.Slug, backend.BaseURL, backend.APIKey, backend.Format,
		backend.AuthHeader, backend.AuthPrefix, backend.HeadersJSON, backend.RPMLimit, backend.RPDLimit,
		backend.Enabled, backend.Priority, backend.CreatedAt, backend.UpdatedAt,
	)
	return err
}

func (r *BackendRepository) GetByID(id string) (*model.Backend, error) {
	db := database.GetDB()
	b, err := scanBackend(db.QueryRow(`SELECT `+backendColumns+` FROM backends WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BackendRepository) GetBySlug(slug string) (*model.Backend, error) {
	db := database.GetDB()
	b, err := scanBackend(db.QueryRow(`SELECT `+backendColumns+` FROM backends WHERE slug = ?`, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *BackendRepository) List() ([]*model.Backend, error) {
	return r.list(`SELECT ` + backendColumns + ` FROM backends ORDER BY priority ASC, created_at DESC`)
}

func (r *BackendRepository) ListEnabled() ([]*model.Backend, error) {
	return r.list(`SELECT ` + backendColumns + ` FROM backends WHERE enabled = 1 ORDER BY priority ASC`)
}

func (r *BackendRepository) list(query string) ([]*model.Backend, error) {
	db := database.GetDB()
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var backends []*model.Backend
	for rows.Next() {
		b, err := scanBackend(rows)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return backends, rows.Err()
}

func (r *BackendRepository) Update(backend *model.Backend) error {
	db := database.GetDB()
	backend.UpdatedAt = time.Now()

	_, err := db.Exec(
		`UPDATE backends SET name = ?, slug = ?, base_url = ?, api_key = ?, format = ?, auth_header = ?, auth_prefix = ?, headers_json = ?, rpm_limit = ?, rpd_limit = ?, enabled = ?, priority = ?, updated_at = ?
		 WHERE id = ?`,
		backend.Name, backend.Slug, backend.BaseURL, backend.APIKey, backend.Format,
		backend.AuthHeader, backend.AuthPrefix, backend.HeadersJSON, backend.RPMLimit, backend.RPDLimit,
		backend.Enabled, backend.Priority, backend.UpdatedAt,
		backend.ID,
	)
	return err
}

func (r *BackendRepository) SetEnabled(id string, enabled bool) error {
	db := database.GetDB()
	_, err := db.Exec(`UPDATE backends SET enabled = ?, updated_at = ? WHERE id = ?`, enabled, time.Now(), id)
	return err
}

func (r *BackendRepository) Delete(id string) error {
	db := database.GetDB()
	_, err := db.Exec(`DELETE FROM backends WHERE id = ?`, id)
	return err
}
