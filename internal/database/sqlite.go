package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

var (
	db   *sql.DB
	once sync.Once
)

func Init(dbPath string) error {
	var err error
	once.Do(func() {
		// 确保数据目录存在
		dir := filepath.Dir(dbPath)
		if dir != "" && dir != "." {
			if err = os.MkdirAll(dir, 0755); err != nil {
				return
			}
		}

		// 连接参数：WAL 模式、忙等待超时
		dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return
		}
		if err = db.Ping(); err != nil {
			return
		}

		// SQLite 单写多读，限制连接池大小
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		err = createTables()
	})
	return err
}

func GetDB() *sql.DB {
	return db
}

func createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS backends (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT UNIQUE NOT NULL,
		base_url TEXT NOT NULL,
		api_key TEXT NOT NULL DEFAULT '',
		format TEXT NOT NULL,
		auth_header TEXT NOT NULL DEFAULT '',
		auth_prefix TEXT NOT NULL DEFAULT '',
		headers_json TEXT NOT NULL DEFAULT '{}',
		rpm_limit INTEGER,
		rpd_limit INTEGER,
		enabled INTEGER DEFAULT 1,
		priority INTEGER DEFAULT 100,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_backends_slug ON backends(slug);

	CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		backend_id TEXT NOT NULL,
		name TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		rpm_limit INTEGER,
		rpd_limit INTEGER,
		input_cost_per_1k REAL DEFAULT 0,
		output_cost_per_1k REAL DEFAULT 0,
		max_tokens INTEGER DEFAULT 0,
		context_window INTEGER DEFAULT 0,
		enabled INTEGER DEFAULT 1,
		is_default INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (backend_id) REFERENCES backends(id)
	);
	CREATE INDEX IF NOT EXISTS idx_models_backend ON models(backend_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_models_backend_name ON models(backend_id, name);

	CREATE TABLE IF NOT EXISTS rankings (
		model_id TEXT PRIMARY KEY,
		success_rate REAL DEFAULT 0,
		avg_latency_ms REAL DEFAULT 0,
		quality_score REAL DEFAULT 0.5,
		score REAL DEFAULT 0,
		sample_size INTEGER DEFAULT 0,
		calculated_at DATETIME,
		FOREIGN KEY (model_id) REFERENCES models(id)
	);

	CREATE TABLE IF NOT EXISTS usage_counters (
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		requests_today INTEGER DEFAULT 0,
		requests_this_minute INTEGER DEFAULT 0,
		last_request_at DATETIME,
		minute_window_start DATETIME,
		day_window_start DATETIME,
		total_tokens INTEGER DEFAULT 0,
		total_calls INTEGER DEFAULT 0,
		total_successes INTEGER DEFAULT 0,
		total_failures INTEGER DEFAULT 0,
		PRIMARY KEY (entity_type, entity_id)
	);

	CREATE TABLE IF NOT EXISTS failover_events (
		id TEXT PRIMARY KEY,
		from_model_id TEXT,
		to_model_id TEXT,
		reason TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		latency_ms INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_failover_events_created ON failover_events(created_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}
