package repository

import (
	"database/sql"

	"llmgateway/internal/database"
	"llmgateway/internal/model"
)

type RankingRepositoryInterface interface {
	GetByModelID(modelID string) (*model.Ranking, error)
	Upsert(ranking *model.Ranking) error
	List() ([]*model.Ranking, error)
}

var _ RankingRepositoryInterface = (*RankingRepository)(nil)

type RankingRepository struct{}

func NewRankingRepository() *RankingRepository {
	return &RankingRepository{}
}

func (r *RankingRepository) GetByModelID(modelID string) (*model.Ranking, error) {
	db := database.GetDB()
	ranking := &model.Ranking{}

	err := db.QueryRow(
		`SELECT model_id, success_rate, avg_latency_ms, quality_score, score, sample_size, calculated_at
		 FROM rankings WHERE model_id = ?`,
		modelID,
	).Scan(
		&ranking.ModelID, &ranking.SuccessRate, &ranking.AvgLatencyMs,
		&ranking.QualityScore, &ranking.Score, &ranking.SampleSize, &ranking.CalculatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ranking, nil
}

func (r *RankingRepository) Upsert(ranking *model.Ranking) error {
	db := database.GetDB()
	_, err := db.Exec(
		`INSERT INTO rankings (model_id, success_rate, avg_latency_ms, quality_score, score, sample_size, calculated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(model_id) DO UPDATE SET
		   success_rate = excluded.success_rate,
		   avg_latency_ms = excluded.avg_latency_ms,
		   quality_score = excluded.quality_score,
		   score = excluded.score,
		   sample_size = excluded.sample_size,
		   calculated_at = excluded.calculated_at`,
		ranking.ModelID, ranking.SuccessRate, ranking.AvgLatencyMs,
		ranking.QualityScore, ranking.Score, ranking.SampleSize, ranking.CalculatedAt,
	)
	return err
}

func (r *RankingRepository) List() ([]*model.Ranking, error) {
	db := database.GetDB()
	rows, err := db.Query(
		`SELECT model_id, success_rate, avg_latency_ms, quality_score, score, sample_size, calculated_at
		 FROM rankings ORDER BY score DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rankings []*model.Ranking
	for rows.Next() {
		ranking := &model.Ranking{}
		err := rows.Scan(
			&ranking.ModelID, &ranking.SuccessRate, &ranking.AvgLatencyMs,
			&ranking.QualityScore, &ranking.Score, &ranking.SampleSize, &ranking.CalculatedAt,
		)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, ranking)
	}
	return rankings, rows.Err()
}
