package ranking

import (
	"sync"
	"testing"
	"time"

	"llmgateway/internal/model"
)

type fakeRankingRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Ranking
}

func newFakeRankingRepo() *fakeRankingRepo {
	return &fakeRankingRepo{rows: make(map[string]*model.Ranking)}
}

func (f *fakeRankingRepo) GetByModelID(modelID string) (*model.Ranking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[modelID]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeRankingRepo) Upsert(ranking *model.Ranking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *ranking
	f.rows[ranking.ModelID] = &copied
	return nil
}

func (f *fakeRankingRepo) List() ([]*model.Ranking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Ranking
	for _, r := range f.rows {
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

type fakeEngineUsageRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Usage
}

func newFakeEngineUsageRepo() *fakeEngineUsageRepo {
	return &fakeEngineUsageRepo{rows: make(map[string]*model.Usage)}
}

func (f *fakeEngineUsageRepo) Get(entityType model.EntityType, entityID string) (*model.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[string(entityType)+":"+entityID], nil
}

func (f *fakeEngineUsageRepo) Upsert(usage *model.Usage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[string(usage.EntityType)+":"+usage.EntityID] = usage
	return nil
}

func (f *fakeEngineUsageRepo) List() ([]*model.Usage, error) { return nil, nil }

func (f *fakeEngineUsageRepo) ResetDailyBefore(cutoff time.Time) error { return nil }

type fakeModelRepo struct {
	details []*model.ModelDetail
}

func (f *fakeModelRepo) Create(m *model.Model) error                  { return nil }
func (f *fakeModelRepo) GetByID(id string) (*model.Model, error)      { return nil, nil }
func (f *fakeModelRepo) GetByName(backendID, name string) (*model.Model, error) {
	return nil, nil
}
func (f *fakeModelRepo) ListByBackend(backendID string) ([]*model.Model, error) {
	return nil, nil
}
func (f *fakeModelRepo) ListEnabledByBackend(backendID string) ([]*model.Model, error) {
	return nil, nil
}
func (f *fakeModelRepo) ListEnabledDetailed() ([]*model.ModelDetail, error) {
	return f.details, nil
}
func (f *fakeModelRepo) Update(m *model.Model) error              { return nil }
func (f *fakeModelRepo) SetEnabled(id string, enabled bool) error { return nil }
func (f *fakeModelRepo) Delete(id string) error                   { return nil }

func newTestEngine() (*Engine, *fakeRankingRepo, *fakeEngineUsageRepo, *fakeModelRepo) {
	rankings := newFakeRankingRepo()
	usages := newFakeEngineUsageRepo()
	models := &fakeModelRepo{}
	e := NewEngine(rankings, usages, models)
	return e, rankings, usages, models
}

func TestComputeScore(t *testing.T) {
	e, _, _, _ := newTestEngine()

	cases := []struct {
		name         string
		successRate  float64
		avgLatencyMs float64
		quality      float64
		want         float64
	}{
		{"perfect with default quality", 1.0, 0, model.DefaultQualityScore, 0.85},
		{"typical", 0.8, 2000, model.DefaultQualityScore, 0.71},
		{"failing and slow", 0, 10000, model.DefaultQualityScore, 0.15},
		{"latency beyond cap is clamped", 0, 50000, model.DefaultQualityScore, 0.15},
		{"everything maxed", 1.0, 0, 1.0, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.ComputeScore(tc.successRate, tc.avgLatencyMs, tc.quality); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRecalculateForModel(t *testing.T) {
	e, rankings, usages, _ := newTestEngine()

	_ = usages.Upsert(&model.Usage{
		EntityType:     model.EntityModel,
		EntityID:       "m1",
		TotalCalls:     10,
		TotalSuccesses: 8,
		TotalFailures:  2,
	})
	// 进程内延迟样本
	e.mu.Lock()
	e.stats["m1"] = &modelStats{latencySumMs: 20000, latencyCount: 10}
	e.mu.Unlock()

	if err := e.RecalculateForModel("m1"); err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}

	r, _ := rankings.GetByModelID("m1")
	if r == nil {
		t.Fatal("ranking row not written")
	}
	if r.SuccessRate != 0.8 {
		t.Errorf("unexpected success rate: %v", r.SuccessRate)
	}
	if r.AvgLatencyMs != 2000 {
		t.Errorf("unexpected avg latency: %v", r.AvgLatencyMs)
	}
	if r.QualityScore != model.DefaultQualityScore {
		t.Errorf("new rankings start at the default quality: %v", r.QualityScore)
	}
	if r.Score != 0.71 {
		t.Errorf("unexpected score: %v", r.Score)
	}
	if r.SampleSize != 10 {
		t.Errorf("unexpected sample size: %d", r.SampleSize)
	}
}

func TestRecalculateUnusedModelIsNoop(t *testing.T) {
	e, rankings, _, _ := newTestEngine()

	if err := e.RecalculateForModel("never-called"); err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	if r, _ := rankings.GetByModelID("never-called"); r != nil {
		t.Fatal("unused models must never get a ranking row")
	}
}

func TestRecalculatePreservesQuality(t *testing.T) {
	e, rankings, usages, _ := newTestEngine()

	_ = rankings.Upsert(&model.Ranking{ModelID: "m1", QualityScore: 0.9, AvgLatencyMs: 1500})
	_ = usages.Upsert(&model.Usage{
		EntityType:     model.EntityModel,
		EntityID:       "m1",
		TotalCalls:     4,
		TotalSuccesses: 4,
	})

	if err := e.RecalculateForModel("m1"); err != nil {
		t.Fatalf("recalculate failed: %v", err)
	}
	r, _ := rankings.GetByModelID("m1")
	if r.QualityScore != 0.9 {
		t.Errorf("manual quality score must survive recalculation: %v", r.QualityScore)
	}
	// 无进程内样本时沿用已存储的平均延迟
	if r.AvgLatencyMs != 1500 {
		t.Errorf("stored latency must be used as fallback: %v", r.AvgLatencyMs)
	}
}

func TestTrackCallTriggersRecalc(t *testing.T) {
	e, rankings, usages, _ := newTestEngine()

	_ = usages.Upsert(&model.Usage{
		EntityType:     model.EntityModel,
		EntityID:       "m1",
		TotalCalls:     100,
		TotalSuccesses: 100,
	})

	for i := 0; i < recalcInterval-1; i++ {
		e.TrackCall("m1", true, 100)
	}
	if r, _ := rankings.GetByModelID("m1"); r != nil {
		t.Fatal("recalculation must not fire before the interval")
	}

	e.TrackCall("m1", true, 100)
	r, _ := rankings.GetByModelID("m1")
	if r == nil {
		t.Fatal("recalculation must fire on the interval boundary")
	}
	if r.AvgLatencyMs != 100 {
		t.Errorf("unexpected avg latency: %v", r.AvgLatencyMs)
	}
}

func TestSetQualityScore(t *testing.T) {
	e, rankings, _, _ := newTestEngine()

	_ = rankings.Upsert(&model.Ranking{
		ModelID:      "m1",
		SuccessRate:  1.0,
		AvgLatencyMs: 0,
		QualityScore: model.DefaultQualityScore,
		Score:        0.85,
		SampleSize:   50,
	})

	if err := e.SetQualityScore("m1", 1.0); err != nil {
		t.Fatalf("SetQualityScore failed: %v", err)
	}
	r, _ := rankings.GetByModelID("m1")
	if r.QualityScore != 1.0 {
		t.Errorf("quality not updated: %v", r.QualityScore)
	}
	// 0.4*1 + 0.3*1 + 0.3*1
	if r.Score != 1.0 {
		t.Errorf("score must be recomputed immediately: %v", r.Score)
	}
	if r.SampleSize != 50 {
		t.Errorf("sample size must be preserved: %d", r.SampleSize)
	}
}

func TestSetQualityScoreClampsAndCreates(t *testing.T) {
	e, rankings, _, _ := newTestEngine()

	if err := e.SetQualityScore("fresh", 1.7); err != nil {
		t.Fatalf("SetQualityScore failed: %v", err)
	}
	r, _ := rankings.GetByModelID("fresh")
	if r == nil {
		t.Fatal("a ranking row must be created for models without one")
	}
	if r.QualityScore != 1.0 {
		t.Errorf("quality must be clamped to [0,1]: %v", r.QualityScore)
	}

	if err := e.SetQualityScore("fresh", -0.5); err != nil {
		t.Fatalf("SetQualityScore failed: %v", err)
	}
	r, _ = rankings.GetByModelID("fresh")
	if r.QualityScore != 0 {
		t.Errorf("quality must be clamped to [0,1]: %v", r.QualityScore)
	}
}

func TestRecalculateAll(t *testing.T) {
	e, rankings, usages, models := newTestEngine()

	models.details = []*model.ModelDetail{
		{Model: &model.Model{ID: "m1"}},
		{Model: &model.Model{ID: "m2"}},
	}
	_ = usages.Upsert(&model.Usage{EntityType: model.EntityModel, EntityID: "m1", TotalCalls: 2, TotalSuccesses: 2})
	// m2 has no usage and must be skipped

	if err := e.RecalculateAll(); err != nil {
		t.Fatalf("RecalculateAll failed: %v", err)
	}
	if r, _ := rankings.GetByModelID("m1"); r == nil {
		t.Error("m1 should have been recalculated")
	}
	if r, _ := rankings.GetByModelID("m2"); r != nil {
		t.Error("m2 has no usage and must not get a ranking")
	}
}
