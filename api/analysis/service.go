package analysis

import (
	"github.com/dioptratool/dioptra-web-sub000/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalysisService is a lightweight service wrapper for the analysis API
type AnalysisService struct {
	cfg  map[string]interface{}
	pool *pgxpool.Pool
}

// NewAnalysisService constructs an AnalysisService around a pgx pool instance.
func NewAnalysisService(cfg map[string]interface{}, pool *pgxpool.Pool) serviceiface.Service {
	return &AnalysisService{cfg: cfg, pool: pool}
}

func (s *AnalysisService) Name() string {
	return "analysis"
}

func (s *AnalysisService) Start() error {
	go StartAnalysisService(s.pool)
	return nil
}

func (s *AnalysisService) Stop() error {
	return nil
}
