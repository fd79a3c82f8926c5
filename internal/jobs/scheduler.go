package jobs

import (
	"fmt"
	"log"

	"github.com/dioptratool/dioptra-web-sub000/internal/logger"
	"github.com/dioptratool/dioptra-web-sub000/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CronService struct {
	config map[string]interface{}
	db     *pgxpool.Pool
}

func NewCronService(cfg map[string]interface{}, db *pgxpool.Pool) serviceiface.Service {
	return &CronService{
		config: cfg,
		db:     db,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	resyncConfig := NewDefaultResyncConfig()

	// Override resync config from services.yaml if provided
	if s.config != nil {
		if schedule, ok := s.config["resync_schedule"].(string); ok && schedule != "" {
			resyncConfig.Schedule = schedule
		}
		if batchSize, ok := s.config["resync_batch_size"].(int); ok && batchSize > 0 {
			resyncConfig.BatchSize = batchSize
		}
	}

	if err := RunResyncScheduler(resyncConfig, s.db); err != nil {
		return fmt.Errorf("failed to start transaction resync scheduler: %v", err)
	}

	logger.GlobalLogger.LogAudit("Cron service started with transaction resync processor")
	log.Println("Cron service started — transaction resync scheduled")

	return nil
}

func (s *CronService) Stop() error {
	return nil
}
