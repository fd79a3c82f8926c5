package jobs

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dioptratool/dioptra-web-sub000/internal/bulkdb"
	"github.com/dioptratool/dioptra-web-sub000/internal/categorize"
	"github.com/dioptratool/dioptra-web-sub000/internal/config"
	"github.com/dioptratool/dioptra-web-sub000/internal/costline"
	"github.com/dioptratool/dioptra-web-sub000/internal/importing"
	"github.com/dioptratool/dioptra-web-sub000/internal/logger"
	"github.com/dioptratool/dioptra-web-sub000/internal/models"
	"github.com/dioptratool/dioptra-web-sub000/internal/workflow"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

// ResyncConfig holds configuration for the transaction resync processor
type ResyncConfig struct {
	Schedule  string // Cron schedule
	BatchSize int    // Number of flagged analyses to process per run
	TimeZone  string // Timezone for scheduling
}

// NewDefaultResyncConfig creates a ResyncConfig from env vars with defaults
func NewDefaultResyncConfig() *ResyncConfig {
	schedule := os.Getenv("RESYNC_SCHEDULE")
	if schedule == "" {
		schedule = config.DefaultResyncSchedule
	}

	batchSize := config.ResyncBatchSize
	if bs := os.Getenv("RESYNC_BATCH_SIZE"); bs != "" {
		if parsed, err := strconv.Atoi(bs); err == nil && parsed > 0 {
			batchSize = parsed
		}
	}

	return &ResyncConfig{
		Schedule:  schedule,
		BatchSize: batchSize,
		TimeZone:  config.DefaultTimeZone,
	}
}

// RunResyncScheduler starts the cron job that re-syncs analyses flagged
// needs_transaction_resync after their date range or grants changed.
func RunResyncScheduler(cfg *ResyncConfig, db *pgxpool.Pool) error {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultResyncSchedule
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = config.ResyncBatchSize
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
		logger.GlobalLogger.LogAudit(fmt.Sprintf("Invalid timezone %s, falling back to UTC: %v", cfg.TimeZone, err))
	}

	c := cron.New(cron.WithLocation(loc))

	_, err = c.AddFunc(cfg.Schedule, func() {
		logger.GlobalLogger.LogAudit(fmt.Sprintf("Starting transaction resync job at %s", time.Now().In(loc).Format(time.RFC3339)))
		if err := ProcessFlaggedAnalyses(db, cfg.BatchSize); err != nil {
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Transaction resync job failed: %v", err))
			log.Printf("ERROR: Transaction resync job failed: %v", err)
		} else {
			logger.GlobalLogger.LogAudit("Transaction resync job completed")
		}
	})
	if err != nil {
		return fmt.Errorf("unable to schedule transaction resync processor: %v", err)
	}

	c.Start()
	logger.GlobalLogger.LogAudit(fmt.Sprintf("Transaction resync scheduler started with schedule: %s (timezone: %s)", cfg.Schedule, cfg.TimeZone))
	log.Printf("[AUDIT] Transaction resync scheduler started: %s (%s)", cfg.Schedule, cfg.TimeZone)

	return nil
}

// ProcessFlaggedAnalyses re-syncs up to batchSize flagged analyses. A failed
// analysis is logged and skipped so one bad data set cannot wedge the queue.
func ProcessFlaggedAnalyses(db *pgxpool.Pool, batchSize int) error {
	ctx := context.Background()

	rows, err := db.Query(ctx,
		"SELECT id FROM analyses WHERE needs_transaction_resync ORDER BY id LIMIT $1", batchSize)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := ResyncAnalysis(ctx, db, id); err != nil {
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Transaction resync failed for analysis %d: %v", id, err))
			log.Printf("ERROR: transaction resync failed for analysis %d: %v", id, err)
			continue
		}
		logger.GlobalLogger.LogAudit(fmt.Sprintf("Transaction resync completed for analysis %d", id))
	}
	return nil
}

// ResyncAnalysis re-imports the analysis's transactions from the data store
// and rebuilds everything derived from them: cost line items are synced in
// place, re-categorized, and the classification tables re-ensured, all in
// one transaction. Output costs are recalculated afterwards when the
// workflow still allows it.
func ResyncAnalysis(ctx context.Context, pool *pgxpool.Pool, analysisID int64) error {
	analysis, err := models.GetAnalysis(ctx, pool, analysisID)
	if err != nil {
		return err
	}
	settings, err := models.GetSettings(ctx, pool)
	if err != nil {
		return err
	}
	countries, err := models.GetCountriesByCode(ctx, pool)
	if err != nil {
		return err
	}
	var country *models.Country
	if analysis.CountryID != nil {
		if country, err = models.GetCountry(ctx, pool, *analysis.CountryID); err != nil {
			return err
		}
	}
	codes := models.AnalysisCountryCodes(settings, country, countries)

	err = bulkdb.Atomic(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM transactions WHERE analysis_id = $1", analysisID); err != nil {
			return err
		}
		ok, result := importing.LoadTransactionsFromStore(ctx, tx, tx, analysis, codes)
		if !ok {
			return fmt.Errorf("transaction store import: %s", strings.Join(result.Errors, "; "))
		}
		builder := &costline.Builder{
			Analysis:      analysis,
			Country:       country,
			Countries:     countries,
			FilterEnabled: settings.CountryFilteringEnabled(),
		}
		if err := builder.Sync(ctx, tx); err != nil {
			return err
		}
		if err := categorize.Run(ctx, tx, analysisID); err != nil {
			return err
		}
		if err := costline.EnsureCostTypeCategoryObjects(ctx, tx, analysis); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			"UPDATE analyses SET output_costs = '{}', needs_transaction_resync = false WHERE id = $1", analysisID)
		return err
	})
	if err != nil {
		return err
	}

	state, err := workflow.LoadState(ctx, pool, analysisID)
	if err != nil {
		return err
	}
	return workflow.New(pool, state).CalculateIfPossible(ctx)
}
