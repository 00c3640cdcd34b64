package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/epiflow/epiflow/internal/model"
)

// RunRow is one run in the runs table.
type RunRow struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Seed         string    `gorm:"column:seed"` // decimal uint64
	Population   int       `gorm:"column:population"`
	Locations    int       `gorm:"column:locations"`
	MaxCycles    int       `gorm:"column:max_cycles"`
	Status       string    `gorm:"column:status"`
	Error        string    `gorm:"column:error"`
	Cycles       int       `gorm:"column:cycles"`
	PeakInfected int       `gorm:"column:peak_infected"`
	PeakCycle    int       `gorm:"column:peak_cycle"`
	Healthy      int       `gorm:"column:healthy"`
	Infected     int       `gorm:"column:infected"`
	Recovered    int       `gorm:"column:recovered"`
	Dead         int       `gorm:"column:dead"`
	DurationMS   int64     `gorm:"column:duration_ms"`
	StartedAt    time.Time `gorm:"column:started_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (RunRow) TableName() string { return "epiflow_runs" }

// CycleRow is one census in the cycles table.
type CycleRow struct {
	RunID     string `gorm:"column:run_id;primaryKey"`
	Cycle     int64  `gorm:"column:cycle;primaryKey"`
	Healthy   int    `gorm:"column:healthy"`
	Infected  int    `gorm:"column:infected"`
	Recovered int    `gorm:"column:recovered"`
	Dead      int    `gorm:"column:dead"`
}

func (CycleRow) TableName() string { return "epiflow_cycles" }

// PostgresSink records runs and their per-cycle census in PostgreSQL.
// Cycle rows are buffered and inserted in batches.
type PostgresSink struct {
	db        *gorm.DB
	run       string
	batchSize int
	pending   []CycleRow
}

// OpenPostgres opens a gorm handle on dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// NewPostgresSink connects to dsn and migrates the tables.
func NewPostgresSink(dsn string, batchSize int) (*PostgresSink, error) {
	db, err := OpenPostgres(dsn)
	if err != nil {
		return nil, err
	}
	return newPostgresSink(db, batchSize)
}

func newPostgresSink(db *gorm.DB, batchSize int) (*PostgresSink, error) {
	if err := db.AutoMigrate(&RunRow{}, &CycleRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &PostgresSink{db: db, batchSize: batchSize}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

// Start inserts the run row, replacing any previous row with the same id.
func (s *PostgresSink) Start(ctx context.Context, run model.RunInfo) error {
	s.run = run.ID
	s.pending = s.pending[:0]
	row := newRunRow(run)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func newRunRow(run model.RunInfo) RunRow {
	return RunRow{
		ID:         run.ID,
		Seed:       strconv.FormatUint(run.Seed, 10),
		Population: run.Population,
		Locations:  run.Locations,
		MaxCycles:  run.MaxCycles,
		Status:     "running",
		StartedAt:  run.StartedAt,
		UpdatedAt:  time.Now(),
	}
}

// Cycle buffers the census and flushes full batches.
func (s *PostgresSink) Cycle(ctx context.Context, r CycleReport) error {
	s.pending = append(s.pending, CycleRow{
		RunID:     s.run,
		Cycle:     int64(r.Cycle),
		Healthy:   r.Counts[model.Healthy],
		Infected:  r.Counts[model.Infected],
		Recovered: r.Counts[model.Recovered],
		Dead:      r.Counts[model.Dead],
	})
	if len(s.pending) < s.batchSize {
		return nil
	}
	return s.flush(ctx, s.db)
}

func (s *PostgresSink) flush(ctx context.Context, db *gorm.DB) error {
	if len(s.pending) == 0 {
		return nil
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "cycle"}},
		DoUpdates: clause.AssignmentColumns([]string{"healthy", "infected", "recovered", "dead"}),
	}).Create(&s.pending).Error
	if err != nil {
		return err
	}
	s.pending = s.pending[:0]
	return nil
}

// Finish flushes buffered cycles and stores the outcome in one transaction.
func (s *PostgresSink) Finish(ctx context.Context, sum Summary) error {
	updates := map[string]any{
		"status":     "complete",
		"updated_at": time.Now(),
	}
	if sum.Err != nil {
		updates["status"] = "interrupted"
		updates["error"] = sum.Err.Error()
	}
	if res := sum.Result; res != nil {
		updates["cycles"] = res.Cycles
		updates["peak_infected"] = res.PeakInfected
		updates["peak_cycle"] = res.PeakCycle
		updates["healthy"] = res.Final[model.Healthy]
		updates["infected"] = res.Final[model.Infected]
		updates["recovered"] = res.Final[model.Recovered]
		updates["dead"] = res.Final[model.Dead]
		updates["duration_ms"] = res.Duration.Milliseconds()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.flush(ctx, tx); err != nil {
			return err
		}
		return tx.Model(&RunRow{}).Where("id = ?", s.run).Updates(updates).Error
	})
}

// Close closes the underlying connection pool.
func (s *PostgresSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
