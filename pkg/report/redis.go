package report

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/epiflow/epiflow/internal/model"
)

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all keys (e.g., "epiflow:")
	Prefix string

	// TTL is the time-to-live for run keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Prefix:  "epiflow:",
		TTL:     24 * time.Hour,
		Timeout: 5 * time.Second,
	}
}

// RedisSink publishes every cycle to a Redis stream and keeps a hash of
// run metadata, so dashboards can follow a run live.
//
// Keys:
//
//	<prefix>runs                 sorted set of run ids by start time
//	<prefix>runs:<id>            hash of run metadata and final counts
//	<prefix>runs:<id>:cycles     stream with one entry per cycle
type RedisSink struct {
	cfg    RedisConfig
	client redis.UniversalClient
	run    string
}

// NewRedisSink connects to Redis.
func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisSink(cfg, client), nil
}

func newRedisSink(cfg RedisConfig, client redis.UniversalClient) *RedisSink {
	return &RedisSink{cfg: cfg, client: client}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) indexKey() string { return s.cfg.Prefix + "runs" }

func (s *RedisSink) runKey() string { return s.cfg.Prefix + "runs:" + s.run }

func (s *RedisSink) streamKey() string { return s.runKey() + ":cycles" }

// Start registers the run.
func (s *RedisSink) Start(ctx context.Context, run model.RunInfo) error {
	s.run = run.ID

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(run.StartedAt.Unix()), Member: run.ID})
	pipe.HSet(ctx, s.runKey(), map[string]interface{}{
		"status":     "running",
		"seed":       strconv.FormatUint(run.Seed, 10),
		"population": run.Population,
		"locations":  run.Locations,
		"max_cycles": run.MaxCycles,
		"started_at": run.StartedAt.UTC().Format(time.RFC3339),
	})
	if s.cfg.TTL > 0 {
		pipe.Expire(ctx, s.runKey(), s.cfg.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Cycle appends the census to the run's stream.
func (s *RedisSink) Cycle(ctx context.Context, r CycleReport) error {
	values := map[string]interface{}{"cycle": r.Cycle}
	for _, h := range model.AllHealthStatuses {
		values[h.String()] = r.Counts[h]
	}

	pipe := s.client.Pipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{Stream: s.streamKey(), Values: values})
	pipe.HSet(ctx, s.runKey(), "cycle", r.Cycle)
	if s.cfg.TTL > 0 && r.Cycle == 0 {
		pipe.Expire(ctx, s.streamKey(), s.cfg.TTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Finish stores the final counts and status.
func (s *RedisSink) Finish(ctx context.Context, sum Summary) error {
	fields := map[string]interface{}{"status": "complete"}
	if sum.Err != nil {
		fields["status"] = "interrupted"
		fields["error"] = sum.Err.Error()
	}
	if res := sum.Result; res != nil {
		fields["cycles"] = res.Cycles
		fields["peak_infected"] = res.PeakInfected
		fields["peak_cycle"] = res.PeakCycle
		fields["duration_ms"] = res.Duration.Milliseconds()
		for _, h := range model.AllHealthStatuses {
			fields["final_"+h.String()] = res.Final[h]
		}
	}
	return s.client.HSet(ctx, s.runKey(), fields).Err()
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
