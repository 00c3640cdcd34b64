package main

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/epiflow/epiflow/internal/model"
	"github.com/epiflow/epiflow/pkg/config"
	"github.com/epiflow/epiflow/pkg/errors"
	"github.com/epiflow/epiflow/pkg/interfaces"
	"github.com/epiflow/epiflow/pkg/random"
	"github.com/epiflow/epiflow/pkg/report"
	"github.com/epiflow/epiflow/pkg/sim"
	"github.com/epiflow/epiflow/pkg/storage/s3"
	"github.com/epiflow/epiflow/pkg/telemetry"
	"github.com/epiflow/epiflow/pkg/topology"
	"github.com/epiflow/epiflow/pkg/tui"
	"github.com/epiflow/epiflow/pkg/writer"
)

// Run flags
var (
	flagLogEvery   int
	flagRedis      string
	flagPostgres   string
	flagNoProgress bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one simulation",
	Long: `Generate a population, run the epidemic until nobody is infected or the
cycle cap is reached, and print the final state.

Examples:
  epiflow run
  epiflow run --seed 42 --scale 2 --log-every 10
  epiflow run -c scenario.yaml -o out/history.parquet
  epiflow run --population 5000 --workers 8 -o history.duckdb --upload s3://results/runs
  epiflow run --redis localhost:6379
  epiflow run --postgres "postgres://epiflow@localhost:5432/epiflow"`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	addSimFlags(runCmd)
	addOutputFlags(runCmd)
	runCmd.Flags().IntVar(&flagLogEvery, "log-every", 0, "Print the census table every N cycles (0 = off)")
	runCmd.Flags().StringVar(&flagRedis, "redis", "", "Stream cycles to Redis at this address")
	runCmd.Flags().StringVar(&flagPostgres, "postgres", "", "Record the run history in PostgreSQL at this DSN")
	runCmd.Flags().BoolVar(&flagNoProgress, "no-progress", false, "Disable the progress bar")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg := manager.Get()
	applyFlags(cmd, cfg)
	if f := cmd.Flags(); f.Changed("log-every") {
		cfg.Output.LogEvery = flagLogEvery
	}
	if flagRedis != "" {
		cfg.Redis.Address = flagRedis
	}
	if flagPostgres != "" {
		cfg.Postgres.DSN = flagPostgres
	}
	if flagNoProgress {
		cfg.Output.Progress = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tui.PrintHeader(cmd.OutOrStdout())
	return runScenario(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// runScenario builds and runs one simulation, then exports and uploads the
// history when configured. The summary is printed even when the run is
// interrupted.
func runScenario(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	params, err := cfg.Params()
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.Enabled, otlpConfig(cfg))
	if err != nil {
		logger.Warn("tracing disabled", "err", err)
	} else {
		defer shutdown(context.WithoutCancel(ctx))
	}

	m := newMetrics()
	defer m.Close()

	fanout, err := newFanout(cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer fanout.Close()

	src := random.NewSource(cfg.Simulation.Seed)
	country, layout, err := topology.Build(params, cfg.TopologyConfig(), src, logger,
		sim.WithWorkers(cfg.Simulation.Workers),
		sim.WithMetrics(m),
		sim.WithTracer(telemetry.Tracer("github.com/epiflow/epiflow/pkg/sim")),
		sim.WithObserver(fanout),
	)
	if err != nil {
		return err
	}

	run := model.RunInfo{
		ID:         uuid.NewString(),
		Seed:       src.Seed(),
		Population: layout.Population,
		Locations:  layout.Locations(),
		MaxCycles:  params.MaxCycles,
		StartedAt:  time.Now(),
	}
	if err := fanout.Start(ctx, run); err != nil {
		return err
	}

	res, runErr := country.Run(ctx)

	// Sinks, export and upload still run after an interrupt.
	after := context.WithoutCancel(ctx)
	if err := fanout.Finish(after, res, runErr); err != nil && runErr == nil {
		runErr = err
	}
	if res == nil || cfg.Output.Path == "" {
		return runErr
	}

	records := model.Records(res.History)
	if err := export(cfg, m, cfg.Output.Path, func(w writer.Writer) error {
		return w.WriteRun(after, run, records)
	}); err != nil {
		return err
	}
	m.Counter(interfaces.MetricExportRows, int64(len(records)), map[string]string{interfaces.TagRunID: run.ID})
	tui.PrintPath(stdout, "Output", cfg.Output.Path)

	if cfg.Output.Upload != "" {
		if err := upload(after, cfg, m, cfg.Output.Path); err != nil {
			return err
		}
	}
	return runErr
}

// newFanout wires the console, progress, Redis and Postgres sinks. If a
// sink cannot connect, the sinks opened so far are closed.
func newFanout(cfg *config.Config, stdout, stderr io.Writer) (*report.Fanout, error) {
	fanout := report.NewFanout(report.NewConsoleSink(stdout, cfg.Output.LogEvery))
	if cfg.Output.Progress && cfg.Output.LogEvery == 0 {
		fanout.Add(report.NewProgressSink(stderr, cfg.Simulation.MaxCycles))
	}
	if cfg.Redis.Address != "" {
		rcfg := report.DefaultRedisConfig(cfg.Redis.Address)
		rcfg.Password = cfg.Redis.Password
		rcfg.Database = cfg.Redis.Database
		rcfg.Prefix = cfg.Redis.Prefix
		rcfg.TTL = cfg.Redis.TTL

		err := addSink(fanout, func() (report.Sink, error) {
			sink, err := report.NewRedisSink(rcfg)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeSinkFailed, "connect redis").
					WithContext("address", cfg.Redis.Address)
			}
			return sink, nil
		})
		if err != nil {
			return nil, err
		}
		logger.Info("streaming cycles to redis", "address", cfg.Redis.Address, "prefix", rcfg.Prefix)
	}
	if cfg.Postgres.DSN != "" {
		err := addSink(fanout, func() (report.Sink, error) {
			sink, err := report.NewPostgresSink(cfg.Postgres.DSN, cfg.Postgres.BatchSize)
			if err != nil {
				return nil, errors.Wrap(err, errors.CodeSinkFailed, "connect postgres")
			}
			return sink, nil
		})
		if err != nil {
			return nil, err
		}
		logger.Info("recording run history in postgres", "batch_size", cfg.Postgres.BatchSize)
	}
	return fanout, nil
}

// addSink opens a sink and adds it to fanout. On failure every sink
// already in fanout is closed.
func addSink(fanout *report.Fanout, open func() (report.Sink, error)) error {
	sink, err := open()
	if err != nil {
		fanout.Close()
		return err
	}
	fanout.Add(sink)
	return nil
}

// export opens the configured writer at path and hands it to write.
func export(cfg *config.Config, m interfaces.MetricsExporter, path string, write func(writer.Writer) error) error {
	var format writer.Format
	if cfg.Output.Format != "" {
		f, err := writer.ParseFormat(cfg.Output.Format)
		if err != nil {
			return err
		}
		format = f
	}

	start := time.Now()
	w, err := writer.Create(path, format, writer.Config{
		Compression: writer.ParseCompression(cfg.Output.Compression),
	})
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		w.Close()
		return errors.Wrap(err, errors.CodeExportFailed, "export").WithContext("path", path)
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "close export").WithContext("path", path)
	}

	tags := map[string]string{interfaces.TagFormat: string(format)}
	m.Timer(interfaces.MetricExportDuration, time.Since(start), tags)
	logger.Info("exported", "path", path, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// upload pushes path to the configured S3 location.
func upload(ctx context.Context, cfg *config.Config, m interfaces.MetricsExporter, path string) error {
	bucket, prefix, err := s3.ParseURL(cfg.Output.Upload)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "bad upload target")
	}

	scfg := s3.DefaultConfig(bucket, cfg.S3.Region)
	scfg.Endpoint = cfg.S3.Endpoint
	scfg.UsePathStyle = cfg.S3.UsePathStyle

	client, err := s3.NewClient(ctx, scfg)
	if err != nil {
		return errors.Wrap(err, errors.CodeUploadFailed, "create s3 client")
	}

	key := s3.ObjectKey(prefix, path)
	info, err := client.Upload(ctx, key, path)
	if err != nil {
		return errors.Wrap(err, errors.CodeUploadFailed, "upload").
			WithContext("bucket", bucket).
			WithContext("key", key)
	}

	m.Counter(interfaces.MetricUploadBytes, info.Size, map[string]string{interfaces.TagSink: "s3"})
	logger.Info("uploaded", "bucket", bucket, "key", key, "bytes", info.Size)
	return nil
}

func otlpConfig(cfg *config.Config) telemetry.OTLPConfig {
	c := telemetry.DefaultOTLPConfig("epiflow")
	c.ServiceVersion = version
	c.Endpoint = cfg.Telemetry.Endpoint
	c.SamplingRatio = cfg.Telemetry.SamplingRatio
	return c
}
