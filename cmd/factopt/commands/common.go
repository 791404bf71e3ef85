package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"

	"github.com/openfroyo/factopt/pkg/config"
	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/stores"
	"github.com/openfroyo/factopt/pkg/telemetry"
)

// newTelemetry builds telemetry from the global flags. The caller must call
// Shutdown.
func newTelemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	switch level := zerolog.GlobalLevel(); {
	case verbose:
		cfg.Logging.Level = "debug"
	case level <= zerolog.ErrorLevel && level >= zerolog.TraceLevel:
		cfg.Logging.Level = level.String()
	}
	cfg.Metrics.ListenAddress = metricsAddr
	if traceExporter != "" && traceExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceExporter
		cfg.Tracing.Endpoint = otlpEndpoint
	}

	tel, err := telemetry.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return tel, nil
}

func shutdownTelemetry(tel *telemetry.Telemetry) {
	if err := tel.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

// serveMetrics exposes /metrics in the background when --metrics-addr is set.
func serveMetrics(ctx context.Context, tel *telemetry.Telemetry) {
	if metricsAddr == "" {
		return
	}
	go func() {
		if err := tel.Metrics.Serve(ctx, tel.Logger); err != nil {
			log.Error().Err(err).Str("address", metricsAddr).Msg("Metrics server failed")
		}
	}()
}

func newLoader(tel *telemetry.Telemetry) *config.Loader {
	return config.NewLoader(tel.Logger, config.WithScriptTimeout(scriptTimeout))
}

// loadFactory loads and freezes a factory file.
func loadFactory(ctx context.Context, tel *telemetry.Telemetry, path string) (*engine.Factory, error) {
	ctx, span := tel.Tracer.StartSpan(ctx, "factory.load", attribute.String("factory.path", path))
	defer span.End()

	f, err := newLoader(tel).Load(ctx, path)
	if err == nil {
		err = f.Freeze()
	}
	if err != nil {
		telemetry.RecordError(span, err)
		tel.Metrics.RecordError(err)
		return nil, err
	}

	telemetry.RecordSuccess(span)
	return f, nil
}

// openStore opens and migrates the run history database.
func openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: dbPath})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// printErrors lists every error joined into err.
func printErrors(w io.Writer, err error) {
	for _, e := range multierr.Errors(err) {
		fmt.Fprintf(w, "  ✗ %v\n", e)
	}
}

func errorStrings(err error) []string {
	var out []string
	for _, e := range multierr.Errors(err) {
		out = append(out, e.Error())
	}
	return out
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeTo writes to path, or to stdout when path is "-".
func writeTo(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
