package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"bastproxy/internal/app"
	"bastproxy/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy, connecting to the mud and accepting client connections",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	baseDir := resolvedBaseDir()
	viper.AddConfigPath(baseDir)
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	shutdownTelemetry, err := setupTelemetry()
	if err != nil {
		logging.Warnf("bastproxy", "telemetry not started: %v", err)
	} else {
		defer shutdownTelemetry()
	}

	cfg := app.Config{
		BaseDir:    baseDir,
		MudAddr:    viper.GetString("mud_addr"),
		ListenAddr: viper.GetString("listen_addr"),
		Password:   viper.GetString("password"),
		Banner:     viper.GetString("banner"),
		Ephemeral:  viper.GetBool("ephemeral"),
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}

	fmt.Println(accentStyle.Render(fmt.Sprintf("bastproxy: mud=%s listen=%s base=%s", cfg.MudAddr, cfg.ListenAddr, baseDir)))
	return a.Run(ctx)
}

// setupTelemetry installs stdout-exporting trace and metric providers as
// the global OpenTelemetry API destination, so internal/app's instruments
// and internal/plugin's lifecycle-hook spans actually emit somewhere
// instead of going to the default no-op providers.
func setupTelemetry() (func(), error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	return func() {
		ctx := context.Background()
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
	}, nil
}
