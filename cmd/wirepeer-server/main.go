package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/tormund/wirepeer"
	"github.com/tormund/wirepeer/secure"
	"github.com/tormund/wirepeer/server"
	"github.com/tormund/wirepeer/telemetry"
	"github.com/tormund/wirepeer/wlog"
)

var (
	config     = defaultConfig()
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "wirepeer-server",
	Short: "Runs a wirepeer JSON-RPC peer server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to YAML config")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		yamlFile, err := os.ReadFile(configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Printf("no config at %s, using defaults", configPath)
				return
			}
			log.Fatalf("reading %s: %v", configPath, err)
		}
		if err := yaml.Unmarshal(yamlFile, &config); err != nil {
			log.Fatalf("parsing %s: %v", configPath, err)
		}
		log.Println("configuration loaded successfully")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("error executing command: %v", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := wlog.NewSlogSink(slog.Default(), config.Verbosity)

	// A real SDK-backed meter/tracer provider, even without a configured
	// exporter: instruments and spans run through actual aggregation and
	// span-processing code rather than the default global no-ops.
	mp := sdkmetric.NewMeterProvider()
	tp := sdktrace.NewTracerProvider()
	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	defer mp.Shutdown(context.Background())
	defer tp.Shutdown(context.Background())

	opts := []wirepeer.Option{
		wirepeer.WithWorkers(config.Workers),
		wirepeer.WithLogger(logger),
		wirepeer.WithTelemetry(telemetry.New("wirepeer-server")),
	}
	if config.RSABits > 0 {
		opts = append(opts, wirepeer.WithCrypto(secure.NewRSACrypto(config.RSABits)))
	}

	srv, err := server.New(config.Listen, nil, logger, opts...)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer srv.Close()

	log.Printf("wirepeer-server listening on %s", srv.Addr())
	return srv.Serve()
}
