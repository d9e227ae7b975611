// Command sqltarget reads a stream of SCHEMA / RECORD / ACTIVATE_VERSION /
// STATE messages on stdin and loads them into a relational database,
// merging keyed streams and appending keyless ones.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"sqltarget/internal/config"
	"sqltarget/internal/metrics"
	"sqltarget/internal/metrics/prompush"
	"sqltarget/internal/singer"
	"sqltarget/internal/storage"

	// register all engines with the storage factory.
	_ "sqltarget/internal/storage/all"
)

func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "config.json", "target config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "none", "metrics backend to use (pushgateway, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "http://localhost:9091", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	issues := config.Validate(cfg)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		fatalf("configuration is invalid: %v", cfgPath)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		return
	}

	// Decide metrics backend: flag, then env, then none.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	if backendName == "pushgateway" {
		gatewayURL := pushGatewayURLFlg
		if env := os.Getenv("PUSHGATEWAY_URL"); env != "" && gatewayURL == "" {
			gatewayURL = env
		}
		be, err := prompush.NewBackend("sqltarget", gatewayURL)
		if err != nil {
			fatalf("metrics backend: %v", err)
		}
		metrics.SetBackend(be)
		defer func() {
			if err := metrics.Flush(); err != nil {
				log.Printf("metrics flush failed: %v", err)
			}
		}()
	}

	ctx := context.Background()

	dsn, err := cfg.EffectiveDSN()
	if err != nil {
		fatalf("connection: %v", err)
	}
	eng, err := storage.Open(ctx, cfg.Driver, storage.Config{DSN: dsn})
	if err != nil {
		fatalf("open %s engine: %v", cfg.Driver, err)
	}
	defer eng.Close()

	t := singer.New(eng, cfg, os.Stdout)
	if err := t.Run(ctx, os.Stdin); err != nil {
		fatalf("run: %v", err)
	}
}

func fatalf(format string, args ...any) {
	log.Printf(format, args...)
	os.Exit(1)
}
