package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kamalmemon/mcp-bigquery-gateway/internal/logger"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/server"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/server/metrics"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/warehouse"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"

	defaultListenAddr     = "0.0.0.0:8010"
	defaultMetricsAddr    = ""
	defaultQueryTimeout   = 30 * time.Second
	defaultMaxResultRows  = 1000
	defaultMaxBytesBilled = 100 * 1024 * 1024 // 100 MiB
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best-effort .env loading; a missing file is fine.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	transportFlag := flag.String("transport", transportStdio, "MCP transport (stdio or http)")
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "HTTP server listen address (http transport only)")
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics (empty to disable)")

	// BigQuery configuration
	projectFlag := flag.String("project", "", "Google Cloud project ID (or set BQ_PROJECT_ID env var)")
	credentialsFlag := flag.String("credentials-file", "", "Path to service account JSON file (or set GOOGLE_APPLICATION_CREDENTIALS; empty for ADC)")
	defaultDatasetFlag := flag.String("default-dataset", "", "Default dataset for unqualified table references (or set BQ_DEFAULT_DATASET)")
	queryTimeoutFlag := flag.Duration("query-timeout", defaultQueryTimeout, "Per-query timeout (or set BQ_QUERY_TIMEOUT_SECONDS)")
	maxRowsFlag := flag.Int("max-rows", defaultMaxResultRows, "Maximum number of result rows returned per query (or set BQ_MAX_RESULT_ROWS)")
	maxBytesBilledFlag := flag.Int64("max-bytes-billed", defaultMaxBytesBilled, "Maximum bytes billed per query (or set BQ_MAX_BYTES_BILLED)")

	flag.Parse()

	// Override flags with environment variables if set
	if env := os.Getenv("BQ_PROJECT_ID"); env != "" && *projectFlag == "" {
		*projectFlag = env
	}
	if env := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); env != "" && *credentialsFlag == "" {
		*credentialsFlag = env
	}
	if env := os.Getenv("BQ_DEFAULT_DATASET"); env != "" && *defaultDatasetFlag == "" {
		*defaultDatasetFlag = env
	}
	if env := os.Getenv("BQ_QUERY_TIMEOUT_SECONDS"); env != "" {
		secs, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid BQ_QUERY_TIMEOUT_SECONDS %q: %w", env, err)
		}
		*queryTimeoutFlag = time.Duration(secs) * time.Second
	}
	if env := os.Getenv("BQ_MAX_RESULT_ROWS"); env != "" {
		rows, err := strconv.Atoi(env)
		if err != nil {
			return fmt.Errorf("invalid BQ_MAX_RESULT_ROWS %q: %w", env, err)
		}
		*maxRowsFlag = rows
	}
	if env := os.Getenv("BQ_MAX_BYTES_BILLED"); env != "" {
		n, err := strconv.ParseInt(env, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid BQ_MAX_BYTES_BILLED %q: %w", env, err)
		}
		*maxBytesBilledFlag = n
	}

	if *projectFlag == "" {
		return fmt.Errorf("project ID is required (set --project or BQ_PROJECT_ID env var)")
	}

	log := logger.New(*verboseFlag)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigCh
		log.Info("server: received signal", "signal", sig.String())
		cancel()
	}()

	var metricsServerErrCh = make(chan error, 1)
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", *metricsAddrFlag)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
				return
			}
		}()
	}

	// Parse allowed tokens from environment variable (comma-separated)
	// Auth can be explicitly disabled with MCP_AUTH_DISABLED=true
	var allowedTokens []string
	authDisabled := os.Getenv("MCP_AUTH_DISABLED") == "true"

	if authDisabled {
		log.Info("mcp server: authentication explicitly disabled")
	} else if tokensEnv := os.Getenv("MCP_ALLOWED_TOKENS"); tokensEnv != "" {
		for token := range strings.SplitSeq(tokensEnv, ",") {
			token = strings.TrimSpace(token)
			if token != "" {
				allowedTokens = append(allowedTokens, token)
			}
		}
		if len(allowedTokens) > 0 {
			log.Info("mcp server: token authentication enabled", "token_count", len(allowedTokens))
		}
	} else {
		log.Info("mcp server: authentication disabled (no tokens configured)")
	}

	wh, err := warehouse.New(ctx, warehouse.Config{
		Logger:          log,
		ProjectID:       *projectFlag,
		CredentialsFile: *credentialsFlag,
		DefaultDataset:  *defaultDatasetFlag,
		QueryTimeout:    *queryTimeoutFlag,
		MaxResultRows:   *maxRowsFlag,
		MaxBytesBilled:  *maxBytesBilledFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create warehouse client: %w", err)
	}
	defer func() {
		if err := wh.Close(); err != nil {
			log.Error("failed to close warehouse client", "error", err)
		}
	}()

	// Connectivity probe: a free dry run. Fatal here rather than on the
	// first tool call.
	if err := wh.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to BigQuery (check credentials, e.g. 'gcloud auth application-default login'): %w", err)
	}
	log.Info("connected to BigQuery", "project", *projectFlag)

	srv, err := server.New(server.Config{
		Version:       version,
		ListenAddr:    *listenAddrFlag,
		Logger:        log,
		Warehouse:     wh,
		AllowedTokens: allowedTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		var err error
		switch *transportFlag {
		case transportStdio:
			err = srv.Run(ctx)
		case transportHTTP:
			err = srv.RunHTTP(ctx)
		default:
			err = fmt.Errorf("unknown transport %q (expected stdio or http)", *transportFlag)
		}
		serverErrCh <- err
	}()

	select {
	case <-ctx.Done():
		log.Info("server: shutting down", "reason", ctx.Err())
		return nil
	case err := <-serverErrCh:
		if err != nil {
			log.Error("server: server error causing shutdown", "error", err)
		}
		return err
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		return err
	}
}
