package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kamalmemon/mcp-bigquery-gateway/internal/warehouse"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// Warehouse is the adapter contract the tool handlers call. The production
// implementation is *warehouse.Client; tests substitute a mock.
type Warehouse interface {
	ListDatasets(ctx context.Context) ([]warehouse.Dataset, error)
	ListTables(ctx context.Context, datasetID string) ([]warehouse.Table, error)
	TableSchema(ctx context.Context, datasetID, tableID string) (warehouse.TableMetadata, error)
	ExecuteQuery(ctx context.Context, sql string, maxRows int) (warehouse.QueryResult, error)
	ValidateQuery(ctx context.Context, sql string) (warehouse.ValidationResult, error)
}

type Config struct {
	Logger *slog.Logger

	Warehouse Warehouse

	Version           string
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	AllowedTokens     []string // Bearer tokens allowed for MCP endpoint authentication
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Warehouse == nil {
		return fmt.Errorf("warehouse is required")
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}
