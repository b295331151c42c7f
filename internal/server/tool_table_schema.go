package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kamalmemon/mcp-bigquery-gateway/internal/server/metrics"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/warehouse"
)

type TableSchemaInput struct {
	DatasetID string `json:"dataset_id"`
	TableID   string `json:"table_id"`
}

type TableSchemaOutput struct {
	Table warehouse.TableMetadata `json:"table"`
}

func RegisterTableSchemaTool(log *slog.Logger, server *mcp.Server, wh Warehouse) error {
	req, err := jsonschema.For[TableSchemaInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create get_table_schema input schema: %w", err)
	}

	res, err := jsonschema.For[TableSchemaOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create get_table_schema output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "get_table_schema",
		Description: `
			Get the schema and metadata of a BigQuery table: columns with types and modes,
			row and byte counts, and creation/modification timestamps.
			Use this before writing SQL. Do not guess column names.
		`,
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req TableSchemaInput) (*mcp.CallToolResult, TableSchemaOutput, error) {
		startTime := time.Now()
		toolName := "get_table_schema"
		res, err := handleTableSchema(ctx, log, wh, req)
		duration := time.Since(startTime).Seconds()

		if err != nil {
			metrics.ToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, TableSchemaOutput{}, err
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
		return nil, res, nil
	})
	return nil
}

func handleTableSchema(ctx context.Context, log *slog.Logger, wh Warehouse, req TableSchemaInput) (TableSchemaOutput, error) {
	log.Debug("mcp/tool: handling get_table_schema", "dataset", req.DatasetID, "table", req.TableID)

	if isBlank(req.TableID) {
		return TableSchemaOutput{}, fmt.Errorf("invalid argument: table_id is required and must be a non-empty string")
	}
	// dataset_id may be omitted when table_id carries a "dataset.table" form.
	if isBlank(req.DatasetID) && !strings.Contains(req.TableID, ".") {
		return TableSchemaOutput{}, fmt.Errorf("invalid argument: dataset_id is required, or pass table_id as 'dataset.table'")
	}

	md, err := wh.TableSchema(ctx, strings.TrimSpace(req.DatasetID), strings.TrimSpace(req.TableID))
	if err != nil {
		return TableSchemaOutput{}, fmt.Errorf("failed to get schema for table %q: %w", req.TableID, err)
	}

	return TableSchemaOutput{Table: md}, nil
}
