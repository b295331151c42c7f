package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kamalmemon/mcp-bigquery-gateway/internal/server/metrics"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/warehouse"
)

type ListTablesInput struct {
	DatasetID string `json:"dataset_id"`
}

type ListTablesOutput struct {
	Tables []warehouse.Table `json:"tables"`
	Count  int               `json:"count"`
}

func RegisterListTablesTool(log *slog.Logger, server *mcp.Server, wh Warehouse) error {
	req, err := jsonschema.For[ListTablesInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list_tables input schema: %w", err)
	}

	res, err := jsonschema.For[ListTablesOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list_tables output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:         "list_tables",
		Description:  `List all tables in a BigQuery dataset. Fails with a not-found error if the dataset does not exist.`,
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
		startTime := time.Now()
		toolName := "list_tables"
		res, err := handleListTables(ctx, log, wh, req)
		duration := time.Since(startTime).Seconds()

		if err != nil {
			metrics.ToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, ListTablesOutput{}, err
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
		return nil, res, nil
	})
	return nil
}

func handleListTables(ctx context.Context, log *slog.Logger, wh Warehouse, req ListTablesInput) (ListTablesOutput, error) {
	log.Debug("mcp/tool: handling list_tables", "dataset", req.DatasetID)

	if isBlank(req.DatasetID) {
		return ListTablesOutput{}, fmt.Errorf("invalid argument: dataset_id is required and must be a non-empty string")
	}

	tables, err := wh.ListTables(ctx, req.DatasetID)
	if err != nil {
		return ListTablesOutput{}, fmt.Errorf("failed to list tables in dataset %q: %w", req.DatasetID, err)
	}

	return ListTablesOutput{
		Tables: tables,
		Count:  len(tables),
	}, nil
}
