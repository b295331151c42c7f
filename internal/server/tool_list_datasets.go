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

type ListDatasetsInput struct{}

type ListDatasetsOutput struct {
	Datasets []warehouse.Dataset `json:"datasets"`
	Count    int                 `json:"count"`
}

func RegisterListDatasetsTool(log *slog.Logger, server *mcp.Server, wh Warehouse) error {
	req, err := jsonschema.For[ListDatasetsInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list_datasets input schema: %w", err)
	}

	res, err := jsonschema.For[ListDatasetsOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create list_datasets output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:         "list_datasets",
		Description:  `List all datasets in the configured BigQuery project. Use this to discover available datasets before listing their tables with "list_tables".`,
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req ListDatasetsInput) (*mcp.CallToolResult, ListDatasetsOutput, error) {
		startTime := time.Now()
		toolName := "list_datasets"
		res, err := handleListDatasets(ctx, log, wh)
		duration := time.Since(startTime).Seconds()

		if err != nil {
			metrics.ToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, ListDatasetsOutput{}, err
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
		return nil, res, nil
	})
	return nil
}

func handleListDatasets(ctx context.Context, log *slog.Logger, wh Warehouse) (ListDatasetsOutput, error) {
	log.Debug("mcp/tool: handling list_datasets")

	datasets, err := wh.ListDatasets(ctx)
	if err != nil {
		return ListDatasetsOutput{}, fmt.Errorf("failed to list datasets: %w", err)
	}

	return ListDatasetsOutput{
		Datasets: datasets,
		Count:    len(datasets),
	}, nil
}
