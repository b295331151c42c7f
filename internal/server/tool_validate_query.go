package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kamalmemon/mcp-bigquery-gateway/internal/server/metrics"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/sqlguard"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/warehouse"
)

type ValidateQueryInput struct {
	Query string `json:"query"`
}

type ValidateQueryOutput struct {
	Valid               bool               `json:"valid"`
	TotalBytesProcessed int64              `json:"total_bytes_processed"`
	TotalBytesBilled    int64              `json:"total_bytes_billed"`
	Schema              []warehouse.Column `json:"schema,omitempty"`
	Error               string             `json:"error,omitempty"`
}

func RegisterValidateQueryTool(log *slog.Logger, server *mcp.Server, wh Warehouse) error {
	req, err := jsonschema.For[ValidateQueryInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create validate_query input schema: %w", err)
	}

	res, err := jsonschema.For[ValidateQueryOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create validate_query output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "validate_query",
		Description: `
			Validate a read-only SQL query with a BigQuery dry run, without executing it.
			Returns byte-processing and billing estimates plus the would-be result schema.
			Dry runs scan no data and incur no cost; use this before execute_query for expensive statements.
		`,
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req ValidateQueryInput) (*mcp.CallToolResult, ValidateQueryOutput, error) {
		startTime := time.Now()
		toolName := "validate_query"
		res, err := handleValidateQuery(ctx, log, wh, req)
		duration := time.Since(startTime).Seconds()

		if err != nil {
			if errors.Is(err, sqlguard.ErrRejected) {
				metrics.QueriesRejectedTotal.WithLabelValues(toolName).Inc()
			}
			metrics.ToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, ValidateQueryOutput{}, err
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
		return nil, res, nil
	})
	return nil
}

func handleValidateQuery(ctx context.Context, log *slog.Logger, wh Warehouse, req ValidateQueryInput) (ValidateQueryOutput, error) {
	log.Debug("mcp/tool: handling validate_query", "sql", req.Query)

	if isBlank(req.Query) {
		return ValidateQueryOutput{}, fmt.Errorf("invalid argument: query is required and must be a non-empty string")
	}
	if err := sqlguard.Check(req.Query); err != nil {
		return ValidateQueryOutput{}, err
	}

	resp, err := wh.ValidateQuery(ctx, req.Query)
	if err != nil {
		return ValidateQueryOutput{}, fmt.Errorf("failed to validate query: %w", err)
	}

	return ValidateQueryOutput{
		Valid:               resp.Valid,
		TotalBytesProcessed: resp.TotalBytesProcessed,
		TotalBytesBilled:    resp.TotalBytesBilled,
		Schema:              resp.Schema,
		Error:               resp.Error,
	}, nil
}
