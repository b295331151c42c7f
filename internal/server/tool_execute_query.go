package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kamalmemon/mcp-bigquery-gateway/internal/server/metrics"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/sqlguard"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/warehouse"
)

type ExecuteQueryInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type ExecuteQueryOutput struct {
	Schema    []warehouse.Column `json:"schema"`
	Rows      []warehouse.Row    `json:"rows"`
	Count     int                `json:"count"`
	TotalRows uint64             `json:"total_rows"`
	Truncated bool               `json:"truncated,omitempty"`
}

func RegisterExecuteQueryTool(log *slog.Logger, server *mcp.Server, wh Warehouse) error {
	req, err := jsonschema.For[ExecuteQueryInput](nil)
	if err != nil {
		return fmt.Errorf("failed to create execute_query input schema: %w", err)
	}

	res, err := jsonschema.For[ExecuteQueryOutput](nil)
	if err != nil {
		return fmt.Errorf("failed to create execute_query output schema: %w", err)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "execute_query",
		Description: `
			Execute a read-only SQL query against BigQuery and return rows with the result schema.

			USAGE RULES:
			- Only SELECT and WITH statements are accepted; DDL/DML is rejected before reaching the warehouse.
			- Use get_table_schema before writing SQL. Do not guess column names.
			- Aggregate with GROUP BY and apply LIMIT to keep result sets small; results are capped server-side.
			- Use validate_query first to estimate scan cost for expensive queries.
		`,
		InputSchema:  req,
		OutputSchema: res,
	}, func(ctx context.Context, _ *mcp.CallToolRequest, req ExecuteQueryInput) (*mcp.CallToolResult, ExecuteQueryOutput, error) {
		startTime := time.Now()
		toolName := "execute_query"
		res, err := handleExecuteQuery(ctx, log, wh, req)
		duration := time.Since(startTime).Seconds()

		if err != nil {
			if errors.Is(err, sqlguard.ErrRejected) {
				metrics.QueriesRejectedTotal.WithLabelValues(toolName).Inc()
			}
			metrics.ToolCallsTotal.WithLabelValues(toolName, "error").Inc()
			metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
			return nil, ExecuteQueryOutput{}, err
		}
		metrics.ToolCallsTotal.WithLabelValues(toolName, "success").Inc()
		metrics.ToolCallDuration.WithLabelValues(toolName).Observe(duration)
		return nil, res, nil
	})
	return nil
}

func handleExecuteQuery(ctx context.Context, log *slog.Logger, wh Warehouse, req ExecuteQueryInput) (ExecuteQueryOutput, error) {
	log.Debug("mcp/tool: handling execute_query", "sql", req.Query)

	if err := validateQueryArgs(req.Query, req.MaxResults); err != nil {
		return ExecuteQueryOutput{}, err
	}
	if err := sqlguard.Check(req.Query); err != nil {
		return ExecuteQueryOutput{}, err
	}

	resp, err := wh.ExecuteQuery(ctx, req.Query, req.MaxResults)
	if err != nil {
		return ExecuteQueryOutput{}, fmt.Errorf("failed to execute query: %w", err)
	}

	return ExecuteQueryOutput{
		Schema:    resp.Columns,
		Rows:      resp.Rows,
		Count:     resp.Count,
		TotalRows: resp.TotalRows,
		Truncated: resp.Truncated,
	}, nil
}

// validateQueryArgs fails fast on malformed arguments, before any
// warehouse call is made.
func validateQueryArgs(query string, maxResults int) error {
	if isBlank(query) {
		return fmt.Errorf("invalid argument: query is required and must be a non-empty string")
	}
	if maxResults < 0 {
		return fmt.Errorf("invalid argument: max_results must not be negative")
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
