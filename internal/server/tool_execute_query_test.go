package server

import (
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/kamalmemon/mcp-bigquery-gateway/internal/sqlguard"
	"github.com/kamalmemon/mcp-bigquery-gateway/internal/warehouse"
)

func TestMCP_Server_ToolExecuteQuery_Register(t *testing.T) {
	t.Parallel()

	err := RegisterExecuteQueryTool(testLogger(t), mcp.NewServer(&mcp.Implementation{
		Name:    "Test Server",
		Version: "1.0.0",
	}, nil), &mockWarehouse{})
	require.NoError(t, err)
}

func TestMCP_Server_ToolExecuteQuery_ArgumentValidation(t *testing.T) {
	t.Parallel()

	t.Run("missing query fails before any warehouse call", func(t *testing.T) {
		t.Parallel()

		wh := &mockWarehouse{}
		_, err := handleExecuteQuery(t.Context(), testLogger(t), wh, ExecuteQueryInput{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid argument")
		require.Equal(t, 0, wh.executeCalls)
	})

	t.Run("whitespace-only query fails", func(t *testing.T) {
		t.Parallel()

		wh := &mockWarehouse{}
		_, err := handleExecuteQuery(t.Context(), testLogger(t), wh, ExecuteQueryInput{Query: "  \n\t "})
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid argument")
		require.Equal(t, 0, wh.executeCalls)
	})

	t.Run("negative max_results fails", func(t *testing.T) {
		t.Parallel()

		wh := &mockWarehouse{}
		_, err := handleExecuteQuery(t.Context(), testLogger(t), wh, ExecuteQueryInput{
			Query:      "SELECT 1",
			MaxResults: -5,
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "max_results")
		require.Equal(t, 0, wh.executeCalls)
	})
}

func TestMCP_Server_ToolExecuteQuery_Gate(t *testing.T) {
	t.Parallel()

	rejected := []string{
		"INSERT INTO t VALUES (1)",
		"update t set x = 1",
		"  DELETE FROM t",
		"DROP TABLE t",
		"CREATE TABLE t (id INT64)",
		"ALTER TABLE t ADD COLUMN x INT64",
		"TRUNCATE TABLE t",
		"MERGE t USING s ON t.id = s.id WHEN MATCHED THEN DELETE",
		"WITH x AS (DELETE FROM t) SELECT * FROM x",
	}

	for _, sql := range rejected {
		t.Run(sql, func(t *testing.T) {
			t.Parallel()

			wh := &mockWarehouse{}
			_, err := handleExecuteQuery(t.Context(), testLogger(t), wh, ExecuteQueryInput{Query: sql})
			require.Error(t, err)
			require.ErrorIs(t, err, sqlguard.ErrRejected)
			require.Equal(t, 0, wh.executeCalls, "gate rejection must not reach the warehouse")
		})
	}
}

func TestMCP_Server_ToolExecuteQuery_PassesQueryThroughUnmodified(t *testing.T) {
	t.Parallel()

	const sql = "SELECT  id,\n  name FROM users -- trailing comment\n"
	wh := &mockWarehouse{
		queryResult: warehouse.QueryResult{
			Columns:   []warehouse.Column{{Name: "id", Type: "INTEGER", Mode: "NULLABLE"}},
			Rows:      []warehouse.Row{{"id": int64(1)}},
			Count:     1,
			TotalRows: 1,
		},
	}

	out, err := handleExecuteQuery(t.Context(), testLogger(t), wh, ExecuteQueryInput{Query: sql, MaxResults: 10})
	require.NoError(t, err)
	require.Equal(t, 1, wh.executeCalls)
	require.Equal(t, sql, wh.lastSQL, "the gate must not rewrite accepted SQL")
	require.Equal(t, 10, wh.lastMaxRows)
	require.Equal(t, 1, out.Count)
	require.Equal(t, uint64(1), out.TotalRows)
	require.Equal(t, "id", out.Schema[0].Name)
	require.Equal(t, int64(1), out.Rows[0]["id"])
}

func TestMCP_Server_ToolExecuteQuery_SurfacesWarehouseErrors(t *testing.T) {
	t.Parallel()

	t.Run("query error", func(t *testing.T) {
		t.Parallel()

		wh := &mockWarehouse{err: &warehouse.QueryError{Code: 400, Message: "Syntax error: Unexpected keyword"}}
		_, err := handleExecuteQuery(t.Context(), testLogger(t), wh, ExecuteQueryInput{Query: "SELECT bogus("})
		require.Error(t, err)
		require.Contains(t, err.Error(), "Syntax error")

		var qerr *warehouse.QueryError
		require.True(t, errors.As(err, &qerr))
		require.Equal(t, 400, qerr.Code)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		wh := &mockWarehouse{err: warehouse.ErrTimeout}
		_, err := handleExecuteQuery(t.Context(), testLogger(t), wh, ExecuteQueryInput{Query: "SELECT slow()"})
		require.Error(t, err)
		require.ErrorIs(t, err, warehouse.ErrTimeout)
	})
}
