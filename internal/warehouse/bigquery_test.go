package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestWarehouse_Config_Validate(t *testing.T) {
	t.Parallel()

	valid := func(t *testing.T) Config {
		return Config{
			Logger:    testLogger(t),
			ProjectID: "acme-prod",
		}
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing logger",
			modify: func(c *Config) {
				c.Logger = nil
			},
			wantErr: true,
		},
		{
			name: "missing project",
			modify: func(c *Config) {
				c.ProjectID = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid(t)
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Equal(t, defaultQueryTimeout, cfg.QueryTimeout)
				require.Equal(t, defaultMaxResultRows, cfg.MaxResultRows)
				require.Equal(t, int64(defaultMaxBytesBilled), cfg.MaxBytesBilled)
			}
		})
	}
}

func TestWarehouse_Translate(t *testing.T) {
	t.Parallel()

	t.Run("nil passes through", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, translate(nil, time.Second))
	})

	t.Run("deadline exceeded maps to timeout", func(t *testing.T) {
		t.Parallel()

		err := translate(context.DeadlineExceeded, 30*time.Second)
		require.ErrorIs(t, err, ErrTimeout)
		require.Contains(t, err.Error(), "30s")
	})

	t.Run("wrapped deadline exceeded maps to timeout", func(t *testing.T) {
		t.Parallel()

		err := translate(fmt.Errorf("query run: %w", context.DeadlineExceeded), time.Second)
		require.ErrorIs(t, err, ErrTimeout)
	})

	t.Run("404 maps to not found", func(t *testing.T) {
		t.Parallel()

		err := translate(&googleapi.Error{Code: 404, Message: "Not found: Dataset acme:missing"}, time.Second)
		require.ErrorIs(t, err, ErrNotFound)
		require.Contains(t, err.Error(), "missing")
	})

	t.Run("403 maps to query error with native message", func(t *testing.T) {
		t.Parallel()

		err := translate(&googleapi.Error{Code: 403, Message: "Access Denied: Dataset acme:private"}, time.Second)

		var qerr *QueryError
		require.True(t, errors.As(err, &qerr))
		require.Equal(t, 403, qerr.Code)
		require.Contains(t, qerr.Message, "Access Denied")
	})

	t.Run("other errors become query errors", func(t *testing.T) {
		t.Parallel()

		err := translate(errors.New("connection reset"), time.Second)

		var qerr *QueryError
		require.True(t, errors.As(err, &qerr))
		require.Equal(t, 0, qerr.Code)
		require.Contains(t, qerr.Message, "connection reset")
	})
}

func TestWarehouse_ColumnsFromSchema(t *testing.T) {
	t.Parallel()

	t.Run("empty schema", func(t *testing.T) {
		t.Parallel()
		require.Nil(t, columnsFromSchema(nil))
	})

	t.Run("modes and types", func(t *testing.T) {
		t.Parallel()

		schema := bigquery.Schema{
			{Name: "id", Type: bigquery.IntegerFieldType, Required: true},
			{Name: "name", Type: bigquery.StringFieldType},
			{Name: "tags", Type: bigquery.StringFieldType, Repeated: true},
			{Name: "amount", Type: bigquery.NumericFieldType, Description: "invoice total"},
		}

		columns := columnsFromSchema(schema)
		require.Len(t, columns, 4)

		require.Equal(t, Column{Name: "id", Type: "INTEGER", Mode: "REQUIRED"}, columns[0])
		require.Equal(t, Column{Name: "name", Type: "STRING", Mode: "NULLABLE"}, columns[1])
		require.Equal(t, Column{Name: "tags", Type: "STRING", Mode: "REPEATED"}, columns[2])
		require.Equal(t, Column{Name: "amount", Type: "NUMERIC", Mode: "NULLABLE", Description: "invoice total"}, columns[3])
	})
}

func TestWarehouse_NormalizeValue(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   bigquery.Value
		want any
	}{
		{"nil", nil, nil},
		{"bytes to string", []byte("raw"), "raw"},
		{"numeric to decimal string", big.NewRat(5, 2), "2.500000000"},
		{"date", civil.Date{Year: 2024, Month: 6, Day: 1}, "2024-06-01"},
		{"timestamp", ts, "2024-06-01T12:30:00Z"},
		{"int passes through", int64(7), int64(7)},
		{"string passes through", "hello", "hello"},
		{
			"array recurses",
			[]bigquery.Value{[]byte("a"), int64(2)},
			[]any{"a", int64(2)},
		},
		{
			"struct recurses",
			map[string]bigquery.Value{"k": []byte("v")},
			map[string]any{"k": "v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, normalizeValue(tt.in))
		})
	}
}

func TestWarehouse_FormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{100 * 1024 * 1024, "100.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, FormatBytes(tt.in))
		})
	}
}
