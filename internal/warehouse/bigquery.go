package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	defaultQueryTimeout   = 30 * time.Second
	defaultMaxResultRows  = 1000
	defaultMaxBytesBilled = 100 * 1024 * 1024 // 100 MiB
)

type Config struct {
	Logger *slog.Logger

	ProjectID       string
	CredentialsFile string
	DefaultDataset  string

	QueryTimeout   time.Duration
	MaxResultRows  int
	MaxBytesBilled int64
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.ProjectID == "" {
		return fmt.Errorf("project ID is required")
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = defaultQueryTimeout
	}
	if c.MaxResultRows <= 0 {
		c.MaxResultRows = defaultMaxResultRows
	}
	if c.MaxBytesBilled <= 0 {
		c.MaxBytesBilled = defaultMaxBytesBilled
	}
	return nil
}

// Client is the long-lived warehouse handle. It is constructed once at
// startup and shared across requests; none of its methods mutate it.
type Client struct {
	log *slog.Logger
	cfg Config
	bq  *bigquery.Client
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate warehouse config: %w", err)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		cfg.Logger.Info("warehouse: using service account credentials", "path", cfg.CredentialsFile)
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else {
		cfg.Logger.Info("warehouse: using application default credentials")
	}

	bq, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	return &Client{
		log: cfg.Logger,
		cfg: cfg,
		bq:  bq,
	}, nil
}

func (c *Client) Close() error {
	return c.bq.Close()
}

// Ping verifies warehouse connectivity with a free dry-run statement.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.ValidateQuery(ctx, "SELECT 1")
	if err != nil {
		return err
	}
	if !res.Valid {
		return fmt.Errorf("connectivity probe failed: %s", res.Error)
	}
	return nil
}

func (c *Client) ListDatasets(ctx context.Context) ([]Dataset, error) {
	it := c.bq.Datasets(ctx)

	var datasets []Dataset
	for {
		ds, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, translate(err, c.cfg.QueryTimeout)
		}
		datasets = append(datasets, Dataset{
			ID:      ds.DatasetID,
			Project: ds.ProjectID,
		})
	}

	c.log.Debug("warehouse: listed datasets", "count", len(datasets))
	return datasets, nil
}

func (c *Client) ListTables(ctx context.Context, datasetID string) ([]Table, error) {
	it := c.bq.Dataset(datasetID).Tables(ctx)

	var tables []Table
	for {
		t, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, translate(err, c.cfg.QueryTimeout)
		}
		tables = append(tables, Table{
			ID:        t.TableID,
			DatasetID: t.DatasetID,
			Project:   t.ProjectID,
		})
	}

	c.log.Debug("warehouse: listed tables", "dataset", datasetID, "count", len(tables))
	return tables, nil
}

func (c *Client) TableSchema(ctx context.Context, datasetID, tableID string) (TableMetadata, error) {
	// Accept a combined "dataset.table" form in tableID for callers that
	// pass the fully qualified name.
	if datasetID == "" && strings.Contains(tableID, ".") {
		parts := strings.SplitN(tableID, ".", 2)
		datasetID, tableID = parts[0], parts[1]
	}

	md, err := c.bq.Dataset(datasetID).Table(tableID).Metadata(ctx)
	if err != nil {
		return TableMetadata{}, translate(err, c.cfg.QueryTimeout)
	}

	out := TableMetadata{
		Project:     c.cfg.ProjectID,
		DatasetID:   datasetID,
		TableID:     tableID,
		FullID:      md.FullID,
		Type:        string(md.Type),
		Description: md.Description,
		NumRows:     md.NumRows,
		NumBytes:    md.NumBytes,
		Columns:     columnsFromSchema(md.Schema),
	}
	if !md.CreationTime.IsZero() {
		out.Created = md.CreationTime.UTC().Format(time.RFC3339)
	}
	if !md.LastModifiedTime.IsZero() {
		out.Modified = md.LastModifiedTime.UTC().Format(time.RFC3339)
	}

	c.log.Debug("warehouse: fetched table schema", "dataset", datasetID, "table", tableID, "columns", len(out.Columns))
	return out, nil
}

func (c *Client) ExecuteQuery(ctx context.Context, sql string, maxRows int) (QueryResult, error) {
	if maxRows <= 0 || maxRows > c.cfg.MaxResultRows {
		maxRows = c.cfg.MaxResultRows
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	q := c.newQuery(sql)
	it, err := q.Read(ctx)
	if err != nil {
		return QueryResult{}, translate(err, c.cfg.QueryTimeout)
	}

	rows := make([]Row, 0, maxRows)
	truncated := false
	for {
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return QueryResult{}, translate(err, c.cfg.QueryTimeout)
		}
		if len(rows) >= maxRows {
			truncated = true
			break
		}
		row := make(Row, len(values))
		for name, v := range values {
			row[name] = normalizeValue(v)
		}
		rows = append(rows, row)
	}

	res := QueryResult{
		Columns:   columnsFromSchema(it.Schema),
		Rows:      rows,
		Count:     len(rows),
		TotalRows: it.TotalRows,
		Truncated: truncated,
	}
	c.log.Debug("warehouse: executed query", "rows", res.Count, "total_rows", res.TotalRows, "truncated", res.Truncated)
	return res, nil
}

// ValidateQuery dry-runs the statement: no data is scanned or billed. A
// statement the warehouse rejects yields Valid=false with the native
// message rather than an error.
func (c *Client) ValidateQuery(ctx context.Context, sql string) (ValidationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	q := c.newQuery(sql)
	q.DryRun = true
	q.DisableQueryCache = true

	job, err := q.Run(ctx)
	if err != nil {
		if terr := translate(err, c.cfg.QueryTimeout); errors.Is(terr, ErrTimeout) {
			return ValidationResult{}, terr
		}
		return ValidationResult{Valid: false, Error: err.Error()}, nil
	}

	status := job.LastStatus()
	res := ValidationResult{Valid: true}
	if status != nil && status.Statistics != nil {
		res.TotalBytesProcessed = status.Statistics.TotalBytesProcessed
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			res.TotalBytesBilled = qs.TotalBytesBilled
			res.Schema = columnsFromSchema(qs.Schema)
		}
	}

	c.log.Debug("warehouse: validated query",
		"bytes_processed", FormatBytes(res.TotalBytesProcessed),
		"bytes_billed", FormatBytes(res.TotalBytesBilled),
	)
	return res, nil
}

func (c *Client) newQuery(sql string) *bigquery.Query {
	q := c.bq.Query(sql)
	q.MaxBytesBilled = c.cfg.MaxBytesBilled
	if c.cfg.DefaultDataset != "" {
		q.DefaultDatasetID = c.cfg.DefaultDataset
	}
	return q
}

func columnsFromSchema(schema bigquery.Schema) []Column {
	if len(schema) == 0 {
		return nil
	}
	columns := make([]Column, 0, len(schema))
	for _, f := range schema {
		mode := "NULLABLE"
		if f.Repeated {
			mode = "REPEATED"
		} else if f.Required {
			mode = "REQUIRED"
		}
		columns = append(columns, Column{
			Name:        f.Name,
			Type:        string(f.Type),
			Mode:        mode,
			Description: f.Description,
		})
	}
	return columns
}

// normalizeValue converts BigQuery values into JSON-friendly types. Byte
// slices become strings, NUMERIC values become decimal strings, and civil
// date/time values become their canonical string forms.
func normalizeValue(v bigquery.Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case *big.Rat:
		return val.FloatString(9)
	case civil.Date:
		return val.String()
	case civil.Time:
		return val.String()
	case civil.DateTime:
		return val.String()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []bigquery.Value:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]bigquery.Value:
		out := make(map[string]any, len(val))
		for name, item := range val {
			out[name] = normalizeValue(item)
		}
		return out
	default:
		return val
	}
}

// FormatBytes renders a byte count in human-readable form for log lines.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTP"[exp])
}
