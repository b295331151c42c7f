// Package warehouse wraps the BigQuery client behind a small set of
// read-oriented operations: listing datasets and tables, fetching table
// schemas, executing queries, and dry-run validation.
package warehouse

// Column describes a single column of a table or query result.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Mode        string `json:"mode,omitempty"`
	Description string `json:"description,omitempty"`
}

// Dataset identifies a dataset within a project.
type Dataset struct {
	ID      string `json:"dataset_id"`
	Project string `json:"project"`
}

// Table identifies a table within a dataset.
type Table struct {
	ID        string `json:"table_id"`
	DatasetID string `json:"dataset_id"`
	Project   string `json:"project"`
}

// TableMetadata holds the schema and table-level metadata returned by
// get_table_schema.
type TableMetadata struct {
	Project     string   `json:"project"`
	DatasetID   string   `json:"dataset_id"`
	TableID     string   `json:"table_id"`
	FullID      string   `json:"full_table_id"`
	Type        string   `json:"table_type,omitempty"`
	Description string   `json:"description,omitempty"`
	NumRows     uint64   `json:"num_rows"`
	NumBytes    int64    `json:"num_bytes"`
	Created     string   `json:"created,omitempty"`
	Modified    string   `json:"modified,omitempty"`
	Columns     []Column `json:"schema"`
}

// Row is a single result row keyed by column name.
type Row map[string]any

// QueryResult is the outcome of an executed query. Rows holds at most the
// configured row cap; TotalRows is the warehouse-side total and Truncated
// reports whether the cap clipped the result.
type QueryResult struct {
	Columns   []Column `json:"schema"`
	Rows      []Row    `json:"rows"`
	Count     int      `json:"count"`
	TotalRows uint64   `json:"total_rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// ValidationResult is the outcome of a dry-run validation. When the
// statement fails warehouse-side validation, Valid is false and Error
// carries the native message; no error is returned in that case.
type ValidationResult struct {
	Valid               bool     `json:"valid"`
	TotalBytesProcessed int64    `json:"total_bytes_processed"`
	TotalBytesBilled    int64    `json:"total_bytes_billed"`
	Schema              []Column `json:"schema,omitempty"`
	Error               string   `json:"error,omitempty"`
}
