// Package executor runs accepted statements and renders their results as text.
package executor

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/stupiduntilnot/querygate/internal/control"
)

// Rendering markers.
const (
	NoResults   = "No results found."
	ErrorPrefix = "❌ Error executing SQL: "
)

// Kind tells how a result was shaped.
type Kind string

const (
	KindScalar Kind = "scalar"
	KindRows   Kind = "rows"
	KindEmpty  Kind = "empty"
	KindError  Kind = "error"
)

// Column is one named value of a row.
type Column struct {
	Name  string
	Value any
}

// Row keeps the engine's column order and marshals as a JSON object in that order.
type Row []Column

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Result is an execution outcome together with its final text rendering.
type Result struct {
	Kind    Kind
	Columns []string
	Rows    []Row
	Text    string
	Err     error
}

// Executor runs statements against the target engine.
type Executor struct {
	DB     *sql.DB
	Policy control.Policy
	Logger *slog.Logger
}

// New creates an executor over an opened target database.
func New(db *sql.DB, policy control.Policy, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{DB: db, Policy: policy, Logger: logger}
}

// Execute runs query in a read-only transaction that is always rolled back.
// It never returns an error; failures are rendered into Result.Text.
func (e *Executor) Execute(ctx context.Context, query string) Result {
	start := time.Now()
	ctx, cancel := e.Policy.ExecutionContext(ctx)
	defer cancel()

	cols, rows, err := e.run(ctx, query)
	if err != nil {
		err = control.CheckDeadline(err, control.LimitExecution, e.Policy.ExecutionTimeout, start, time.Now())
		e.Logger.Warn("query failed", "err", err)
		return Result{Kind: KindError, Text: ErrorPrefix + err.Error(), Err: err}
	}
	res, err := Shape(cols, rows)
	if err != nil {
		e.Logger.Warn("result rendering failed", "err", err)
		return Result{Kind: KindError, Text: ErrorPrefix + err.Error(), Err: err}
	}
	e.Logger.Debug("query executed", "kind", res.Kind, "rows", len(rows), "elapsed", time.Since(start))
	return res
}

func (e *Executor) run(ctx context.Context, query string) ([]string, []Row, error) {
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	rs, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out []Row
	for rs.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(Row, len(cols))
		for i, name := range cols {
			row[i] = Column{Name: name, Value: normalize(values[i])}
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

// Shape renders materialized rows: one cell becomes a scalar, no rows become the
// no-results marker, anything else a pretty JSON array.
func Shape(cols []string, rows []Row) (Result, error) {
	switch {
	case len(rows) == 0:
		return Result{Kind: KindEmpty, Columns: cols, Text: NoResults}, nil
	case len(rows) == 1 && len(rows[0]) == 1:
		return Result{Kind: KindScalar, Columns: cols, Rows: rows, Text: scalarText(rows[0][0].Value)}, nil
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: KindRows, Columns: cols, Rows: rows, Text: string(data)}, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return v
	}
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
