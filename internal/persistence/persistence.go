// Package persistence is the only component that touches the dataset
// store (spec.md §4.8): Open/BeginMeasurement/Append/Finish/Close, backed
// by sqlite (modernc.org/sqlite, pure Go, no cgo) with schema migrations
// applied via golang-migrate — grounded on the teacher's internal/db.DB
// (sql.DB wrapper, CREATE TABLE IF NOT EXISTS bootstrap, AttachAdminRoutes
// tailsql wiring).
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Context is one open dataset file, scoped to a single experiment/sample
// label pair — spec.md's "persistence context". A Context is created by
// Open and released by Close.
type Context struct {
	db         *sql.DB
	path       string
	runID      string
	experiment string
	sample     string
}

// Open creates (or reopens) the sqlite file at path, applies any pending
// migrations, and records a new run under experiment/sample. The parent
// directory is created if missing, mirroring internal/config.Home's
// lazy-subdirectory convention.
func Open(path, experiment, sample string) (*Context, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, wrapErr("open", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrapErr("open", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	runID := uuid.NewString()
	_, err = db.Exec(`INSERT INTO runs (run_id, path, experiment, sample) VALUES (?, ?, ?, ?)`,
		runID, path, experiment, sample)
	if err != nil {
		db.Close()
		return nil, wrapErr("open: record run", err)
	}

	return &Context{db: db, path: path, runID: runID, experiment: experiment, sample: sample}, nil
}

// Close marks the run finished and closes the underlying database handle.
func Close(ctx *Context) error {
	_, err := ctx.db.Exec(`UPDATE runs SET closed_at = CURRENT_TIMESTAMP WHERE run_id = ?`, ctx.runID)
	if err != nil {
		ctx.db.Close()
		return wrapErr("close", err)
	}
	if err := ctx.db.Close(); err != nil {
		return wrapErr("close", err)
	}
	return nil
}

// Handle is an open measurement within a Context: one sqlite table, its
// column schema registered exactly once, ready to receive rows.
type Handle struct {
	ctx      *Context
	table    string
	columns  []string
	insert   *sql.Stmt
	seq      int64
	finished bool
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// BeginMeasurement registers a new, uniquely named table for this run with
// one REAL column per entry of columns and returns a Handle ready for
// Append. Registration happens exactly once: calling BeginMeasurement twice
// on the same Context creates two independent tables, each with its own row
// sequence.
func BeginMeasurement(ctx *Context, columns []string) (*Handle, error) {
	for _, c := range columns {
		if !identRe.MatchString(c) {
			return nil, wrapErr("begin_measurement", fmt.Errorf("invalid column name %q", c))
		}
	}

	table := fmt.Sprintf("measurement_%s", sanitizeTableSuffix(uuid.NewString()))

	createCols := "seq INTEGER PRIMARY KEY, ts REAL NOT NULL, is_break INTEGER NOT NULL DEFAULT 0"
	for _, c := range columns {
		createCols += fmt.Sprintf(", %s REAL", c)
	}
	if _, err := ctx.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, table, createCols)); err != nil {
		return nil, wrapErr("begin_measurement: create table", err)
	}

	colsJSON, err := json.Marshal(columns)
	if err != nil {
		return nil, wrapErr("begin_measurement", err)
	}
	_, err = ctx.db.Exec(`INSERT INTO measurements (table_name, run_id, columns_json) VALUES (?, ?, ?)`,
		table, ctx.runID, string(colsJSON))
	if err != nil {
		return nil, wrapErr("begin_measurement: register schema", err)
	}

	placeholders := "?, ?, ?"
	for range columns {
		placeholders += ", ?"
	}
	insertCols := "seq, ts, is_break"
	for _, c := range columns {
		insertCols += ", " + c
	}
	stmt, err := ctx.db.Prepare(fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table, insertCols, placeholders))
	if err != nil {
		return nil, wrapErr("begin_measurement: prepare insert", err)
	}

	return &Handle{ctx: ctx, table: table, columns: columns, insert: stmt}, nil
}

// Row is one tuple appended to a measurement: a timestamp, one value per
// registered column (same order as BeginMeasurement's columns), and
// whether it is a break marker (values are ignored for break rows).
type Row struct {
	Timestamp time.Time
	Values    []float64
	Break     bool
}

// Append inserts row into h's table. Total order of Append calls equals
// insertion order into the `seq` column (spec.md §5's single-writer
// ordering guarantee).
func (h *Handle) Append(row Row) error {
	if h.finished {
		return wrapErr("append", fmt.Errorf("measurement already finished"))
	}
	if !row.Break && len(row.Values) != len(h.columns) {
		return wrapErr("append", fmt.Errorf("expected %d values, got %d", len(h.columns), len(row.Values)))
	}

	args := make([]interface{}, 0, 3+len(h.columns))
	h.seq++
	args = append(args, h.seq, float64(row.Timestamp.UnixNano())/1e9, boolToInt(row.Break))
	for i := range h.columns {
		if row.Break {
			args = append(args, nil)
			continue
		}
		args = append(args, row.Values[i])
	}
	if _, err := h.insert.Exec(args...); err != nil {
		return wrapErr("append", err)
	}
	return nil
}

// Finish closes the prepared insert statement and records the final row
// count. The Handle must not be appended to afterward.
func (h *Handle) Finish() error {
	if h.finished {
		return nil
	}
	h.finished = true
	if err := h.insert.Close(); err != nil {
		return wrapErr("finish", err)
	}
	_, err := h.ctx.db.Exec(`UPDATE measurements SET row_count = ?, finished_at = CURRENT_TIMESTAMP WHERE table_name = ?`,
		h.seq, h.table)
	if err != nil {
		return wrapErr("finish", err)
	}
	return nil
}

// TableName returns the sqlite table this Handle writes to, useful for ad
// hoc queries (e.g. via the tailsql admin route).
func (h *Handle) TableName() string { return h.table }

func sanitizeTableSuffix(runID string) string {
	out := make([]rune, 0, len(runID))
	for _, r := range runID {
		if r == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ping verifies the underlying connection is alive. The control package's
// Server.WatchPersistence registers a Context here so its health service
// reflects ping failures as NOT_SERVING.
func (ctx *Context) Ping(parent context.Context) error {
	return ctx.db.PingContext(parent)
}
