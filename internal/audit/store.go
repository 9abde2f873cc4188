// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/reconcile"
	"github.com/uptrace/bun"
)

// Run is one recorded invocation of sync.
type Run struct {
	bun.BaseModel `bun:"table:audit_runs" json:"-"`

	ID         string    `bun:"id,pk" json:"id"`
	Mode       string    `bun:"mode" json:"mode"`
	Registry   string    `bun:"registry" json:"registry"`
	Host       string    `bun:"host" json:"host"`
	StartedAt  time.Time `bun:"started_at" json:"started_at"`
	FinishedAt time.Time `bun:"finished_at,nullzero" json:"finished_at"`
	ExitCode   int       `bun:"exit_code" json:"exit_code"`
	Total      int       `bun:"total" json:"total"`
	Failed     int       `bun:"failed" json:"failed"`
}

// Entry is one per-account outcome within a run.
type Entry struct {
	bun.BaseModel `bun:"table:audit_results" json:"-"`

	ID         int64     `bun:"id,pk,autoincrement" json:"-"`
	RunID      string    `bun:"run_id" json:"-"`
	Account    string    `bun:"account" json:"account"`
	Outcome    string    `bun:"outcome" json:"outcome"`
	Detail     string    `bun:"detail" json:"detail,omitempty"`
	Error      string    `bun:"error" json:"error,omitempty"`
	RecordedAt time.Time `bun:"recorded_at" json:"recorded_at"`
}

// Store persists audit runs.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

// Open connects to the audit database and applies pending migrations.
func Open(dbType, dsn string) (*Store, error) {
	db, err := openDB(dbType, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Begin records the start of a run and returns a Recorder that appends each
// reported result to it.
func (s *Store) Begin(ctx context.Context, mode model.Mode, registry string) (*Recorder, error) {
	host, _ := os.Hostname()
	run := &Run{
		ID:        uuid.NewString(),
		Mode:      string(mode),
		Registry:  registry,
		Host:      host,
		StartedAt: s.now(),
	}
	if _, err := s.db.NewInsert().Model(run).Exec(ctx); err != nil {
		return nil, fmt.Errorf("record audit run: %w", err)
	}
	return &Recorder{store: s, ctx: ctx, run: run}, nil
}

// Recent returns the latest runs, newest first. A non-positive limit returns
// every run.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := s.db.NewSelect().Model(&runs).Order("started_at DESC", "id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list audit runs: %w", err)
	}
	return runs, nil
}

// Results returns the outcomes recorded for run id in report order.
func (s *Store) Results(ctx context.Context, runID string) ([]Entry, error) {
	var entries []Entry
	if err := s.db.NewSelect().Model(&entries).Where("run_id = ?", runID).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list audit results for %s: %w", runID, err)
	}
	return entries, nil
}

// Recorder is a reconcile.Reporter that writes each result to the audit
// trail. Storage failures are logged and remembered but never interrupt the
// run; Finish returns the first one.
type Recorder struct {
	store *Store
	ctx   context.Context
	run   *Run

	mu  sync.Mutex
	err error
}

var _ reconcile.Reporter = (*Recorder)(nil)

// RunID identifies the run being recorded.
func (r *Recorder) RunID() string { return r.run.ID }

// Report implements reconcile.Reporter.
func (r *Recorder) Report(res model.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.run.Total++
	if res.Failed() {
		r.run.Failed++
	}
	entry := &Entry{
		RunID:      r.run.ID,
		Account:    res.Account,
		Outcome:    string(res.Outcome),
		Detail:     res.Detail,
		Error:      res.ErrorText(),
		RecordedAt: r.store.now(),
	}
	// A cancelled run context must not lose the outcomes it produced.
	if _, err := r.store.db.NewInsert().Model(entry).Exec(context.WithoutCancel(r.ctx)); err != nil {
		logging.With("account", res.Account, "run", r.run.ID).Warn("failed to record audit result", "err", err)
		if r.err == nil {
			r.err = fmt.Errorf("record audit result for %s: %w", res.Account, err)
		}
	}
}

// Finish stamps the run with its exit code and completion time.
func (r *Recorder) Finish(rep *reconcile.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.run.FinishedAt = r.store.now()
	if rep != nil {
		r.run.ExitCode = rep.ExitCode()
	}
	_, err := r.store.db.NewUpdate().Model(r.run).WherePK().Exec(context.WithoutCancel(r.ctx))
	if err != nil {
		return fmt.Errorf("finish audit run %s: %w", r.run.ID, err)
	}
	return r.err
}

// RunExport is a run together with its results.
type RunExport struct {
	Run
	Results []Entry `json:"results"`
}

// Export is the document written by Store.Export.
type Export struct {
	ExportedAt time.Time   `json:"exported_at"`
	Runs       []RunExport `json:"runs"`
}

// Export writes every run and result as zstd-compressed JSON.
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	runs, err := s.Recent(ctx, 0)
	if err != nil {
		return err
	}
	doc := Export{ExportedAt: s.now(), Runs: make([]RunExport, 0, len(runs))}
	for _, run := range runs {
		results, err := s.Results(ctx, run.ID)
		if err != nil {
			return err
		}
		doc.Runs = append(doc.Runs, RunExport{Run: run, Results: results})
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(&doc); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode audit export: %w", err)
	}
	return enc.Close()
}

// ReadExport decodes a document produced by Export.
func ReadExport(r io.Reader) (*Export, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var doc Export
	if err := json.NewDecoder(dec).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode audit export: %w", err)
	}
	return &doc, nil
}
