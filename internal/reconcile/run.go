// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/toeirei/keysync/internal/logging"
	"github.com/toeirei/keysync/internal/model"
)

// Reporter receives every per-account result as soon as it is known.
type Reporter interface {
	Report(res model.Result)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(model.Result)

func (f ReporterFunc) Report(res model.Result) { f(res) }

// Report aggregates one run.
type Report struct {
	Mode       model.Mode
	Results    []model.Result
	StartedAt  time.Time
	FinishedAt time.Time
}

// ExitCode is 1 if any entry failed or was invalid, 0 otherwise.
func (r *Report) ExitCode() int {
	for _, res := range r.Results {
		if res.Failed() {
			return 1
		}
	}
	return 0
}

// Counts tallies results per outcome.
func (r *Report) Counts() map[model.Outcome]int {
	counts := map[model.Outcome]int{}
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// Controller runs the engine over a whole registry.
type Controller struct {
	Engine    *Engine
	Reporters []Reporter
	now       func() time.Time
}

// NewController returns a controller reporting to the given reporters.
func NewController(engine *Engine, reporters ...Reporter) *Controller {
	return &Controller{Engine: engine, Reporters: reporters, now: time.Now}
}

// Run reconciles entries sequentially. A failing entry is recorded as an
// error result and never stops the remaining entries.
func (c *Controller) Run(ctx context.Context, entries []model.RegistryEntry, mode model.Mode) *Report {
	now := c.now
	if now == nil {
		now = time.Now
	}
	rep := &Report{Mode: mode, StartedAt: now()}
	for _, entry := range entries {
		res := c.runOne(ctx, entry, mode)
		rep.Results = append(rep.Results, res)
		for _, r := range c.Reporters {
			r.Report(res)
		}
	}
	rep.FinishedAt = now()
	return rep
}

func (c *Controller) runOne(ctx context.Context, entry model.RegistryEntry, mode model.Mode) (res model.Result) {
	log := logging.With("account", entry.Account, "mode", string(mode))
	defer func() {
		if p := recover(); p != nil {
			res = model.Result{Account: entry.Account, Outcome: model.OutcomeError, Err: fmt.Errorf("panic: %v", p)}
			log.Error("reconciliation panicked", "err", res.Err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return model.Result{Account: entry.Account, Outcome: model.OutcomeError, Err: err}
	}
	res, err := c.Engine.Reconcile(ctx, entry, mode)
	if err != nil {
		log.Error("reconciliation failed", "fingerprint", entry.Fingerprint, "err", err)
		return model.Result{Account: entry.Account, Outcome: model.OutcomeError, Err: err}
	}
	log.Debug("reconciled", "outcome", string(res.Outcome), "detail", res.Detail)
	return res
}
