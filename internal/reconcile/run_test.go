// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package reconcile

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/toeirei/keysync/internal/fingerprint"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/testutil"
)

type panickyLookup struct{ account string }

func (p panickyLookup) LookupMatchingKey(_ context.Context, account, _ string) (string, bool, error) {
	if account == p.account {
		panic("boom")
	}
	return "", false, nil
}

func TestRun_ScenarioSummary(t *testing.T) {
	f := newFixture(t, "bob")
	alice := testutil.NewTestKey(t, "")
	f.gh.SetKeys("alice", alice.Line)
	f.gh.SetKeys("bob", testutil.NewTestKey(t, "").Line)

	var seen []string
	ctrl := NewController(f.engine, ReporterFunc(func(res model.Result) { seen = append(seen, res.Account) }))
	rep := ctrl.Run(context.Background(), []model.RegistryEntry{
		entry("alice", alice.Fingerprint),
		entry("bob", "SHA256:OLD"),
	}, model.ModeManage)

	if rep.ExitCode() != 0 {
		t.Fatalf("expected exit code 0, got %d: %+v", rep.ExitCode(), rep.Results)
	}
	counts := rep.Counts()
	if counts[model.OutcomeProvisioned] != 1 || counts[model.OutcomeKeysRevoked] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if len(seen) != 2 || seen[0] != "alice" || seen[1] != "bob" {
		t.Fatalf("reporter saw %v", seen)
	}
	if rep.FinishedAt.Before(rep.StartedAt) {
		t.Fatalf("timestamps out of order")
	}
}

func TestRun_ValidateDriftExitsNonZero(t *testing.T) {
	f := newFixture(t, "carol")
	x := testutil.NewTestKey(t, "")
	y := testutil.NewTestKey(t, "")
	f.gh.SetKeys("carol", y.Line)
	f.dir.Keys["carol"] = x.Line + "\n"

	rep := NewController(f.engine).Run(context.Background(), []model.RegistryEntry{entry("carol", y.Fingerprint)}, model.ModeValidate)
	if rep.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %d", rep.ExitCode())
	}
	if rep.Results[0].Outcome != model.OutcomeInvalid {
		t.Fatalf("expected invalid, got %+v", rep.Results[0])
	}
	if f.dir.Keys["carol"] != x.Line+"\n" {
		t.Fatalf("validate must not touch authorized_keys")
	}
}

func TestRun_FailureIsIsolated(t *testing.T) {
	f := newFixture(t, "bob")
	alice := testutil.NewTestKey(t, "")
	f.gh.SetKeys("alice", alice.Line)
	f.gh.Status["bob"] = http.StatusInternalServerError

	rep := NewController(f.engine).Run(context.Background(), []model.RegistryEntry{
		entry("bob", "SHA256:b"),
		entry("alice", alice.Fingerprint),
	}, model.ModeManage)

	if len(rep.Results) != 2 {
		t.Fatalf("expected both entries to be processed, got %d", len(rep.Results))
	}
	if rep.Results[0].Outcome != model.OutcomeError || rep.Results[0].Err == nil {
		t.Fatalf("expected bob to fail, got %+v", rep.Results[0])
	}
	if rep.Results[1].Outcome != model.OutcomeProvisioned {
		t.Fatalf("expected alice to be provisioned, got %+v", rep.Results[1])
	}
	if rep.ExitCode() != 1 {
		t.Fatalf("expected exit code 1")
	}
}

func TestRun_WriteFailureIsIsolated(t *testing.T) {
	f := newFixture(t, "bob")
	key := testutil.NewTestKey(t, "")
	f.gh.SetKeys("bob", key.Line)
	f.dir.WriteErr = errors.New("disk full")

	rep := NewController(f.engine).Run(context.Background(), []model.RegistryEntry{entry("bob", key.Fingerprint)}, model.ModeManage)
	if rep.Results[0].Outcome != model.OutcomeError || rep.Results[0].ErrorText() == "" {
		t.Fatalf("expected an error result, got %+v", rep.Results[0])
	}
}

func TestRun_RecoversPanics(t *testing.T) {
	dir := testutil.NewFakeDirectory()
	engine := NewEngine(fingerprint.NativeOracle{}, panickyLookup{account: "mallory"}, dir)

	rep := NewController(engine).Run(context.Background(), []model.RegistryEntry{
		entry("mallory", "SHA256:m"),
		entry("erin", "SHA256:e"),
	}, model.ModeManage)

	if rep.Results[0].Outcome != model.OutcomeError {
		t.Fatalf("expected panic to become an error result, got %+v", rep.Results[0])
	}
	if rep.Results[1].Outcome != model.OutcomeNoValidKey {
		t.Fatalf("expected run to continue after panic, got %+v", rep.Results[1])
	}
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := NewController(f.engine).Run(ctx, []model.RegistryEntry{entry("alice", "SHA256:a"), entry("bob", "SHA256:b")}, model.ModeManage)
	for _, res := range rep.Results {
		if res.Outcome != model.OutcomeError || !errors.Is(res.Err, context.Canceled) {
			t.Fatalf("expected cancellation error, got %+v", res)
		}
	}
	if f.gh.RequestCount() != 0 {
		t.Fatalf("no lookups expected after cancellation")
	}
}

func TestRun_UsesInjectedClock(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	ctrl := NewController(f.engine)
	ctrl.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	rep := ctrl.Run(context.Background(), nil, model.ModeManage)
	if got := rep.FinishedAt.Sub(rep.StartedAt); got != time.Second {
		t.Fatalf("expected one tick between start and finish, got %v", got)
	}
	if rep.ExitCode() != 0 || len(rep.Results) != 0 {
		t.Fatalf("empty registry should succeed with no results")
	}
}
