// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

package report

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/reconcile"
)

func TestReport_PlainLines(t *testing.T) {
	i18n.Init("en")
	var buf bytes.Buffer
	r := New(&buf, false)

	r.Report(model.Result{Account: "alice", Outcome: model.OutcomeProvisioned, Detail: "SHA256:a"})
	r.Report(model.Result{Account: "bob", Outcome: model.OutcomeError, Err: errors.New("github.com returned 502")})

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("plain output must not contain escape sequences: %q", out)
	}
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out)
	}
	if !strings.HasPrefix(lines[0], "alice ") || !strings.Contains(lines[0], "provisioned") || !strings.Contains(lines[0], "SHA256:a") {
		t.Fatalf("unexpected line %q", lines[0])
	}
	if !strings.Contains(lines[1], "error") || !strings.Contains(lines[1], "502") {
		t.Fatalf("unexpected line %q", lines[1])
	}
	if strings.Index(lines[0], "provisioned") != strings.Index(lines[1], "error") {
		t.Fatalf("outcome column is not aligned:\n%s", out)
	}
}

func TestSummary(t *testing.T) {
	i18n.Init("en")
	var buf bytes.Buffer
	r := New(&buf, false)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Summary(&reconcile.Report{
		Mode: model.ModeValidate,
		Results: []model.Result{
			{Account: "alice", Outcome: model.OutcomeValid},
			{Account: "carol", Outcome: model.OutcomeInvalid},
		},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	})
	if got := buf.String(); !strings.Contains(got, "2 accounts processed: 1 ok, 1 failed") || !strings.Contains(got, "1.5s") {
		t.Fatalf("unexpected summary %q", got)
	}

	buf.Reset()
	r.Summary(&reconcile.Report{Mode: model.ModeDryRun, Results: []model.Result{{Account: "a", Outcome: model.OutcomeProvisioned}}})
	if got := buf.String(); !strings.Contains(got, "Dry run: 1 accounts evaluated") {
		t.Fatalf("unexpected dry-run summary %q", got)
	}
}

func TestColorEnabled(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if ColorEnabled(f, false) {
		t.Fatalf("regular files are not terminals")
	}
	if ColorEnabled(os.Stdout, true) {
		t.Fatalf("--no-color must win")
	}
}
