// Copyright (c) 2026 Keymaster Team
// Keysync - GitHub-backed SSH account reconciliation
// This source code is licensed under the MIT license found in the LICENSE file.

// package report renders reconciliation outcomes for operators.
package report // import "github.com/toeirei/keysync/internal/report"

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/toeirei/keysync/internal/i18n"
	"github.com/toeirei/keysync/internal/model"
	"github.com/toeirei/keysync/internal/reconcile"
	"golang.org/x/term"
)

// accountWidth is the column width for account names.
const accountWidth = 16

// Renderer writes one styled line per result and a closing summary.
type Renderer struct {
	w io.Writer

	account  lipgloss.Style
	detail   lipgloss.Style
	outcomes map[model.Outcome]lipgloss.Style
	summary  lipgloss.Style
}

var _ reconcile.Reporter = (*Renderer)(nil)

// ColorEnabled reports whether f is a terminal and colour was not disabled.
func ColorEnabled(f *os.File, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// New returns a renderer for w. Styles degrade to plain text when color is
// false.
func New(w io.Writer, color bool) *Renderer {
	lr := lipgloss.NewRenderer(w)
	if !color {
		lr.SetColorProfile(termenv.Ascii)
	}
	ok := lr.NewStyle().Foreground(lipgloss.Color("42"))
	changed := lr.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	warn := lr.NewStyle().Foreground(lipgloss.Color("214"))
	bad := lr.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	return &Renderer{
		w:       w,
		account: lr.NewStyle().Width(accountWidth),
		detail:  lr.NewStyle().Foreground(lipgloss.Color("240")),
		outcomes: map[model.Outcome]lipgloss.Style{
			model.OutcomeProvisioned:  changed,
			model.OutcomeKeyInstalled: ok,
			model.OutcomeKeysRevoked:  warn,
			model.OutcomeNoValidKey:   warn,
			model.OutcomeValid:        ok,
			model.OutcomeInvalid:      bad,
			model.OutcomeError:        bad,
		},
		summary: lr.NewStyle().Bold(true),
	}
}

// Report implements reconcile.Reporter.
func (r *Renderer) Report(res model.Result) {
	_, _ = fmt.Fprintln(r.w, r.Line(res))
}

// Line formats a single result without a trailing newline.
func (r *Renderer) Line(res model.Result) string {
	label := r.outcomes[res.Outcome].Render(i18n.T("outcome." + string(res.Outcome)))
	line := r.account.Render(res.Account) + " " + label
	detail := res.Detail
	if res.Err != nil {
		detail = res.Err.Error()
	}
	if detail != "" {
		line += "  " + r.detail.Render(detail)
	}
	return line
}

// Summary writes the closing tally for rep.
func (r *Renderer) Summary(rep *reconcile.Report) {
	total := len(rep.Results)
	failed := 0
	for _, res := range rep.Results {
		if res.Failed() {
			failed++
		}
	}
	var text string
	if rep.Mode == model.ModeDryRun {
		text = i18n.T("report.summary_dry_run", total)
	} else {
		text = i18n.T("report.summary", total, total-failed, failed)
	}
	if !rep.StartedAt.IsZero() && !rep.FinishedAt.IsZero() {
		text += " (" + i18n.T("report.duration", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond)) + ")"
	}
	_, _ = fmt.Fprintln(r.w, r.summary.Render(text))
}
