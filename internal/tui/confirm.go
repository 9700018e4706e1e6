// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/upkit/upkit/internal/orchestrator"
)

const (
	affirmativeLabel = "Update now"
	negativeLabel    = "Later"
)

// Presenter asks for update consent with a huh confirm form and prints check
// failures. It implements orchestrator.Presenter.
type Presenter struct {
	appName string
	cfg     Config
}

var _ orchestrator.Presenter = (*Presenter)(nil)

// NewPresenter creates a Presenter that names appName in its prompts.
func NewPresenter(appName string, cfg Config) *Presenter {
	return &Presenter{appName: appName, cfg: cfg}
}

// Confirm shows the version pair and changelog and returns the user's answer.
// Aborting the form (ctrl+c, esc) counts as declining.
func (p *Presenter) Confirm(ctx context.Context, prompt orchestrator.Prompt) (bool, error) {
	confirmed := false

	field := huh.NewConfirm().
		Title(p.title(prompt)).
		Description(p.description(prompt)).
		Affirmative(affirmativeLabel).
		Negative(negativeLabel).
		Value(&confirmed)

	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(huh.ThemeCharm()).
		WithAccessible(p.cfg.Accessible).
		WithOutput(p.cfg.output())
	if p.cfg.Input != nil {
		form = form.WithInput(p.cfg.Input)
	}

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("update prompt: %w", err)
	}
	return confirmed, nil
}

// ReportError prints err as a styled one-line failure notice.
func (p *Presenter) ReportError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(p.cfg.output(), errorStyle.Render("Update check failed: ")+err.Error())
}

func (p *Presenter) title(prompt orchestrator.Prompt) string {
	return fmt.Sprintf("%s %s is available (you have %s)", p.appName, prompt.Latest, prompt.Current)
}

// description is the changelog, rendered as markdown unless the form runs in
// accessible mode where escape sequences would be printed verbatim.
func (p *Presenter) description(prompt orchestrator.Prompt) string {
	if p.cfg.Accessible {
		return strings.TrimSpace(prompt.Changelog)
	}
	return RenderChangelog(prompt.Changelog, p.cfg.width())
}
