// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"

	"github.com/upkit/upkit/internal/archive"
	"github.com/upkit/upkit/internal/restart"
	"github.com/upkit/upkit/internal/transfer"
	"github.com/upkit/upkit/internal/version"
)

type (
	// Transport fetches the version file and downloads the package.
	Transport interface {
		FetchText(ctx context.Context, url string) (string, error)
		Download(ctx context.Context, url, dest string, onProgress transfer.ProgressFunc) error
	}

	// Extractor unpacks a downloaded package.
	Extractor interface {
		Extract(archivePath, destDir, password string, onProgress archive.ProgressFunc) error
	}

	// ExtractorFunc adapts a function to Extractor.
	ExtractorFunc func(archivePath, destDir, password string, onProgress archive.ProgressFunc) error

	// Stager writes the restart helper and hands control to it.
	Stager interface {
		Stage(plan restart.Plan) error
		LaunchAndExit() error
	}

	// KillSwitch wipes the installation.
	KillSwitch interface {
		Trigger(ctx context.Context, installDir string) error
	}

	// Planner describes the process to relaunch once payloadDir is ready.
	Planner func(payloadDir string) (restart.Plan, error)

	// Prompt is what the user sees before consenting to an update.
	Prompt struct {
		Current   version.Version
		Latest    version.Version
		Changelog string
	}

	// Presenter is the interactive side of CheckInteractive.
	Presenter interface {
		// Confirm asks whether to update now.
		Confirm(ctx context.Context, p Prompt) (bool, error)
		// ReportError shows a check failure the user has to know about.
		ReportError(err error)
	}
)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(archivePath, destDir, password string, onProgress archive.ProgressFunc) error {
	return f(archivePath, destDir, password, onProgress)
}

// declinePresenter is used when no Presenter is configured.
type declinePresenter struct{}

func (declinePresenter) Confirm(context.Context, Prompt) (bool, error) { return false, nil }

func (declinePresenter) ReportError(error) {}
