// SPDX-License-Identifier: MPL-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/upkit/upkit/internal/archive"
	"github.com/upkit/upkit/internal/transfer"
	"github.com/upkit/upkit/internal/version"
)

const (
	eventBuffer = 16
	// stateSlots keeps room in the buffer for every state event a flow can
	// emit, so the worker never blocks on a consumer that stopped reading.
	stateSlots = 6
)

type (
	// Event is one flow notification. Exactly one of Transfer and Extraction
	// is set for progress events; both are nil for state events.
	Event struct {
		State      State
		Transfer   *transfer.Progress
		Extraction *archive.Progress
		// Err is set on the Failed and Cancelled events.
		Err error
	}

	// Flow is one running update attempt.
	Flow struct {
		ID string

		events chan Event
		cancel context.CancelFunc
		done   chan struct{}

		mu  sync.Mutex
		err error
	}
)

// IsProgress reports whether e carries progress rather than a state change.
func (e Event) IsProgress() bool {
	return e.Transfer != nil || e.Extraction != nil
}

// Events is closed after the terminal event.
func (f *Flow) Events() <-chan Event {
	return f.events
}

// Cancel stops the download. It has no effect once extraction has begun.
func (f *Flow) Cancel() {
	f.cancel()
}

// Wait blocks until the flow ends and returns its error. It returns nil
// when the flow reached Restarting.
func (f *Flow) Wait() error {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Done is closed when the flow ends.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

func (f *Flow) emitState(s State, err error) {
	f.events <- Event{State: s, Err: err}
}

// emitProgress drops the event while the consumer lags.
func (f *Flow) emitProgress(ev Event) {
	if len(f.events) >= cap(f.events)-stateSlots {
		return
	}
	f.events <- ev
}

// Start begins Downloading → Extracting → Staging on a worker goroutine.
// It requires a newer version from a previous Check; a failed or cancelled
// flow may be started again.
func (o *Orchestrator) Start(ctx context.Context) (*Flow, error) {
	latest := o.Latest()
	err := o.enter(StateDownloading, func(s State) bool {
		switch s {
		case StateUpdateAvailable, StateFailed, StateCancelled:
			return version.IsUpdateAvailable(o.cfg.Current, latest)
		default:
			return false
		}
	})
	if err != nil {
		return nil, err
	}

	dlCtx, cancel := context.WithCancel(ctx)
	f := &Flow{
		ID:     uuid.NewString(),
		events: make(chan Event, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go o.run(dlCtx, f, latest)
	return f, nil
}

// BeginUpdateFlow starts a flow and delivers its events to the callbacks on
// the calling goroutine until it ends. It returns the flow's error.
func (o *Orchestrator) BeginUpdateFlow(ctx context.Context, onState func(State), onProgress func(Event)) error {
	f, err := o.Start(ctx)
	if err != nil {
		return err
	}
	for ev := range f.Events() {
		if ev.IsProgress() {
			if onProgress != nil {
				onProgress(ev)
			}
			continue
		}
		if onState != nil {
			onState(ev.State)
		}
	}
	return f.Wait()
}

func (o *Orchestrator) run(dlCtx context.Context, f *Flow, latest version.Version) {
	logger := o.logger.With("flow", f.ID)
	logger.Info("update started", "current", o.cfg.Current, "latest", latest)

	finish := func(s State, err error) {
		if err != nil {
			err = &FlowError{Phase: o.State(), Current: o.cfg.Current, Latest: latest, Err: err}
			logger.Error("update ended", "state", s, "err", err)
		}
		o.set(s)
		f.mu.Lock()
		f.err = err
		f.mu.Unlock()
		f.emitState(s, err)
		f.cancel()
		close(f.events)
		close(f.done)
	}

	f.emitState(StateDownloading, nil)
	pkg := o.cfg.PackagePath()
	err := o.transport.Download(dlCtx, o.cfg.PackageURL, pkg, func(p transfer.Progress) {
		f.emitProgress(Event{State: StateDownloading, Transfer: &p})
	})
	switch {
	case errors.Is(err, transfer.ErrCancelled):
		finish(StateCancelled, err)
		return
	case err != nil:
		finish(StateFailed, err)
		return
	}

	o.set(StateExtracting)
	f.emitState(StateExtracting, nil)
	payload, err := o.extract(pkg, f)
	if err != nil {
		finish(StateFailed, err)
		return
	}

	o.set(StateStaging)
	f.emitState(StateStaging, nil)
	plan, err := o.planner(payload)
	if err == nil {
		err = o.stager.Stage(plan)
	}
	if err != nil {
		finish(StateFailed, err)
		return
	}

	logger.Info("handing off to restart helper")
	o.set(StateRestarting)
	if err := o.stager.LaunchAndExit(); err != nil {
		o.set(StateStaging)
		finish(StateFailed, err)
		return
	}
	finish(StateRestarting, nil)
}

// extract unpacks pkg into a fresh staging dir and returns the payload dir.
func (o *Orchestrator) extract(pkg string, f *Flow) (string, error) {
	staging := o.cfg.StagingDir()
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("clearing staging dir: %w", err)
	}

	err := o.extractor.Extract(pkg, staging, o.cfg.Password, func(p archive.Progress) {
		f.emitProgress(Event{State: StateExtracting, Extraction: &p})
	})
	if err != nil {
		return "", err
	}

	payload := o.cfg.PayloadPath()
	info, err := os.Stat(payload)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: payload dir %q not found in package", archive.ErrExtraction, o.cfg.PayloadDir)
	}

	if err := os.Remove(pkg); err != nil {
		o.logger.Warn("could not remove package", "path", pkg, "err", err)
	}
	return payload, nil
}
