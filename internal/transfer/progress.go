// SPDX-License-Identifier: MPL-2.0

package transfer

import (
	"time"

	"github.com/docker/go-units"
)

// reportInterval is the minimum wall-clock time between rate recomputations.
const reportInterval = time.Second

//nolint:gochecknoglobals // Immutable unit table for FormatRate.
var rateUnits = []string{"B", "KB", "MB", "GB", "TB"}

type (
	// Progress is a point-in-time snapshot of a running download. It is
	// recomputed for each report rather than accumulated by the receiver.
	Progress struct {
		// BytesReceived counts body bytes written so far.
		BytesReceived int64
		// TotalBytes is the advertised length, or -1 when the server did not send one.
		TotalBytes int64
		// RateBytesPerSec is the throughput over the most recent reporting tick.
		RateBytesPerSec float64
		// Percent is 0-100, or -1 when TotalBytes is unknown.
		Percent int
	}

	// ProgressFunc receives Progress snapshots on the downloading goroutine.
	ProgressFunc func(Progress)

	// progressReporter throttles Progress emission for one download.
	progressReporter struct {
		clock    Clock
		emit     ProgressFunc
		total    int64
		received int64

		tickAt    time.Time
		tickBytes int64
		rate      float64
		percent   int
	}
)

// Indeterminate reports whether the percentage cannot be computed.
func (p Progress) Indeterminate() bool {
	return p.Percent < 0
}

// Fraction returns completion in [0,1], or 0 when indeterminate.
func (p Progress) Fraction() float64 {
	if p.Indeterminate() {
		return 0
	}
	return float64(p.Percent) / 100
}

// FormatRate renders a throughput using binary multiples, e.g. "1.5 MB/s".
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec < 1024 {
		return units.CustomSize("%.0f %s", bytesPerSec, 1024.0, rateUnits) + "/s"
	}
	return units.CustomSize("%.1f %s", bytesPerSec, 1024.0, rateUnits) + "/s"
}

// FormatBytes renders a byte count, e.g. "12.3MiB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "?"
	}
	return units.BytesSize(float64(n))
}

func newProgressReporter(clock Clock, total int64, emit ProgressFunc) *progressReporter {
	if total <= 0 {
		total = -1
	}
	return &progressReporter{
		clock:   clock,
		emit:    emit,
		total:   total,
		tickAt:  clock.Now(),
		percent: percentOf(0, total),
	}
}

// start emits the initial snapshot so the receiver learns the total size.
func (r *progressReporter) start() {
	if r.emit != nil {
		r.emit(r.snapshot())
	}
}

// add records n more bytes and emits when a second has elapsed since the last
// rate tick or the whole percentage changed.
func (r *progressReporter) add(n int) {
	r.received += int64(n)

	changed := false
	now := r.clock.Now()
	if elapsed := now.Sub(r.tickAt); elapsed >= reportInterval {
		r.rate = float64(r.received-r.tickBytes) / elapsed.Seconds()
		r.tickAt = now
		r.tickBytes = r.received
		changed = true
	}
	if p := percentOf(r.received, r.total); p != r.percent {
		r.percent = p
		changed = true
	}

	if changed && r.emit != nil {
		r.emit(r.snapshot())
	}
}

// finish emits the final snapshot unconditionally.
func (r *progressReporter) finish() {
	if r.total < 0 {
		// Unknown length: the final count is the total.
		r.total = r.received
		r.percent = percentOf(r.received, r.total)
	}
	if r.emit != nil {
		r.emit(r.snapshot())
	}
}

func (r *progressReporter) snapshot() Progress {
	return Progress{
		BytesReceived:   r.received,
		TotalBytes:      r.total,
		RateBytesPerSec: r.rate,
		Percent:         r.percent,
	}
}

func percentOf(received, total int64) int {
	if total <= 0 {
		if total == 0 && received == 0 {
			return 100
		}
		return -1
	}
	p := int(received * 100 / total)
	if p > 100 {
		p = 100
	}
	return p
}
