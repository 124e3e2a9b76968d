// Package metrics holds the optional Prometheus counters the core codec
// and container packages increment when they take a recovery path on
// otherwise-fatal input: a missing reference picture, a dropped PID in an
// MPEG-TS continuity sequence, or a PSI section that fails its CRC-32.
// Counters register themselves against prometheus.DefaultRegisterer on
// import, the same as any other promauto metric; nothing in this package
// or its callers imports an HTTP server, so a caller that never wires up
// /metrics pays nothing beyond the bookkeeping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MissingReferenceFallbacksTotal counts P/B slices decoded against a
	// synthesized mid-gray reference because no reference picture had
	// been decoded yet (first packet loss, or a stream that starts mid-GOP).
	MissingReferenceFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tao_missing_reference_fallbacks_total",
		Help: "Video frames decoded against a synthesized reference because no real reference picture was available.",
	})

	// GapFillTotal counts MPEG-TS continuity counter discontinuities per
	// PID that were not flagged by the adaptation field's discontinuity
	// indicator, i.e. packets that were silently dropped in transit.
	GapFillTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tao_gap_fill_total",
		Help: "MPEG-TS continuity counter gaps detected per PID, where demuxing continued past the gap rather than failing.",
	}, []string{"pid"})

	// CRCMismatchTotal counts PSI sections (PAT/PMT) whose trailing
	// CRC-32 did not match their contents, so the section was discarded.
	CRCMismatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tao_crc_mismatch_total",
		Help: "PSI sections discarded for failing their CRC-32 check, by table (pat/pmt).",
	}, []string{"table"})
)
