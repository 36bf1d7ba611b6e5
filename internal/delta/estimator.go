// Package delta converts a meter's lifetime-cumulative energy counter
// into bounded incremental consumption. The hardware reports a running
// kWh total that resets on power cycles and occasionally jumps when the
// firmware switches reporting units, so raw differences cannot be
// trusted blindly.
package delta

import (
	"math"
	"sync"
	"time"
)

// Snapshot is the per-device state retained between samples. Power and
// Accumulated hold the bucket totals as they stood before the most
// recent fold, which is what the live-usage view subtracts to show what
// the last sample added.
type Snapshot struct {
	Counter     float64
	HasCounter  bool
	Voltage     float64
	Current     float64
	Power       float64
	Accumulated float64
	Timestamp   time.Time
}

// Cache holds the last-seen snapshot per device for the lifetime of the
// process. It is not persisted: after a restart the first sample of
// each device falls back to the expected-increment estimate, which is a
// documented accuracy trade-off, not a failure mode.
type Cache struct {
	mu       sync.Mutex
	byDevice map[string]Snapshot
}

func NewCache() *Cache {
	return &Cache{byDevice: make(map[string]Snapshot)}
}

// Previous returns the snapshot recorded for the device, if any.
func (c *Cache) Previous(deviceID string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byDevice[deviceID]
	return s, ok
}

func (c *Cache) setCounter(deviceID string, counter float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.byDevice[deviceID]
	s.Counter = counter
	s.HasCounter = true
	c.byDevice[deviceID] = s
}

// Record stores the post-sample state for the device: the instantaneous
// voltage/current of the sample plus the bucket totals from before the
// fold. The counter field is managed by the estimator and left intact.
func (c *Cache) Record(deviceID string, voltage, current, prevPower, prevAccumulated float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.byDevice[deviceID]
	s.Voltage = voltage
	s.Current = current
	s.Power = prevPower
	s.Accumulated = prevAccumulated
	s.Timestamp = at
	c.byDevice[deviceID] = s
}

// Reason records which branch produced a delta.
type Reason string

const (
	// ReasonRaw means the raw counter difference was accepted.
	ReasonRaw Reason = "raw"
	// ReasonFirstSample means no prior counter was cached and the
	// expected increment was synthesized.
	ReasonFirstSample Reason = "first_sample"
	// ReasonReset means the counter went backwards (device reset).
	ReasonReset Reason = "reset"
	// ReasonMismatch means the jump was implausibly large for the
	// reported power (unit or interval mismatch).
	ReasonMismatch Reason = "mismatch"
)

// Anomaly reports whether the reason indicates a distrusted counter
// reading rather than ordinary missing history.
func (r Reason) Anomaly() bool {
	return r == ReasonReset || r == ReasonMismatch
}

// Estimator bounds counter deltas using the expected consumption at the
// sample's reported power. It never fails and never returns a negative
// or non-finite value.
type Estimator struct {
	cache   *Cache
	nominal time.Duration
}

// NewEstimator wires the estimator to its cache. nominal is the
// expected sampling cadence used whenever the raw counter difference
// cannot be trusted.
func NewEstimator(cache *Cache, nominal time.Duration) *Estimator {
	return &Estimator{cache: cache, nominal: nominal}
}

// expected returns the energy in kWh a load drawing power watts would
// consume over the given interval.
func expected(power float64, interval time.Duration) float64 {
	e := power * interval.Hours() / 1000
	if e < 0 || math.IsNaN(e) || math.IsInf(e, 0) {
		return 0
	}
	return e
}

// Delta returns the incremental energy for a counter reading along
// with the branch that produced it. The cached counter is advanced in
// every branch so the next sample diffs against this reading.
func (e *Estimator) Delta(deviceID string, power, counter float64, intervalHint time.Duration) (float64, Reason) {
	prev, ok := e.cache.Previous(deviceID)
	e.cache.setCounter(deviceID, counter)

	if !ok || !prev.HasCounter {
		// Cold start: synthesize a prior counter one expected increment
		// back, so the first delta is the expected increment rather
		// than the lifetime total.
		return expected(power, intervalHint), ReasonFirstSample
	}

	rawDelta := counter - prev.Counter
	switch {
	case rawDelta < 0 || math.IsNaN(rawDelta):
		// Counter reset on device power cycle.
		return expected(power, e.nominal), ReasonReset
	case rawDelta > 2*expected(power, time.Hour):
		// More than two hours' worth of consumption at the current
		// power between samples points at a unit or interval mismatch.
		return expected(power, e.nominal), ReasonMismatch
	default:
		return rawDelta, ReasonRaw
	}
}

// Nominal exposes the configured cadence for callers that need the same
// interval hint the estimator falls back to.
func (e *Estimator) Nominal() time.Duration {
	return e.nominal
}
