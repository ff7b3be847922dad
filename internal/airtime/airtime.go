// Package airtime computes LoRa on-air transmission time and tracks duty
// cycle usage over a sliding observation window.
package airtime

import (
	"fmt"
	"math"
	"time"
)

// Params holds the LoRa radio parameters required to compute airtime.
// All fields must be set to valid values before calling Calculate;
// SpreadingFactor outside [5,12] or Bandwidth <= 0 is a precondition
// violation the caller must not make.
type Params struct {
	SpreadingFactor int  // 5..12
	BandwidthHz     int  // > 0
	CodingRate      int  // 4/x, x in 5..8
	PreambleSymbols int  // preamble length in symbols
	CRC             bool
	LowDataRateOpt  bool
	ExplicitHeader  bool
}

// Calculate returns the on-air duration, in seconds, of a LoRa frame
// carrying payloadBytes of payload under the given radio parameters.
//
// t_sym = 2^SF / BW
// t_preamble = (preamble + 4.25) * t_sym
// n = ceil((8*payload - 4*SF + 28 + (16 if crc) - (20 if no header)) / (4*(SF - 2*ldro)))
// payload_sym = 8 + max(n * CR, 0)
// airtime = t_preamble + payload_sym * t_sym
func Calculate(p Params, payloadBytes int) float64 {
	sf := float64(p.SpreadingFactor)
	bw := float64(p.BandwidthHz)

	tSym := math.Pow(2, sf) / bw
	tPreamble := (float64(p.PreambleSymbols) + 4.25) * tSym

	payloadBits := 8.0 * float64(payloadBytes)
	crcBits := 0.0
	if p.CRC {
		crcBits = 16.0
	}
	headerAdjust := 20.0
	if p.ExplicitHeader {
		headerAdjust = 0.0
	}
	ldro := 0.0
	if p.LowDataRateOpt {
		ldro = 2.0
	}

	n := math.Ceil((payloadBits - 4*sf + 28 + crcBits - headerAdjust) / (4 * (sf - ldro)))
	payloadSym := 8.0 + math.Max(n*float64(p.CodingRate), 0)

	return tPreamble + payloadSym*tSym
}

// DutyWindow is a sliding ring of N buckets of equal duration d, tracking
// on-air seconds reported via Report so Duty can answer "what fraction of
// wall-clock time over the last W seconds was spent transmitting/receiving".
type DutyWindow struct {
	bucketDuration time.Duration
	buckets        []float64 // buckets[0] is the most recent bucket
	lastReport     time.Time
	now            func() time.Time
}

// NewDutyWindow creates a duty cycle tracker covering an observation window
// of observationWindow, split into buckets of bucketDuration. observationWindow
// must be an exact multiple of bucketDuration.
func NewDutyWindow(observationWindow, bucketDuration time.Duration) *DutyWindow {
	n := int(math.Ceil(float64(observationWindow) / float64(bucketDuration)))
	if n < 1 {
		n = 1
	}
	return &DutyWindow{
		bucketDuration: bucketDuration,
		buckets:        make([]float64, n),
		lastReport:     time.Now(),
		now:            time.Now,
	}
}

// Report records onSeconds of on-air time that just happened. onSeconds must
// not exceed the bucket duration.
func (d *DutyWindow) Report(onSeconds float64) error {
	bucketSecs := d.bucketDuration.Seconds()
	if onSeconds > bucketSecs {
		return fmt.Errorf("airtime: report %.3fs exceeds bucket duration %.3fs", onSeconds, bucketSecs)
	}

	now := d.now()
	delta := now.Sub(d.lastReport)

	elapsedBuckets := int(delta / d.bucketDuration)
	if elapsedBuckets > len(d.buckets) {
		elapsedBuckets = len(d.buckets)
	}
	if elapsedBuckets > 0 {
		d.buckets = append(make([]float64, elapsedBuckets), d.buckets...)
		d.buckets = d.buckets[:len(d.buckets)-elapsedBuckets]
	}

	// Correct lastReport by delta mod bucketDuration so repeated short
	// reports don't drift ahead of wall clock.
	drift := delta % d.bucketDuration
	d.lastReport = now.Add(-drift)

	d.buckets[0] += onSeconds
	return nil
}

// Duty returns the fraction of wall-clock time, in [0,1], spent on-air over
// the trailing window seconds. window must be >= bucket duration and <=
// the tracker's total observation window.
func (d *DutyWindow) Duty(window time.Duration) (float64, error) {
	bucketSecs := d.bucketDuration.Seconds()
	if window < d.bucketDuration {
		return 0, fmt.Errorf("airtime: window %s smaller than bucket duration %s", window, d.bucketDuration)
	}
	// A zero report ages the ring by the wall-clock time since the last one.
	_ = d.Report(0)
	nBuckets := int(math.Ceil(window.Seconds() / bucketSecs))
	if nBuckets > len(d.buckets) {
		return 0, fmt.Errorf("airtime: window %s exceeds observation window %s", window, time.Duration(len(d.buckets))*d.bucketDuration)
	}

	var sum float64
	for _, b := range d.buckets[:nBuckets] {
		sum += b
	}
	return sum / window.Seconds(), nil
}
