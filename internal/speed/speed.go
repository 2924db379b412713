// Package speed implements the rolling download-rate and ETA estimator.
package speed

import "time"

// Calculator samples cumulative byte counts at least one second apart and
// derives an instantaneous rate and an ETA.
type Calculator struct {
	totalSize int64

	startTime      time.Time
	lastSampleTime time.Time
	lastSampleBytes int64

	speed float64

	now func() time.Time
}

// New creates a Calculator for a transfer of the given total size (0 if
// unknown, e.g. streaming mode).
func New(totalSize int64) *Calculator {
	now := time.Now()
	return &Calculator{
		totalSize:       totalSize,
		startTime:       now,
		lastSampleTime:  now,
		lastSampleBytes: 0,
		now:             time.Now,
	}
}

// SetTotalSize updates the size ETA is computed against, for callers that
// only learn it after the Calculator was created (e.g. a chunked transfer's
// size becomes known only once its classification probe returns).
func (c *Calculator) SetTotalSize(totalSize int64) {
	c.totalSize = totalSize
}

// Update reports the new cumulative downloaded total. It recomputes speed
// only once at least one second has elapsed since the last sample,
// otherwise it returns the last computed speed unchanged. It returns the
// current speed in bytes/s and an ETA, which is nil when the speed is zero
// or the transfer has already reached totalSize.
func (c *Calculator) Update(downloaded int64) (float64, *time.Duration) {
	now := c.now()
	elapsed := now.Sub(c.lastSampleTime)

	if elapsed >= time.Second {
		delta := downloaded - c.lastSampleBytes
		if delta < 0 {
			delta = 0
		}
		c.speed = float64(delta) / elapsed.Seconds()
		c.lastSampleTime = now
		c.lastSampleBytes = downloaded
	}

	return c.speed, c.eta(downloaded)
}

func (c *Calculator) eta(downloaded int64) *time.Duration {
	if c.totalSize <= 0 || c.speed <= 0 {
		return nil
	}
	remaining := c.totalSize - downloaded
	if remaining <= 0 {
		return nil
	}
	seconds := float64(remaining) / c.speed
	d := time.Duration(seconds * float64(time.Second))
	return &d
}

// Elapsed returns the time since the Calculator was created.
func (c *Calculator) Elapsed() time.Duration {
	return c.now().Sub(c.startTime)
}
