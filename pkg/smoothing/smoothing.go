// Package smoothing provides the exponential moving average filter shared by
// every noisy scalar signal of the focus engine.
package smoothing

import "math"

// Cache holds the last smoothed value of each named metric.
// Entries are created on first observation and live until Reset.
// Cache is not safe for concurrent use.
type Cache struct {
	values map[string]float64
}

// New creates an empty metric cache.
func New() *Cache {
	return &Cache{values: make(map[string]float64)}
}

// Smooth applies an unbounded EMA step to the metric and returns the result.
func (c *Cache) Smooth(key string, value, alpha float64) float64 {
	return c.smooth(key, value, alpha, math.Inf(1))
}

// SmoothBounded applies an EMA step and limits the change against the
// previous value to ±maxDelta.
func (c *Cache) SmoothBounded(key string, value, alpha, maxDelta float64) float64 {
	return c.smooth(key, value, alpha, math.Abs(maxDelta))
}

func (c *Cache) smooth(key string, value, alpha, maxDelta float64) float64 {
	if !isFinite(value) {
		// Non-finite samples never touch the cache.
		return c.values[key]
	}

	prev, ok := c.values[key]
	if !ok || !isFinite(prev) {
		c.values[key] = value
		return value
	}

	next := prev + alpha*(value-prev)
	if delta := next - prev; delta > maxDelta {
		next = prev + maxDelta
	} else if delta < -maxDelta {
		next = prev - maxDelta
	}

	c.values[key] = next
	return next
}

// Get returns the cached value for key.
func (c *Cache) Get(key string) (float64, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Value returns the cached value for key, or 0 when absent.
func (c *Cache) Value(key string) float64 {
	return c.values[key]
}

// Set overwrites the cached value for key.
func (c *Cache) Set(key string, value float64) {
	c.values[key] = value
}

// Reset drops the given keys so the next observation reseeds them.
func (c *Cache) Reset(keys ...string) {
	for _, k := range keys {
		delete(c.values, k)
	}
}

// Len returns the number of cached metrics.
func (c *Cache) Len() int {
	return len(c.values)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
