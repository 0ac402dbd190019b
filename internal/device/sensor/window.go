// Package sensor holds the rolling tri-axis sample window fed to the crash scorer.
package sensor

import (
	"math"
	"sync"
	"time"
)

// Sample is one IMU reading. Accel is in g, Gyro in rad/s.
type Sample struct {
	At    time.Time  `json:"at"`
	Accel [3]float64 `json:"accel"`
	Gyro  [3]float64 `json:"gyro"`
}

// Magnitude is the acceleration vector norm in g.
func (s Sample) Magnitude() float64 {
	return norm(s.Accel)
}

// AngularRate is the rotation vector norm in rad/s.
func (s Sample) AngularRate() float64 {
	return norm(s.Gyro)
}

func norm(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// Window is a fixed-capacity ring buffer. Push overwrites the oldest sample.
type Window struct {
	mu    sync.RWMutex
	buf   []Sample
	head  int
	count int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]Sample, capacity)}
}

// CapacityFor returns rate*seconds, at least 1.
func CapacityFor(rateHz int, span time.Duration) int {
	n := int(float64(rateHz) * span.Seconds())
	if n < 1 {
		return 1
	}
	return n
}

func (w *Window) Push(s Sample) {
	w.mu.Lock()
	w.buf[w.head] = s
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
	w.mu.Unlock()
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.count
}

func (w *Window) Cap() int {
	return len(w.buf)
}

// Snapshot copies the samples oldest first.
func (w *Window) Snapshot() []Sample {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Sample, w.count)
	start := (w.head - w.count + len(w.buf)) % len(w.buf)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

// Peak returns the sample with the largest acceleration magnitude.
func Peak(samples []Sample) (Sample, bool) {
	if len(samples) == 0 {
		return Sample{}, false
	}
	best := samples[0]
	for _, s := range samples[1:] {
		if s.Magnitude() > best.Magnitude() {
			best = s
		}
	}
	return best, true
}

func MaxAngularRate(samples []Sample) float64 {
	var max float64
	for _, s := range samples {
		if r := s.AngularRate(); r > max {
			max = r
		}
	}
	return max
}
