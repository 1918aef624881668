package audio

import (
	"math"
	"sync"
)

// RMS returns the root-mean-square level of a PCM buffer, normalized to
// [0, 1] against full scale int16.
func RMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

// Level returns the average absolute magnitude of a buffer, normalized
// to [0, 1]. This drives the volume meter callback; RMS drives the
// voice-activity gate.
func Level(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s) / 32768.0
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(len(pcm))
}

// Gate is the voice-activity check: a chunk passes only when its RMS
// exceeds the threshold. A silent buffer never passes a positive
// threshold.
type Gate struct {
	mu        sync.RWMutex
	threshold float64
}

func NewGate(threshold float64) *Gate {
	return &Gate{threshold: threshold}
}

func (g *Gate) SetThreshold(t float64) {
	g.mu.Lock()
	g.threshold = t
	g.mu.Unlock()
}

func (g *Gate) Threshold() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.threshold
}

// Pass reports whether the chunk contains voice activity.
func (g *Gate) Pass(pcm []int16) bool {
	return RMS(pcm) > g.Threshold()
}
