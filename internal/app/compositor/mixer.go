package compositor

import (
	"math"

	"github.com/dkeye/Huddle/internal/core"
)

// Mixer sums every input into one bus with clipping.
type Mixer struct {
	scratch []int16
	acc     []int32
}

// Mix pulls n samples from each source. Sources with fewer buffered samples
// contribute silence for the remainder.
func (m *Mixer) Mix(sources []core.AudioSource, n int) []int16 {
	if cap(m.scratch) < n {
		m.scratch = make([]int16, n)
		m.acc = make([]int32, n)
	}
	scratch, acc := m.scratch[:n], m.acc[:n]
	clear(acc)

	for _, src := range sources {
		if src == nil {
			continue
		}
		got := src.ReadPCM(scratch)
		for i := 0; i < got; i++ {
			acc[i] += int32(scratch[i])
		}
	}

	out := make([]int16, n)
	for i, v := range acc {
		out[i] = clip(v)
	}
	return out
}

func clip(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
