package media

import (
	"sync"

	"github.com/zaf/g711"
)

// PCMBuffer is a bounded FIFO of samples; the oldest samples are dropped
// when full so latency stays bounded.
type PCMBuffer struct {
	mu  sync.Mutex
	buf []int16
	max int
}

func NewPCMBuffer(max int) *PCMBuffer {
	if max <= 0 {
		max = 2 * SampleRate
	}
	return &PCMBuffer{max: max}
}

func (b *PCMBuffer) Write(samples []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, samples...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
}

func (b *PCMBuffer) ReadPCM(dst []int16) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := copy(dst, b.buf)
	b.buf = append(b.buf[:0], b.buf[n:]...)
	return n
}

func (b *PCMBuffer) Drain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
}

func (b *PCMBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// EncodePCMU encodes samples to µ-law.
func EncodePCMU(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = g711.EncodeUlawFrame(s)
	}
	return out
}

func DecodePCMU(payload []byte) []int16 {
	out := make([]int16, len(payload))
	for i, b := range payload {
		out[i] = g711.DecodeUlawFrame(b)
	}
	return out
}
