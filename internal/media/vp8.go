package media

import (
	"bytes"
	"image"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/vp8"
)

// FrameDecoder keeps the latest decoded VP8 key frame.
type FrameDecoder struct {
	mu     sync.RWMutex
	latest image.Image
}

func NewFrameDecoder() *FrameDecoder { return &FrameDecoder{} }

// IsKeyFrame reports whether a VP8 frame is intra coded.
func IsKeyFrame(frame []byte) bool {
	return len(frame) > 0 && frame[0]&0x01 == 0
}

// Decode replaces the latest picture when frame is a key frame.
// Inter frames are skipped.
func (d *FrameDecoder) Decode(frame []byte) bool {
	if !IsKeyFrame(frame) {
		return false
	}
	dec := vp8.NewDecoder()
	dec.Init(bytes.NewReader(frame), len(frame))
	if _, err := dec.DecodeFrameHeader(); err != nil {
		log.Debug().Str("module", "media.vp8").Err(err).Msg("frame header")
		return false
	}
	img, err := dec.DecodeFrame()
	if err != nil {
		log.Debug().Str("module", "media.vp8").Err(err).Msg("decode frame")
		return false
	}
	d.mu.Lock()
	d.latest = img
	d.mu.Unlock()
	return true
}

func (d *FrameDecoder) Frame() (image.Image, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.latest != nil
}

// Reset drops the latest picture, e.g. when the sender goes dark.
func (d *FrameDecoder) Reset() {
	d.mu.Lock()
	d.latest = nil
	d.mu.Unlock()
}
