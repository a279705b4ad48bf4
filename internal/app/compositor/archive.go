package compositor

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/klauspost/compress/zip"
)

const ArchiveContentType = "application/zip"

// Manifest describes the archive contents.
type Manifest struct {
	Session    string    `json:"session"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMS int64     `json:"durationMs"`
	Frames     int       `json:"frames"`
	FPS        int       `json:"fps"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SampleRate int       `json:"sampleRate"`
	Samples    int       `json:"samples"`
	Video      string    `json:"video"`
	Audio      string    `json:"audio"`
}

// ArchiveEncoder accumulates chunks: JPEG frames into a Motion-JPEG stream
// and PCM blocks into one WAV track.
type ArchiveEncoder struct {
	quality int
	video   bytes.Buffer
	audio   bytes.Buffer
	last    []byte
	frames  int
	samples int
}

func NewArchiveEncoder(quality int) *ArchiveEncoder {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	return &ArchiveEncoder{quality: quality}
}

func (e *ArchiveEncoder) AddFrame(img image.Image) error {
	var frame bytes.Buffer
	if err := jpeg.Encode(&frame, img, &jpeg.Options{Quality: e.quality}); err != nil {
		return fmt.Errorf("encode frame %d: %w", e.frames, err)
	}
	e.last = frame.Bytes()
	e.video.Write(e.last)
	e.frames++
	return nil
}

// RepeatFrame appends the previous frame again. It reports false when no
// frame has been encoded yet.
func (e *ArchiveEncoder) RepeatFrame() bool {
	if e.last == nil {
		return false
	}
	e.video.Write(e.last)
	e.frames++
	return true
}

func (e *ArchiveEncoder) AddAudio(pcm []int16) {
	_ = binary.Write(&e.audio, binary.LittleEndian, pcm)
	e.samples += len(pcm)
}

func (e *ArchiveEncoder) Frames() int { return e.frames }

// Finish writes the zip archive; m's counters are filled in.
func (e *ArchiveEncoder) Finish(m Manifest, sampleRate int) ([]byte, error) {
	m.Frames = e.frames
	m.Samples = e.samples
	m.SampleRate = sampleRate
	m.Video = "video.mjpeg"
	m.Audio = "audio.wav"

	var out bytes.Buffer
	zw := zip.NewWriter(&out)

	if err := writeEntry(zw, m.Video, zip.Store, e.video.Bytes()); err != nil {
		return nil, err
	}
	wav := append(wavHeader(e.audio.Len(), sampleRate), e.audio.Bytes()...)
	if err := writeEntry(zw, m.Audio, zip.Deflate, wav); err != nil {
		return nil, err
	}
	manifest, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeEntry(zw, "manifest.json", zip.Deflate, manifest); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return out.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, method uint16, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: time.Now()})
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// wavHeader is the 44-byte RIFF header for 16-bit mono PCM.
func wavHeader(dataLen, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	binary.LittleEndian.PutUint32(h[4:], uint32(36+dataLen))
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1)
	binary.LittleEndian.PutUint16(h[22:], channels)
	binary.LittleEndian.PutUint32(h[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:], bitsPerSample)
	copy(h[36:], "data")
	binary.LittleEndian.PutUint32(h[40:], uint32(dataLen))
	return h
}
