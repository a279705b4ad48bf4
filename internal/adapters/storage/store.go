// Package storage persists finished recordings and talks to the server's
// recording and identity endpoints from the peer side.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrNotFound = errors.New("recording not found")
	ErrTooLarge = errors.New("recording too large")
	ErrEmpty    = errors.New("recording empty")
)

const chunkSize = 512 << 10

// Recording is the stored metadata of an artifact.
type Recording struct {
	Ref         string           `json:"ref"`
	Session     domain.SessionID `json:"session"`
	ContentType string           `json:"contentType"`
	Size        int              `json:"size"`
	StartedAt   time.Time        `json:"startedAt"`
	DurationMS  int64            `json:"durationMs"`
	Frames      int              `json:"frames"`
	StoredAt    time.Time        `json:"storedAt"`
}

type storedMeta struct {
	Recording
	Chunks int `json:"chunks"`
}

// OpenBadger opens the recording database. An empty path keeps it in memory.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// BadgerStore keeps artifacts in badger. Blobs are split into chunks under
// rec:blob:<ref>:<n>, metadata lives under rec:meta:<ref> and a per-session
// index under rec:idx:<session>:<storedAt>:<ref> keeps listings in time order.
type BadgerStore struct {
	db       *badger.DB
	maxBytes int64
	now      func() time.Time
}

func NewBadgerStore(db *badger.DB, maxBytes int64) *BadgerStore {
	return &BadgerStore{db: db, maxBytes: maxBytes, now: time.Now}
}

func metaKey(ref string) []byte { return []byte("rec:meta:" + ref) }

func blobPrefix(ref string) []byte { return []byte("rec:blob:" + ref + ":") }

func chunkKey(ref string, n int) []byte { return fmt.Appendf(nil, "rec:blob:%s:%06d", ref, n) }

func indexPrefix(session domain.SessionID) []byte { return []byte("rec:idx:" + string(session) + ":") }

func indexKey(session domain.SessionID, at time.Time, ref string) []byte {
	return fmt.Appendf(nil, "rec:idx:%s:%020d:%s", session, at.UnixNano(), ref)
}

// Store implements core.ArtifactSink.
func (s *BadgerStore) Store(ctx context.Context, a core.Artifact) (string, error) {
	if len(a.Data) == 0 {
		return "", ErrEmpty
	}
	if s.maxBytes > 0 && int64(len(a.Data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(a.Data), s.maxBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := uuid.NewString()
	at := s.now()
	meta := storedMeta{
		Recording: Recording{
			Ref:         ref,
			Session:     a.Session,
			ContentType: a.ContentType,
			Size:        len(a.Data),
			StartedAt:   a.StartedAt,
			DurationMS:  a.Duration.Milliseconds(),
			Frames:      a.Frames,
			StoredAt:    at,
		},
	}

	// Chunks go through a write batch so large blobs are split across
	// transactions; metadata is committed afterwards so a listing never
	// points at a partial blob.
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for off := 0; off < len(a.Data); off += chunkSize {
		end := min(off+chunkSize, len(a.Data))
		if err := wb.Set(chunkKey(ref, meta.Chunks), a.Data[off:end]); err != nil {
			return "", fmt.Errorf("write chunk: %w", err)
		}
		meta.Chunks++
	}
	if err := wb.Flush(); err != nil {
		return "", fmt.Errorf("flush chunks: %w", err)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(ref), data); err != nil {
			return err
		}
		return txn.Set(indexKey(a.Session, at, ref), []byte(ref))
	})
	if err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	log.Info().Str("module", "storage").Str("session", string(a.Session)).Str("ref", ref).Int("bytes", len(a.Data)).Msg("recording stored")
	return ref, nil
}

// List returns the recordings of a session, oldest first.
func (s *BadgerStore) List(session domain.SessionID) ([]Recording, error) {
	var out []Recording
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := indexPrefix(session)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ref, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			meta, err := readMeta(txn, string(ref))
			if err != nil {
				return err
			}
			out = append(out, meta.Recording)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a recording and its bytes.
func (s *BadgerStore) Get(ref string) (Recording, []byte, error) {
	if _, err := uuid.Parse(ref); err != nil {
		return Recording{}, nil, ErrNotFound
	}
	var (
		meta storedMeta
		data []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = readMeta(txn, ref)
		if err != nil {
			return err
		}
		data = make([]byte, 0, meta.Size)

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := blobPrefix(ref)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				data = append(data, v...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Recording{}, nil, err
	}
	if len(data) != meta.Size {
		return Recording{}, nil, fmt.Errorf("recording %s truncated: %d of %d bytes", ref, len(data), meta.Size)
	}
	return meta.Recording, data, nil
}

func readMeta(txn *badger.Txn, ref string) (storedMeta, error) {
	var meta storedMeta
	item, err := txn.Get(metaKey(ref))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return meta, ErrNotFound
	}
	if err != nil {
		return meta, err
	}
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &meta)
	})
	return meta, err
}
