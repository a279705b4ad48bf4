package core

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

// Artifact is one finished recording.
type Artifact struct {
	Session     domain.SessionID
	ContentType string
	Data        []byte
	StartedAt   time.Time
	Duration    time.Duration
	Frames      int
}

// ArtifactSink persists finished recordings keyed by session id.
type ArtifactSink interface {
	Store(ctx context.Context, a Artifact) (ref string, err error)
}

// Pipeline is the downstream processing step invoked after a successful upload.
type Pipeline interface {
	Process(ctx context.Context, session domain.SessionID, ref string)
}

// IdentityProvider supplies the local participant before joining.
type IdentityProvider interface {
	Identity(ctx context.Context) (domain.Identity, error)
}

// StaticIdentity is an IdentityProvider for a fixed identity.
type StaticIdentity domain.Identity

func (s StaticIdentity) Identity(context.Context) (domain.Identity, error) {
	return domain.Identity(s), nil
}
