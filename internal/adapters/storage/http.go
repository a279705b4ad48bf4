package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// Artifact metadata travels next to the body of an upload.
const (
	HeaderStartedAt = "X-Huddle-Started-At"
	HeaderDuration  = "X-Huddle-Duration-Ms"
	HeaderFrames    = "X-Huddle-Frames"
)

// SetArtifactHeaders writes the artifact metadata onto h.
func SetArtifactHeaders(h http.Header, a core.Artifact) {
	h.Set("Content-Type", a.ContentType)
	h.Set(HeaderStartedAt, a.StartedAt.UTC().Format(time.RFC3339Nano))
	h.Set(HeaderDuration, strconv.FormatInt(a.Duration.Milliseconds(), 10))
	h.Set(HeaderFrames, strconv.Itoa(a.Frames))
}

// ArtifactFromRequest rebuilds an artifact from an upload. Missing or
// malformed metadata headers leave the corresponding field zero.
func ArtifactFromRequest(h http.Header, session domain.SessionID, data []byte) core.Artifact {
	a := core.Artifact{
		Session:     session,
		ContentType: h.Get("Content-Type"),
		Data:        data,
	}
	if t, err := time.Parse(time.RFC3339Nano, h.Get(HeaderStartedAt)); err == nil {
		a.StartedAt = t
	}
	if ms, err := strconv.ParseInt(h.Get(HeaderDuration), 10, 64); err == nil {
		a.Duration = time.Duration(ms) * time.Millisecond
	}
	if n, err := strconv.Atoi(h.Get(HeaderFrames)); err == nil {
		a.Frames = n
	}
	return a
}

// StoreResponse is the body returned by the recording upload endpoint.
type StoreResponse struct {
	Ref string `json:"ref"`
}

func baseURL(server string) string { return strings.TrimRight(server, "/") }

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
}

// HTTPSink uploads artifacts to the server's recording endpoint.
type HTTPSink struct {
	Server string
	Client *http.Client
}

func NewHTTPSink(server string) *HTTPSink {
	return &HTTPSink{Server: server, Client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *HTTPSink) Store(ctx context.Context, a core.Artifact) (string, error) {
	endpoint := fmt.Sprintf("%s/api/sessions/%s/recordings", baseURL(s.Server), url.PathEscape(string(a.Session)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(a.Data))
	if err != nil {
		return "", err
	}
	SetArtifactHeaders(req.Header, a)

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("upload: %w", readError(resp))
	}

	var out StoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("upload: decode response: %w", err)
	}
	log.Info().Str("module", "storage").Str("session", string(a.Session)).Str("ref", out.Ref).Msg("recording uploaded")
	return out.Ref, nil
}

// HTTPIdentity asks the server's identity endpoint for a user id. The signed
// token that comes with it is kept for the signal endpoint.
type HTTPIdentity struct {
	Server string
	Name   string
	Client *http.Client

	mu    sync.Mutex
	token string
}

type identityResponse struct {
	domain.Identity
	Token string `json:"token"`
}

func NewHTTPIdentity(server, name string) *HTTPIdentity {
	return &HTTPIdentity{Server: server, Name: name, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *HTTPIdentity) Identity(ctx context.Context) (domain.Identity, error) {
	endpoint := baseURL(p.Server) + "/api/identity?" + url.Values{"name": {p.Name}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Identity{}, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("identity: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.Identity{}, fmt.Errorf("identity: %w", readError(resp))
	}

	var raw identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.Identity{}, fmt.Errorf("identity: decode: %w", err)
	}
	who, err := domain.ParseIdentity(string(raw.ID), raw.DisplayName)
	if err != nil {
		return domain.Identity{}, err
	}
	p.mu.Lock()
	p.token = raw.Token
	p.mu.Unlock()
	return who, nil
}

// Token returns the token issued with the last identity.
func (p *HTTPIdentity) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}
