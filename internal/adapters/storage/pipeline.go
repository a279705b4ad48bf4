package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// LogPipeline only reports that a recording is ready for processing.
type LogPipeline struct{}

func (LogPipeline) Process(_ context.Context, session domain.SessionID, ref string) {
	log.Info().Str("module", "pipeline").Str("session", string(session)).Str("ref", ref).Msg("recording ready for processing")
}

// PipelineByName maps the configured pipeline name onto an implementation.
// "none" and "" disable downstream processing.
func PipelineByName(name string) (core.Pipeline, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "log":
		return LogPipeline{}, nil
	default:
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}
}
