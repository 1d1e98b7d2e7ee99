package source

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/pfrederiksen/discovr-ingest/internal/event"
)

// JSONSource reads a JSON array of candidates.
type JSONSource struct {
	cfg    Config
	client *resty.Client
}

// NewJSONSource creates a JSONSource from c.
func NewJSONSource(c Config) *JSONSource {
	return &JSONSource{cfg: c, client: newClient(c)}
}

// Name implements Source.
func (s *JSONSource) Name() string { return s.cfg.Name }

// Fetch implements Source.
func (s *JSONSource) Fetch(ctx context.Context) ([]event.CandidateEvent, error) {
	body, err := fetchBody(ctx, s.client, s.cfg)
	if err != nil {
		return nil, err
	}

	var candidates []event.CandidateEvent
	if err := json.Unmarshal(body, &candidates); err != nil {
		return nil, fmt.Errorf("parsing candidates from %s: %w", s.cfg.Name, err)
	}
	for i := range candidates {
		stamp(s.cfg, &candidates[i])
	}
	return candidates, nil
}
