package server

import "github.com/brightloop/qgateway/internal/anthropic"

// catalog is the static model list for GET /v1/models, per spec §4.8.
// Model-catalog constants are explicitly out of scope for the core (spec
// §1) but the HTTP edge still needs something to validate requests
// against.
var catalog = []anthropic.Model{
	{ID: "claude-opus-4-5", DisplayName: "Claude Opus 4.5", CreatedAt: "2026-01-01T00:00:00Z", Type: "model"},
	{ID: "claude-sonnet-4-5", DisplayName: "Claude Sonnet 4.5", CreatedAt: "2025-09-01T00:00:00Z", Type: "model"},
	{ID: "claude-haiku-4-5", DisplayName: "Claude Haiku 4.5", CreatedAt: "2025-09-01T00:00:00Z", Type: "model"},
}

func modelByID(id string) (anthropic.Model, bool) {
	for _, m := range catalog {
		if m.ID == id {
			return m, true
		}
	}
	return anthropic.Model{}, false
}
