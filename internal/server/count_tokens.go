package server

import (
	"github.com/brightloop/qgateway/internal/anthropic"
)

// charsPerToken approximates the average characters-per-token ratio for
// English prose, the same rough constant the teacher's CLI cost
// estimator used for budget warnings.
const charsPerToken = 4

// estimateTokens produces a deterministic, non-exact token estimate for
// POST /v1/messages/count_tokens. Spec §1 excludes exact tokenizer
// fidelity from scope; this heuristic exists only so the endpoint
// returns a plausible number rather than erroring.
func estimateTokens(req anthropic.CountTokensRequest) int {
	chars := 0

	for _, m := range req.Messages {
		blocks, err := m.ContentBlocks()
		if err != nil {
			continue
		}
		for _, b := range blocks {
			chars += len(b.Text)
			if b.Type == "tool_result" {
				resultBlocks, err := b.ToolResultContentBlocks()
				if err == nil {
					for _, rb := range resultBlocks {
						chars += len(rb.Text)
					}
				}
			}
			if b.Type == "tool_use" {
				chars += len(b.Input)
			}
		}
	}

	if len(req.System) > 0 {
		sysReq := anthropic.Request{System: req.System}
		if text, err := sysReq.SystemText(); err == nil {
			chars += len(text)
		}
	}

	for _, t := range req.Tools {
		chars += len(t.Name) + len(t.Description) + len(t.InputSchema)
	}

	tokens := chars / charsPerToken
	if tokens < 1 && chars > 0 {
		tokens = 1
	}
	return tokens
}
