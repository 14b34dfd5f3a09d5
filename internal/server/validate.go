package server

import (
	"fmt"

	"github.com/brightloop/qgateway/internal/anthropic"
	"github.com/brightloop/qgateway/internal/apierr"
)

// validateMessagesRequest enforces spec §4.8's trivial per-route
// validation: model must be in the catalog, max_tokens positive,
// messages non-empty.
func validateMessagesRequest(req anthropic.Request) error {
	if _, ok := modelByID(req.Model); !ok {
		return apierr.New(apierr.KindInvalidRequest, fmt.Sprintf("model: %q is not a known model", req.Model))
	}
	if req.MaxTokens <= 0 {
		return apierr.New(apierr.KindInvalidRequest, "max_tokens: must be greater than 0")
	}
	if len(req.Messages) == 0 {
		return apierr.New(apierr.KindInvalidRequest, "messages: must be non-empty")
	}
	return nil
}
