package sse

import (
	"encoding/json"

	"github.com/brightloop/qgateway/internal/anthropic"
	"github.com/brightloop/qgateway/internal/events"
	"github.com/brightloop/qgateway/internal/toolcalls"
)

// Aggregator consumes the same event stream as Emitter but builds a
// single final Anthropic response instead of writing SSE, per spec §4.5
// "Non-streaming aggregation". Not safe for concurrent use.
type Aggregator struct {
	model string

	text        string
	sawText     bool
	asm         *toolcalls.Assembler
	completedID map[string]bool

	inputTokens int
}

// NewAggregator returns a ready-to-use Aggregator.
func NewAggregator(model string) *Aggregator {
	return &Aggregator{model: model, asm: toolcalls.New(), completedID: make(map[string]bool)}
}

// HandleEvent folds one classified upstream event into the aggregator's
// running state.
func (a *Aggregator) HandleEvent(ev events.Event) {
	switch ev.Kind {
	case events.KindContextUsage:
		a.inputTokens = roundInputTokens(ev.ContextUsagePercentage, DefaultContextWindowTokens)

	case events.KindAssistantResponse:
		if ev.Content != "" {
			a.sawText = true
			a.text += ev.Content
		}

	case events.KindToolUse:
		a.asm.StartCall(ev.ToolUseID, ev.ToolName)
		if len(ev.ToolInput) > 0 {
			a.asm.AddArguments(ev.ToolUseID, ev.ToolInput)
		}
		if ev.ToolInputFrag != "" {
			a.asm.AddFragment(ev.ToolUseID, ev.ToolInputFrag)
		}
		if ev.ToolStop {
			a.completedID[ev.ToolUseID] = true
		}
	}
}

// Result builds the final anthropic.Response from accumulated state.
func (a *Aggregator) Result() (anthropic.Response, error) {
	var content []anthropic.ContentBlock
	if a.sawText {
		content = append(content, anthropic.ContentBlock{Type: "text", Text: a.text})
	}

	stopReason := "end_turn"
	for _, id := range a.asm.IDs() {
		if !a.completedID[id] {
			continue
		}
		stopReason = "tool_use"
		input, err := a.asm.Finalize(id)
		if err != nil {
			return anthropic.Response{}, err
		}
		content = append(content, anthropic.ContentBlock{
			Type:  "tool_use",
			ID:    id,
			Name:  a.asm.Name(id),
			Input: json.RawMessage(input),
		})
	}

	return anthropic.Response{
		ID:         "msg_" + newHexID(24),
		Type:       "message",
		Role:       anthropic.RoleAssistant,
		Model:      a.model,
		Content:    content,
		StopReason: stopReason,
		Usage:      anthropic.Usage{InputTokens: a.inputTokens, OutputTokens: placeholderOutputTokens},
	}, nil
}
