package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/brightloop/qgateway/internal/events"
)

// DefaultContextWindowTokens is the 200,000-token window the
// percentage×2000 formula assumes (spec §9 open question: exposed as a
// parameter rather than hard-coded, so a future per-model lookup is a
// one-line change).
const DefaultContextWindowTokens = 200000

// placeholderOutputTokens preserves wire compatibility with the upstream's
// unconditional output_tokens=1 (spec §9 open question).
const placeholderOutputTokens = 1

// Emitter holds the per-request SSE state machine described in spec §4.5.
// Not safe for concurrent use; one instance per streaming request.
type Emitter struct {
	w       io.Writer
	flusher http.Flusher
	model   string

	contextWindowTokens int

	messageStartSent bool
	blockIndex       int
	textOpen         bool
	toolOpen         bool
	toolID           string
	toolName         string

	inputTokens int
	terminated  bool
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithContextWindowTokens overrides the 200,000-token default used by the
// inputTokens = round(percentage * window / 100) formula.
func WithContextWindowTokens(n int) Option {
	return func(e *Emitter) { e.contextWindowTokens = n }
}

// NewEmitter returns an Emitter writing event:/data: lines to w, flushing
// via flusher (nil is fine if w is not an http.ResponseWriter, e.g. in
// tests), echoing model in message_start.
func NewEmitter(w io.Writer, flusher http.Flusher, model string, opts ...Option) *Emitter {
	e := &Emitter{w: w, flusher: flusher, model: model, contextWindowTokens: DefaultContextWindowTokens}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Terminated reports whether a termination sequence has already been
// emitted; further events are dropped per spec §4.5 rule 6.
func (e *Emitter) Terminated() bool { return e.terminated }

func (e *Emitter) write(eventName string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: marshal %s: %w", eventName, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", eventName, data); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

func (e *Emitter) ensureMessageStart() error {
	if e.messageStartSent {
		return nil
	}
	var p messageStartPayload
	p.Type = "message_start"
	p.Message.ID = "msg_" + newHexID(24)
	p.Message.Type = "message"
	p.Message.Role = "assistant"
	p.Message.Content = []any{}
	p.Message.Model = e.model
	p.Message.Usage = usage{InputTokens: e.inputTokens, OutputTokens: placeholderOutputTokens}
	e.messageStartSent = true
	return e.write("message_start", p)
}

// HandleEvent processes one classified upstream event, emitting zero or
// more SSE events per the rules of spec §4.5. It is a no-op once the
// stream has terminated.
func (e *Emitter) HandleEvent(ev events.Event) error {
	if e.terminated {
		return nil
	}
	if err := e.ensureMessageStart(); err != nil {
		return err
	}

	switch ev.Kind {
	case events.KindContextUsage:
		e.inputTokens = roundInputTokens(ev.ContextUsagePercentage, e.contextWindowTokens)
		return nil

	case events.KindAssistantResponse:
		return e.handleAssistantResponse(ev)

	case events.KindToolUse:
		return e.handleToolUse(ev)

	case events.KindSessionEnd:
		return e.terminate("end_turn")

	case events.KindError:
		if err := e.emitError("api_error", fmt.Sprintf("%s: %s", ev.Code, ev.Message)); err != nil {
			return err
		}
		return nil

	case events.KindException:
		if err := e.emitError("api_error", fmt.Sprintf("%s: %s", ev.Type, ev.Message)); err != nil {
			return err
		}
		return nil

	default:
		// Metering, SessionStart, ToolCallRequest, ToolCallError, Unknown:
		// structurally tracked only, no SSE event.
		return nil
	}
}

func (e *Emitter) handleAssistantResponse(ev events.Event) error {
	if e.toolOpen {
		if err := e.closeToolBlock(); err != nil {
			return err
		}
	}
	if ev.Content != "" {
		if !e.textOpen {
			if err := e.openTextBlock(); err != nil {
				return err
			}
		}
		if err := e.write("content_block_delta", contentBlockDeltaPayload{
			Type: "content_block_delta", Index: e.blockIndex - 1,
			Delta: textDelta{Type: "text_delta", Text: ev.Content},
		}); err != nil {
			return err
		}
	}
	if ev.Completed {
		if e.textOpen {
			if err := e.closeTextBlock(); err != nil {
				return err
			}
		}
		return e.terminate("end_turn")
	}
	return nil
}

func (e *Emitter) handleToolUse(ev events.Event) error {
	if e.textOpen {
		if err := e.closeTextBlock(); err != nil {
			return err
		}
	}
	if !e.toolOpen {
		e.toolID = ev.ToolUseID
		e.toolName = ev.ToolName
		e.toolOpen = true
		if err := e.write("content_block_start", contentBlockStartPayload{
			Type: "content_block_start", Index: e.blockIndex,
			ContentBlock: toolUseBlock{Type: "tool_use", ID: e.toolID, Name: e.toolName, Input: map[string]any{}},
		}); err != nil {
			return err
		}
		e.blockIndex++
	}

	fragment := ev.ToolInputFrag
	if fragment == "" && len(ev.ToolInput) > 0 {
		fragment = string(ev.ToolInput)
	}
	if fragment != "" {
		if err := e.write("content_block_delta", contentBlockDeltaPayload{
			Type: "content_block_delta", Index: e.blockIndex - 1,
			Delta: inputJSONDelta{Type: "input_json_delta", PartialJSON: fragment},
		}); err != nil {
			return err
		}
	}

	if ev.ToolStop {
		if err := e.closeToolBlock(); err != nil {
			return err
		}
		return e.terminate("tool_use")
	}
	return nil
}

func (e *Emitter) openTextBlock() error {
	e.textOpen = true
	err := e.write("content_block_start", contentBlockStartPayload{
		Type: "content_block_start", Index: e.blockIndex,
		ContentBlock: textBlock{Type: "text", Text: ""},
	})
	e.blockIndex++
	return err
}

func (e *Emitter) closeTextBlock() error {
	e.textOpen = false
	return e.write("content_block_stop", contentBlockStopPayload{Type: "content_block_stop", Index: e.blockIndex - 1})
}

func (e *Emitter) closeToolBlock() error {
	e.toolOpen = false
	return e.write("content_block_stop", contentBlockStopPayload{Type: "content_block_stop", Index: e.blockIndex - 1})
}

func (e *Emitter) emitError(errType, message string) error {
	var p errorEventPayload
	p.Type = "error"
	p.Error.Type = errType
	p.Error.Message = message
	return e.write("error", p)
}

// terminate emits the close-any-open-block, message_delta, message_stop
// sequence of spec §4.5 rule 6, and marks the stream terminated.
func (e *Emitter) terminate(stopReason string) error {
	if e.terminated {
		return nil
	}
	if e.textOpen {
		if err := e.closeTextBlock(); err != nil {
			return err
		}
	}
	if e.toolOpen {
		if err := e.closeToolBlock(); err != nil {
			return err
		}
	}
	var md messageDeltaPayload
	md.Type = "message_delta"
	md.Delta.StopReason = stopReason
	md.Usage = usage{InputTokens: e.inputTokens, OutputTokens: placeholderOutputTokens}
	if err := e.write("message_delta", md); err != nil {
		return err
	}
	e.terminated = true
	return e.write("message_stop", messageStopPayload{Type: "message_stop"})
}

// newHexID returns the first n hex characters of two concatenated UUIDs,
// enough entropy for a fresh message id regardless of n.
func newHexID(n int) string {
	raw := uuid.New().String() + uuid.New().String()
	hex := make([]byte, 0, len(raw))
	for _, c := range raw {
		if c != '-' {
			hex = append(hex, byte(c))
		}
	}
	if len(hex) > n {
		hex = hex[:n]
	}
	return string(hex)
}

// roundInputTokens implements inputTokens = round(percentage/100 * window),
// i.e. round(percentage * 2000) for the default 200,000-token window,
// per spec §4.5 / §9.
func roundInputTokens(percentage float64, window int) int {
	return int(percentage/100*float64(window) + 0.5)
}
