package events

import (
	"encoding/json"
	"strings"

	"github.com/brightloop/qgateway/internal/wire"
)

// Classify turns a decoded wire.Frame into an Event, per spec §4.3. It
// never fails: unparseable payloads demote to KindUnknown rather than
// erroring the whole stream.
func Classify(f wire.Frame) Event {
	if mt, ok := wire.LookupString(f.Headers, ":message-type"); ok {
		switch mt {
		case "error":
			code, _ := wire.LookupString(f.Headers, ":error-code")
			if code == "" {
				code = "UnknownError"
			}
			return Event{Kind: KindError, Code: code, Message: payloadText(f.Payload)}
		case "exception":
			typ, _ := wire.LookupString(f.Headers, ":exception-type")
			if typ == "" {
				typ = "UnknownException"
			}
			return Event{Kind: KindException, Type: typ, Message: payloadText(f.Payload)}
		}
	}

	eventType, _ := wire.LookupString(f.Headers, ":event-type")
	return classifyByEventType(eventType, f.Payload)
}

func payloadText(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	return string(payload)
}

func unknown(eventType string, payload []byte) Event {
	return Event{Kind: KindUnknown, RawType: eventType, RawPayload: append(json.RawMessage(nil), payload...)}
}

func classifyByEventType(eventType string, payload []byte) Event {
	switch eventType {
	case "assistantResponseEvent":
		var p struct {
			ConversationID string `json:"conversationId"`
			MessageID      string `json:"messageId"`
			Content        string `json:"content"`
			ContentType    string `json:"contentType"`
			MessageStatus  string `json:"messageStatus"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return unknown(eventType, payload)
		}
		return Event{
			Kind:           KindAssistantResponse,
			ConversationID: p.ConversationID,
			MessageID:      p.MessageID,
			Content:        p.Content,
			ContentType:    p.ContentType,
			Completed:      strings.EqualFold(p.MessageStatus, "COMPLETED"),
		}

	case "toolUseEvent":
		var p struct {
			Name      string          `json:"name"`
			ToolUseID string          `json:"toolUseId"`
			Input     json.RawMessage `json:"input"`
			Stop      bool            `json:"stop"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return unknown(eventType, payload)
		}
		ev := Event{Kind: KindToolUse, ToolName: p.Name, ToolUseID: p.ToolUseID, ToolStop: p.Stop}
		switch {
		case len(p.Input) == 0:
			// no input in this chunk
		case p.Input[0] == '"':
			var frag string
			if err := json.Unmarshal(p.Input, &frag); err == nil {
				ev.ToolInputFrag = frag
			}
		default:
			ev.ToolInput = p.Input
		}
		return ev

	case "contextUsageEvent":
		var p struct {
			ContextUsagePercentage float64 `json:"contextUsagePercentage"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			return unknown(eventType, payload)
		}
		return Event{Kind: KindContextUsage, ContextUsagePercentage: p.ContextUsagePercentage}

	case "meteringEvent":
		return Event{Kind: KindMetering}

	case "sessionStartEvent":
		var p struct {
			ConversationID string `json:"conversationId"`
		}
		_ = json.Unmarshal(payload, &p)
		return Event{Kind: KindSessionStart, ConversationID: p.ConversationID}

	case "sessionEndEvent":
		var p struct {
			ConversationID string `json:"conversationId"`
		}
		_ = json.Unmarshal(payload, &p)
		return Event{Kind: KindSessionEnd, ConversationID: p.ConversationID}

	case "toolCallRequestEvent":
		var p struct {
			ToolUseID string `json:"toolUseId"`
			Name      string `json:"name"`
		}
		_ = json.Unmarshal(payload, &p)
		return Event{Kind: KindToolCallRequest, ToolUseID: p.ToolUseID, ToolName: p.Name}

	case "toolCallErrorEvent":
		var p struct {
			ToolUseID string `json:"toolUseId"`
			Message   string `json:"message"`
		}
		_ = json.Unmarshal(payload, &p)
		return Event{Kind: KindToolCallError, ToolUseID: p.ToolUseID, Message: p.Message}

	default:
		return unknown(eventType, payload)
	}
}
