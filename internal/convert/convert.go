// Package convert turns a validated Anthropic request into the upstream
// ConversationState, per spec §4.4.
package convert

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/brightloop/qgateway/internal/anthropic"
	"github.com/brightloop/qgateway/internal/upstream"
)

// MapModel applies the case-insensitive substring mapping of spec §4.4.
func MapModel(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "opus"):
		return "upstream-opus"
	case strings.Contains(m, "sonnet"):
		return "upstream-sonnet"
	case strings.Contains(m, "haiku"):
		return "upstream-haiku"
	default:
		return "upstream-sonnet"
	}
}

// acknowledgement is the fixed assistant reply paired with an injected
// system-prompt turn, per spec §4.4.
const acknowledgement = "I will follow these instructions."

// Build converts req into a ConversationState with fresh IDs, per
// spec §4.4.
func Build(req anthropic.Request) (upstream.ConversationState, error) {
	modelID := MapModel(req.Model)

	systemText, err := req.SystemText()
	if err != nil {
		return upstream.ConversationState{}, fmt.Errorf("convert: system prompt: %w", err)
	}
	if req.Thinking != nil && req.Thinking.Type == "enabled" {
		thinkingTag := "<thinking_mode>enabled</thinking_mode>\n" +
			fmt.Sprintf("<max_thinking_length>%d</max_thinking_length>", req.Thinking.BudgetTokens)
		if systemText != "" {
			systemText = systemText + "\n" + thinkingTag
		} else {
			systemText = thinkingTag
		}
	}

	if len(req.Messages) == 0 {
		return upstream.ConversationState{}, fmt.Errorf("convert: no messages")
	}

	// Per spec §4.4, the last user message becomes currentMessage; every
	// earlier message becomes a history entry.
	lastIdx := len(req.Messages) - 1
	earlier := req.Messages[:lastIdx]
	lastMsg := req.Messages[lastIdx]

	lastBlocks, err := lastMsg.ContentBlocks()
	if err != nil {
		return upstream.ConversationState{}, fmt.Errorf("convert: message content: %w", err)
	}
	currentUM, err := buildUserTurn(lastBlocks)
	if err != nil {
		return upstream.ConversationState{}, err
	}
	currentUM.ModelID = modelID
	current := upstream.ChatMessage{UserInputMessage: currentUM}

	history := make([]upstream.ChatMessage, 0, len(earlier)+2)
	if systemText != "" {
		history = append(history,
			upstream.ChatMessage{UserInputMessage: &upstream.UserInputMessage{Content: systemText}},
			upstream.ChatMessage{AssistantResponseMessage: &upstream.AssistantResponseMessage{Content: acknowledgement}},
		)
	}

	for _, msg := range earlier {
		blocks, err := msg.ContentBlocks()
		if err != nil {
			return upstream.ConversationState{}, fmt.Errorf("convert: message content: %w", err)
		}
		switch msg.Role {
		case anthropic.RoleUser:
			um, err := buildUserTurn(blocks)
			if err != nil {
				return upstream.ConversationState{}, err
			}
			history = append(history, upstream.ChatMessage{UserInputMessage: um})
		case anthropic.RoleAssistant:
			am := buildAssistantTurn(blocks)
			history = append(history, upstream.ChatMessage{AssistantResponseMessage: am})
		}
	}

	history = enforcePairing(history)

	tools, err := BuildTools(req.Tools)
	if err != nil {
		return upstream.ConversationState{}, err
	}
	if len(tools) > 0 {
		if current.UserInputMessage.UserInputMessageContext == nil {
			current.UserInputMessage.UserInputMessageContext = &upstream.UserInputMessageContext{}
		}
		current.UserInputMessage.UserInputMessageContext.Tools = tools
	}

	return upstream.ConversationState{
		ConversationID:      uuid.NewString(),
		AgentContinuationID: uuid.NewString(),
		CurrentMessage:      current,
		History:             history,
	}, nil
}

// enforcePairing ensures history strictly alternates user, assistant,
// inserting empty synthetic turns for orphans, per spec §4.4.
func enforcePairing(turns []upstream.ChatMessage) []upstream.ChatMessage {
	if len(turns) == 0 {
		return turns
	}
	out := make([]upstream.ChatMessage, 0, len(turns)+2)
	wantUser := true
	for _, t := range turns {
		isUser := t.UserInputMessage != nil
		if isUser != wantUser {
			if wantUser {
				out = append(out, upstream.ChatMessage{UserInputMessage: &upstream.UserInputMessage{}})
			} else {
				out = append(out, upstream.ChatMessage{AssistantResponseMessage: &upstream.AssistantResponseMessage{}})
			}
			wantUser = !wantUser
		}
		out = append(out, t)
		wantUser = !wantUser
	}
	if !wantUser {
		out = append(out, upstream.ChatMessage{AssistantResponseMessage: &upstream.AssistantResponseMessage{}})
	}
	return out
}

func buildUserTurn(blocks []anthropic.ContentBlock) (*upstream.UserInputMessage, error) {
	um := &upstream.UserInputMessage{}
	var texts []string
	var images []upstream.ImageBlock
	var toolResults []upstream.ToolResult

	for _, b := range blocks {
		switch b.Type {
		case "text":
			texts = append(texts, b.Text)
		case "image":
			if b.Source != nil && b.Source.Type == "base64" {
				images = append(images, upstream.ImageBlock{
					Format: strings.TrimPrefix(b.Source.MediaType, "image/"),
					Source: upstream.ImageSourceBytes{Bytes: b.Source.Data},
				})
			}
			// URL images are dropped, per spec §4.4.
		case "tool_result":
			trBlocks, err := b.ToolResultContentBlocks()
			if err != nil {
				return nil, fmt.Errorf("convert: tool_result content: %w", err)
			}
			var parts []upstream.ToolResultContent
			for _, tb := range trBlocks {
				switch tb.Type {
				case "image":
					parts = append(parts, upstream.ToolResultContent{Text: "[Image content]"})
				default:
					parts = append(parts, upstream.ToolResultContent{Text: tb.Text})
				}
			}
			status := "success"
			if b.IsError {
				status = "error"
			}
			toolResults = append(toolResults, upstream.ToolResult{
				ToolUseID: b.ToolUseID,
				Content:   parts,
				Status:    status,
			})
		}
	}

	um.Content = strings.Join(texts, "\n")
	um.Images = images
	if len(toolResults) > 0 {
		um.UserInputMessageContext = &upstream.UserInputMessageContext{ToolResults: toolResults}
	}
	return um, nil
}

func buildAssistantTurn(blocks []anthropic.ContentBlock) *upstream.AssistantResponseMessage {
	am := &upstream.AssistantResponseMessage{}
	var texts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			texts = append(texts, b.Text)
		case "tool_use":
			am.ToolUses = append(am.ToolUses, upstream.ToolUseEntry{
				ToolUseID: b.ID,
				Name:      b.Name,
				Input:     b.Input,
			})
		}
	}
	am.Content = strings.Join(texts, "\n")
	return am
}

// schemaFields is the subset of a JSON schema object preserved when
// forwarding tool definitions upstream, per spec §4.4.
type schemaFields struct {
	Type       json.RawMessage `json:"type,omitempty"`
	Properties json.RawMessage `json:"properties,omitempty"`
	Required   json.RawMessage `json:"required,omitempty"`
}

// BuildTools converts Anthropic custom tool definitions into upstream
// ToolSpecifications, filtering out web_search/websearch and any
// non-custom tool variant, per spec §4.4.
func BuildTools(tools []anthropic.Tool) ([]upstream.ToolSpecification, error) {
	var out []upstream.ToolSpecification
	for _, t := range tools {
		if t.Type != "" && t.Type != "custom" {
			continue // non-custom tool variants are not forwarded
		}
		name := strings.ToLower(t.Name)
		if name == "web_search" || name == "websearch" {
			continue
		}

		var fields schemaFields
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &fields); err != nil {
				return nil, fmt.Errorf("convert: tool %q schema: %w", t.Name, err)
			}
		}
		schema, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}

		out = append(out, upstream.ToolSpecification{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: upstream.InputSchema{JSON: schema},
		})
	}
	return out, nil
}
