// Package upstream builds and issues requests against the proprietary
// upstream protocol (spec §3 UpstreamRequest, §4.7, §4.6) and aggregates
// its binary event-stream response back into classified events.
package upstream

import "encoding/json"

// ConversationState is the single top-level UpstreamRequest body, per
// spec §3.
type ConversationState struct {
	ConversationID      string        `json:"conversationId"`
	AgentContinuationID string        `json:"agentContinuationId"`
	CurrentMessage      ChatMessage   `json:"currentMessage"`
	History             []ChatMessage `json:"history"`
}

// ChatMessage wraps exactly one of UserInputMessage or
// AssistantResponseMessage, matching the upstream's tagged-union wire
// shape for a history turn or the current turn.
type ChatMessage struct {
	UserInputMessage         *UserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// UserInputMessage is a user turn.
type UserInputMessage struct {
	Content                 string                   `json:"content"`
	ModelID                 string                   `json:"modelId,omitempty"`
	Images                  []ImageBlock             `json:"images,omitempty"`
	UserInputMessageContext *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// UserInputMessageContext carries tool results and tool specifications
// attached to a user turn.
type UserInputMessageContext struct {
	ToolResults []ToolResult        `json:"toolResults,omitempty"`
	Tools       []ToolSpecification `json:"tools,omitempty"`
}

// ToolResult is a tool_result content block re-shaped for upstream.
type ToolResult struct {
	ToolUseID string              `json:"toolUseId"`
	Content   []ToolResultContent `json:"content"`
	Status    string              `json:"status,omitempty"` // "success" | "error"
}

// ToolResultContent is one text part of a tool result; images within
// tool-results become the literal text "[Image content]" per spec §4.4.
type ToolResultContent struct {
	Text string `json:"text"`
}

// AssistantResponseMessage is an assistant turn.
type AssistantResponseMessage struct {
	Content  string         `json:"content"`
	ToolUses []ToolUseEntry `json:"toolUses,omitempty"`
}

// ToolUseEntry is one tool call an assistant turn made, with its raw JSON
// input preserved verbatim.
type ToolUseEntry struct {
	ToolUseID string          `json:"toolUseId"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

// ToolSpecification is a custom tool definition forwarded upstream, per
// spec §4.4.
type ToolSpecification struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema wraps the tool's JSON schema.
type InputSchema struct {
	JSON json.RawMessage `json:"json"`
}

// ImageBlock is a base64-encoded image forwarded upstream; URL images are
// dropped per spec §4.4.
type ImageBlock struct {
	Format string           `json:"format"`
	Source ImageSourceBytes `json:"source"`
}

// ImageSourceBytes carries the base64 payload.
type ImageSourceBytes struct {
	Bytes string `json:"bytes"`
}
