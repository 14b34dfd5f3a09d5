// Package anthropic defines the public-edge wire schema: the Anthropic
// Messages API subset this gateway implements (spec §3, §6).
package anthropic

import "encoding/json"

// Role is a message's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"` // string or []ContentBlock
}

// ContentBlocks decodes Content as a list of blocks, tolerating the
// shorthand where Content is a bare JSON string (treated as one text
// block), matching the Anthropic API's accepted request shapes.
func (m Message) ContentBlocks() ([]ContentBlock, error) {
	if len(m.Content) == 0 {
		return nil, nil
	}
	if m.Content[0] == '"' {
		var s string
		if err := json.Unmarshal(m.Content, &s); err != nil {
			return nil, err
		}
		return []ContentBlock{{Type: "text", Text: s}}, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// ImageSource describes a base64 or URL image reference.
type ImageSource struct {
	Type      string `json:"type"` // "base64" | "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ContentBlock is a tagged content block, per spec §3: text, image,
// tool_use, tool_result, thinking.
type ContentBlock struct {
	Type string `json:"type"`

	// text / thinking
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"` // string or []ContentBlock
	IsError   bool            `json:"is_error,omitempty"`
}

// ToolResultContentBlocks decodes a tool_result block's Content as a list
// of blocks, tolerating the bare-string shorthand.
func (b ContentBlock) ToolResultContentBlocks() ([]ContentBlock, error) {
	if len(b.Content) == 0 {
		return nil, nil
	}
	if b.Content[0] == '"' {
		var s string
		if err := json.Unmarshal(b.Content, &s); err != nil {
			return nil, err
		}
		return []ContentBlock{{Type: "text", Text: s}}, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(b.Content, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// Tool is a custom function tool definition.
type Tool struct {
	Type        string          `json:"type,omitempty"` // "custom" (default) or built-in variants
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Thinking enables extended-thinking mode.
type Thinking struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Request is the POST /v1/messages request body.
type Request struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []Message       `json:"messages"`
	System      json.RawMessage `json:"system,omitempty"` // string or []ContentBlock
	Stream      bool            `json:"stream,omitempty"`
	Tools       []Tool          `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
	Thinking    *Thinking       `json:"thinking,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	TopK        *int            `json:"top_k,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
}

// SystemText extracts the system prompt as plain text, concatenating
// blocks with "\n" if System is a content-block array.
func (r Request) SystemText() (string, error) {
	if len(r.System) == 0 {
		return "", nil
	}
	if r.System[0] == '"' {
		var s string
		if err := json.Unmarshal(r.System, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(r.System, &blocks); err != nil {
		return "", err
	}
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == "text" {
			texts = append(texts, b.Text)
		}
	}
	out := ""
	for i, t := range texts {
		if i > 0 {
			out += "\n"
		}
		out += t
	}
	return out, nil
}

// Usage reports token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the POST /v1/messages non-streaming response body.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"` // "message"
	Role         Role           `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// CountTokensRequest is the POST /v1/messages/count_tokens request body.
type CountTokensRequest struct {
	Model    string          `json:"model"`
	Messages []Message       `json:"messages"`
	System   json.RawMessage `json:"system,omitempty"`
	Tools    []Tool          `json:"tools,omitempty"`
}

// CountTokensResponse is the POST /v1/messages/count_tokens response body.
type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}

// Model is a catalog entry for GET /v1/models.
type Model struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
	Type        string `json:"type"`
}

// ModelList is the GET /v1/models response body.
type ModelList struct {
	Data    []Model `json:"data"`
	HasMore bool    `json:"has_more"`
}
