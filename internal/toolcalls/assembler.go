// Package toolcalls accumulates streamed tool-call argument fragments
// into finalized JSON, for the non-streaming aggregation path (spec
// §4.5 "Non-streaming aggregation").
package toolcalls

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidJSON is returned by Finalize when the accumulated fragments
// do not form valid JSON.
var ErrInvalidJSON = errors.New("toolcalls: accumulated input is not valid JSON")

// Config parameterizes an Assembler.
type Config struct {
	// EmptyArgumentsJSON is substituted when a tool call finalizes with
	// no accumulated input at all (e.g. a zero-argument tool).
	EmptyArgumentsJSON string
}

func defaultConfig() Config {
	return Config{EmptyArgumentsJSON: "{}"}
}

type call struct {
	name    string
	raw     json.RawMessage // set directly when upstream sent a full object
	partial string          // accumulated string fragments
}

// Assembler tracks in-flight tool calls keyed by toolUseId. Not safe for
// concurrent use; one instance per request, matching the frame decoder
// and SSE emitter's per-request lifetime.
type Assembler struct {
	cfg   Config
	calls map[string]*call
	order []string
}

// New returns a ready-to-use Assembler.
func New(cfg ...Config) *Assembler {
	c := defaultConfig()
	if len(cfg) > 0 {
		c = cfg[0]
	}
	return &Assembler{cfg: c, calls: make(map[string]*call)}
}

// StartCall registers a new tool call. Calling it twice for the same id
// is a no-op beyond updating the name if it was previously empty.
func (a *Assembler) StartCall(id, name string) {
	c, ok := a.calls[id]
	if !ok {
		c = &call{name: name}
		a.calls[id] = c
		a.order = append(a.order, id)
		return
	}
	if c.name == "" {
		c.name = name
	}
}

// AddArguments sets (or replaces) the full JSON object input for id, used
// when upstream sends the complete input in a single chunk.
func (a *Assembler) AddArguments(id string, raw json.RawMessage) {
	c := a.ensure(id)
	c.raw = append(json.RawMessage(nil), raw...)
}

// AddFragment appends a string fragment of partial JSON input for id,
// used when upstream streams the arguments incrementally.
func (a *Assembler) AddFragment(id, fragment string) {
	c := a.ensure(id)
	c.partial += fragment
}

func (a *Assembler) ensure(id string) *call {
	c, ok := a.calls[id]
	if !ok {
		c = &call{}
		a.calls[id] = c
		a.order = append(a.order, id)
	}
	return c
}

// Name returns the tool name registered for id.
func (a *Assembler) Name(id string) string {
	if c, ok := a.calls[id]; ok {
		return c.name
	}
	return ""
}

// Finalize validates and returns the accumulated JSON input for id.
func (a *Assembler) Finalize(id string) (json.RawMessage, error) {
	c, ok := a.calls[id]
	if !ok {
		return nil, fmt.Errorf("toolcalls: unknown call id %q", id)
	}
	if c.raw != nil {
		if !json.Valid(c.raw) {
			return nil, ErrInvalidJSON
		}
		return c.raw, nil
	}
	if c.partial == "" {
		return json.RawMessage(a.cfg.EmptyArgumentsJSON), nil
	}
	if !json.Valid([]byte(c.partial)) {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(c.partial), nil
}

// IDs returns call ids in the order StartCall/AddFragment/AddArguments
// first saw them.
func (a *Assembler) IDs() []string {
	return append([]string(nil), a.order...)
}
