// Package secret wraps sensitive strings (tokens, API keys) so that they
// cannot be accidentally logged, printed, or serialized.
package secret

import "encoding/json"

const redacted = "[REDACTED]"

// String holds a sensitive value. Its zero value is an empty secret.
type String struct {
	value string
}

// New wraps v as a secret.
func New(v string) String {
	return String{value: v}
}

// Expose returns the raw underlying value. Call sites should be rare and
// obvious (building an Authorization header, a refresh request body).
func (s String) Expose() string {
	return s.value
}

// IsEmpty reports whether the wrapped value is the empty string.
func (s String) IsEmpty() bool {
	return s.value == ""
}

func (s String) String() string {
	if s.value == "" {
		return ""
	}
	return redacted
}

func (s String) GoString() string {
	return "secret.String(" + s.String() + ")"
}

func (s String) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s String) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalJSON accepts a plain JSON string as the exposed value; it is
// used only when reading credentials files, never when echoing them back.
func (s *String) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s.value = v
	return nil
}
