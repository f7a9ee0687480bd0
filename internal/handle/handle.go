// Package handle canonicalizes social-media handles into stable map keys.
package handle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Errors returned while parsing handles.
var (
	ErrEmptyPlatform    = errors.New("platform is required")
	ErrEmptyHandle      = errors.New("handle is required")
	ErrMalformedKey     = errors.New("malformed handle key")
	ErrMalformedRouting = errors.New("malformed routing message")
)

// Handle is a case-folded (platform, handle) pair.
type Handle struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

// New normalizes platform and handle.
func New(platform, handle string) Handle {
	return Handle{
		Platform: normalize(platform),
		Handle:   normalize(handle),
	}
}

// Validate reports whether both parts are present.
func (h Handle) Validate() error {
	if h.Platform == "" {
		return ErrEmptyPlatform
	}
	if h.Handle == "" {
		return ErrEmptyHandle
	}
	return nil
}

// Key returns the length-prefixed canonical key, e.g. "7:twitter8:alice123".
// Two distinct pairs never share a key because each part carries its own byte length.
func (h Handle) Key() string {
	var b strings.Builder
	b.Grow(len(h.Platform) + len(h.Handle) + 8)
	b.WriteString(strconv.Itoa(len(h.Platform)))
	b.WriteByte(':')
	b.WriteString(h.Platform)
	b.WriteString(strconv.Itoa(len(h.Handle)))
	b.WriteByte(':')
	b.WriteString(h.Handle)
	return b.String()
}

func (h Handle) String() string {
	return h.Platform + "/" + h.Handle
}

// ParseKey reverses Key.
func ParseKey(key string) (Handle, error) {
	platform, rest, err := readPart(key)
	if err != nil {
		return Handle{}, err
	}
	name, rest, err := readPart(rest)
	if err != nil {
		return Handle{}, err
	}
	if rest != "" {
		return Handle{}, fmt.Errorf("%w: trailing data", ErrMalformedKey)
	}
	return Handle{Platform: platform, Handle: name}, nil
}

func readPart(s string) (string, string, error) {
	idx := strings.IndexByte(s, ':')
	if idx <= 0 {
		return "", "", ErrMalformedKey
	}
	n, err := strconv.Atoi(s[:idx])
	if err != nil || n < 0 {
		return "", "", fmt.Errorf("%w: bad length %q", ErrMalformedKey, s[:idx])
	}
	s = s[idx+1:]
	if len(s) < n {
		return "", "", fmt.Errorf("%w: short part", ErrMalformedKey)
	}
	return s[:n], s[n:], nil
}

// ParseRouting decodes a deposit routing message of the form {"platform": "...", "handle": "..."}.
func ParseRouting(msg string) (Handle, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(msg), &raw); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrMalformedRouting, err)
	}
	platform, err := stringField(raw, "platform")
	if err != nil {
		return Handle{}, err
	}
	name, err := stringField(raw, "handle")
	if err != nil {
		return Handle{}, err
	}
	h := New(platform, name)
	if err := h.Validate(); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrMalformedRouting, err)
	}
	return h, nil
}

func stringField(raw map[string]json.RawMessage, name string) (string, error) {
	value, ok := raw[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %s field", ErrMalformedRouting, name)
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedRouting, name)
	}
	return s, nil
}

func normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
