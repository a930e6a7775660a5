// SPDX-License-Identifier: AGPL-3.0-or-later
package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ID is an opaque 128-bit identifier serialized as its canonical UUID text.
type ID struct {
	value uuid.UUID
}

// NewID generates a fresh, globally-unique identifier.
func NewID() ID {
	return ID{value: uuid.New()}
}

// ParseID parses the canonical textual form of an identifier.
func ParseID(s string) (ID, error) {
	v, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %s", ErrInvalidID, s)
	}
	return ID{value: v}, nil
}

// IsZero reports whether the id is the unset zero value.
func (id ID) IsZero() bool {
	return id.value == uuid.Nil
}

func (id ID) String() string {
	return id.value.String()
}

// MarshalText implements encoding.TextMarshaler so ID serializes as a bare string.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	v, err := uuid.Parse(string(b))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidID, string(b))
	}
	id.value = v
	return nil
}

const maxJobNameLength = 253

// JobName is a validated workload name: at most 253 characters, starting with
// an ASCII alphanumeric character, and restricted to alphanumerics plus '-', '.', '_'.
type JobName struct {
	value string
}

// ParseJobName validates s per spec.md §4.1 and returns the wrapped JobName.
func ParseJobName(s string) (JobName, error) {
	if len(s) == 0 {
		return JobName{}, &JobNameError{Reason: ErrJobNameInvalidStart, Value: s}
	}
	if len(s) > maxJobNameLength {
		return JobName{}, &JobNameError{Reason: ErrJobNameTooLong, Value: s}
	}
	first := s[0]
	if !isASCIIAlphanumeric(first) {
		return JobName{}, &JobNameError{Reason: ErrJobNameInvalidStart, Value: s}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isASCIIAlphanumeric(c) || c == '-' || c == '.' || c == '_' {
			continue
		}
		return JobName{}, &JobNameError{Reason: ErrJobNameInvalidCharacters, Value: s}
	}
	return JobName{value: s}, nil
}

func isASCIIAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (n JobName) String() string { return n.value }

// Family returns the prefix of the job name up to (excluding) its last
// '-' segment. Empty when the name has no '-'.
func (n JobName) Family() string {
	idx := strings.LastIndex(n.value, "-")
	if idx < 0 {
		return ""
	}
	return n.value[:idx]
}

// HTTPURL is a validated http:// or https:// URL. The scheme is checked
// before the URL is structurally parsed so a non-HTTP URL never reaches
// outbound I/O.
type HTTPURL struct {
	raw string
}

// ParseHTTPURL validates s, rejecting any scheme other than http/https.
func ParseHTTPURL(s string) (HTTPURL, error) {
	scheme, _, found := strings.Cut(s, "://")
	if !found || (strings.ToLower(scheme) != "http" && strings.ToLower(scheme) != "https") {
		return HTTPURL{}, &HTTPURLError{Reason: "scheme must be http or https", Value: s}
	}
	if _, err := url.Parse(s); err != nil {
		return HTTPURL{}, &HTTPURLError{Reason: err.Error(), Value: s}
	}
	return HTTPURL{raw: s}, nil
}

func (u HTTPURL) String() string { return u.raw }

// JobNameError reports why JobName validation failed.
type JobNameError struct {
	Reason string
	Value  string
}

func (e *JobNameError) Error() string {
	return fmt.Sprintf("invalid job name %q: %s", e.Value, e.Reason)
}

const (
	ErrJobNameTooLong           = "exceeds 253 characters"
	ErrJobNameInvalidStart      = "must start with an ASCII alphanumeric character"
	ErrJobNameInvalidCharacters = "must contain only alphanumerics, '-', '.', or '_'"
)

// HTTPURLError reports why HTTPURL validation failed.
type HTTPURLError struct {
	Reason string
	Value  string
}

func (e *HTTPURLError) Error() string {
	return fmt.Sprintf("invalid http url %q: %s", e.Value, e.Reason)
}
