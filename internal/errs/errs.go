// Package errs defines the error kinds surfaced by the membership core.
// Each detailed error matches its kind through errors.Is.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrAmbiguous     = errors.New("ambiguous match")
	ErrIntegrity     = errors.New("integrity violation")
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
)

// ConfigError reports role flags that do not identify exactly one role,
// or any other data setup problem that must be fixed by an administrator.
type ConfigError struct {
	What  string
	Count int
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s (found %d)", e.What, e.Count)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// MissingAuthor is returned by writes issued without an acting member.
var MissingAuthor = &ConfigError{What: "write requires an acting member (log author)"}

// AmbiguityError reports several perfect matches for a strict lookup
type AmbiguityError struct {
	Token string
	Count int
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("multiple perfect matches (%d) for %q", e.Count, e.Token)
}

func (e *AmbiguityError) Is(target error) bool { return target == ErrAmbiguous }

// IntegrityError reports several members sharing one external handle
type IntegrityError struct {
	Handle    string
	MemberIDs []int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: handle %q is bound to members %s", e.Handle, joinIDs(e.MemberIDs))
}

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// NotFoundError reports a missing referenced entity
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError for any printable key
func NotFound(kind string, key any) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: fmt.Sprint(key)}
}

// ValidationError lists every unknown member id of a batch
type ValidationError struct {
	UnknownIDs []int64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("unknown member ids: %s", joinIDs(e.UnknownIDs))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func joinIDs(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
