package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by checked single-row fetches that matched no row
var ErrNotFound = errors.New("no row found")

// UnresolvablePathError reports a filter or order expression segment that
// does not map to any property or relationship of the current model. It is
// raised at compile time, before any SQL is sent.
type UnresolvablePathError struct {
	Model   string
	Segment string
	Path    string
}

func (e *UnresolvablePathError) Error() string {
	return fmt.Sprintf("cannot resolve '%s' in path '%s': model %s has no such property or relationship", e.Segment, e.Path, e.Model)
}

// NewUnresolvablePathError creates an UnresolvablePathError
func NewUnresolvablePathError(model, segment, path string) *UnresolvablePathError {
	return &UnresolvablePathError{Model: model, Segment: segment, Path: path}
}

// MemberAccessError reports an unsupported operation dispatched against a
// collection. It names the offending call and is always a programming error.
type MemberAccessError struct {
	Member string
}

func (e *MemberAccessError) Error() string {
	return fmt.Sprintf("undefined collection method '%s'", e.Member)
}

// NewMemberAccessError creates a MemberAccessError
func NewMemberAccessError(member string) *MemberAccessError {
	return &MemberAccessError{Member: member}
}
