package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSchema matches every *SchemaError via errors.Is.
	ErrSchema = errors.New("schema error")
	// ErrReference matches every *ReferenceError via errors.Is.
	ErrReference = errors.New("reference error")
)

// Path identifies a field inside a configuration document, e.g. modbustcp[0].port.
type Path []string

// Key returns a copy of the path extended by a mapping key.
func (p Path) Key(key string) Path {
	next := make(Path, len(p), len(p)+1)
	copy(next, p)
	return append(next, key)
}

// Index returns a copy of the path extended by a sequence index.
func (p Path) Index(i int) Path {
	next := make(Path, len(p), len(p)+1)
	copy(next, p)
	return append(next, "["+strconv.Itoa(i)+"]")
}

func (p Path) String() string {
	var b strings.Builder
	for i, segment := range p {
		if i > 0 && !strings.HasPrefix(segment, "[") {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	return b.String()
}

// SchemaError reports a field that is present but fails type, range or
// format validation, or a required field that is missing.
type SchemaError struct {
	Path Path
	Line int
	Msg  string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	if len(e.Path) > 0 {
		b.WriteString(e.Path.String())
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	return b.String()
}

// Is reports whether target is ErrSchema.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// ReferenceError reports an identity reference that does not resolve to a
// previously declared instance.
type ReferenceError struct {
	Path Path
	Line int
	// ID is the unresolved identity; empty when the reference was implicit.
	ID   string
	Kind string
	Msg  string
}

func (e *ReferenceError) Error() string {
	var b strings.Builder
	if len(e.Path) > 0 {
		b.WriteString(e.Path.String())
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
	case e.ID != "":
		fmt.Fprintf(&b, "couldn't find %s with id %q", e.Kind, e.ID)
	default:
		fmt.Fprintf(&b, "couldn't resolve %s", e.Kind)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " (line %d)", e.Line)
	}
	return b.String()
}

// Is reports whether target is ErrReference.
func (e *ReferenceError) Is(target error) bool {
	return target == ErrReference
}

// Errorf builds a SchemaError for the given path.
func Errorf(path Path, line int, format string, args ...any) *SchemaError {
	return &SchemaError{Path: path, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// Kind classifies err as "schema", "reference" or "other". It is used as a
// metrics label.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrReference):
		return "reference"
	default:
		return "other"
	}
}
