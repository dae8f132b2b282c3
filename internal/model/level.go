package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrStructural marks a level document that is missing required fields or
// is otherwise malformed.
var ErrStructural = errors.New("malformed level")

// StructuralError describes which level and field made a document malformed.
type StructuralError struct {
	Level string
	Field string
	Msg   string
}

func (e *StructuralError) Error() string {
	where := e.Field
	if e.Level != "" {
		where = fmt.Sprintf("level %q: %s", e.Level, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", ErrStructural.Error(), where, e.Msg)
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

// Optional is a value that is either present or absent. The zero Optional
// is absent.
type Optional[T any] struct {
	value   T
	present bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

// Get returns the value and whether it is present. An absent Optional
// returns the zero value of T.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present
}

// Value returns the held value, or the zero value of T if absent.
func (o Optional[T]) Value() T {
	return o.value
}

// Present reports whether the value was set.
func (o Optional[T]) Present() bool {
	return o.present
}

// Level is one stage of a requirements to design to code to test hierarchy.
//
// NeedsTracingUp, NeedsTracingDown and BreakdownRequirements are optional:
// a level decoded from JSON keeps exactly the keys its input had, so it
// encodes back to the same set of fields. A level built with NewLevel has
// all three present with their defaults.
type Level struct {
	Name   string
	Kind   Kind
	Traces []string
	Source []Item

	NeedsTracingUp        Optional[bool]
	NeedsTracingDown      Optional[bool]
	BreakdownRequirements Optional[[]string]

	// RawTraceRequirements holds every reference token seen while
	// extracting this level's source. It is never serialized.
	RawTraceRequirements []string
}

// NewLevel returns a freshly constructed level with every optional field
// present and set to its default.
func NewLevel(name string, kind Kind) *Level {
	return &Level{
		Name:                  name,
		Kind:                  kind,
		Traces:                []string{},
		Source:                []Item{},
		NeedsTracingUp:        Some(false),
		NeedsTracingDown:      Some(false),
		BreakdownRequirements: Some([]string{}),
	}
}

// ItemIDs returns the ids of the level's items in source order.
func (l *Level) ItemIDs() []string {
	ids := make([]string, len(l.Source))
	for i := range l.Source {
		ids[i] = l.Source[i].ID
	}
	return ids
}

// levelJSON is the encoded form. Pointer fields distinguish an absent key
// from a present zero value.
type levelJSON struct {
	Name                  *string   `json:"name"`
	Kind                  *Kind     `json:"kind"`
	Traces                []string  `json:"traces"`
	Source                []Item    `json:"source"`
	NeedsTracingUp        *bool     `json:"needs_tracing_up,omitempty"`
	NeedsTracingDown      *bool     `json:"needs_tracing_down,omitempty"`
	BreakdownRequirements *[]string `json:"breakdown_requirements,omitempty"`
}

// MarshalJSON emits name, kind, traces and source always, and each optional
// field only when it is present.
func (l Level) MarshalJSON() ([]byte, error) {
	name, kind := l.Name, l.Kind
	w := levelJSON{
		Name:   &name,
		Kind:   &kind,
		Traces: l.Traces,
		Source: l.Source,
	}
	if w.Traces == nil {
		w.Traces = []string{}
	}
	if w.Source == nil {
		w.Source = []Item{}
	}
	if v, ok := l.NeedsTracingUp.Get(); ok {
		w.NeedsTracingUp = &v
	}
	if v, ok := l.NeedsTracingDown.Get(); ok {
		w.NeedsTracingDown = &v
	}
	if v, ok := l.BreakdownRequirements.Get(); ok {
		if v == nil {
			v = []string{}
		}
		w.BreakdownRequirements = &v
	}
	return json.Marshal(w)
}

// levelInput is the decoded form. Optional fields stay raw so that a key
// holding null still counts as present.
type levelInput struct {
	Name                  *string         `json:"name"`
	Kind                  *Kind           `json:"kind"`
	Traces                []string        `json:"traces"`
	Source                []Item          `json:"source"`
	NeedsTracingUp        json.RawMessage `json:"needs_tracing_up"`
	NeedsTracingDown      json.RawMessage `json:"needs_tracing_down"`
	BreakdownRequirements json.RawMessage `json:"breakdown_requirements"`
}

// UnmarshalJSON decodes a level, recording which optional keys were present.
// A present key holding null takes the field's default. A missing name or
// kind, or an unknown kind, is a *StructuralError.
func (l *Level) UnmarshalJSON(data []byte) error {
	var w levelInput
	if err := json.Unmarshal(data, &w); err != nil {
		return &StructuralError{Field: "level", Msg: err.Error()}
	}
	if w.Name == nil || *w.Name == "" {
		return &StructuralError{Field: "name", Msg: "required"}
	}
	if w.Kind == nil || *w.Kind == "" {
		return &StructuralError{Level: *w.Name, Field: "kind", Msg: "required"}
	}
	if !w.Kind.Valid() {
		return &StructuralError{Level: *w.Name, Field: "kind", Msg: fmt.Sprintf("unknown kind %q", *w.Kind)}
	}

	*l = Level{
		Name:   *w.Name,
		Kind:   *w.Kind,
		Traces: w.Traces,
		Source: w.Source,
	}
	if l.Traces == nil {
		l.Traces = []string{}
	}
	if l.Source == nil {
		l.Source = []Item{}
	}

	var err error
	if l.NeedsTracingUp, err = decodeOptional(l.Name, "needs_tracing_up", w.NeedsTracingUp, false); err != nil {
		return err
	}
	if l.NeedsTracingDown, err = decodeOptional(l.Name, "needs_tracing_down", w.NeedsTracingDown, false); err != nil {
		return err
	}
	if l.BreakdownRequirements, err = decodeOptional(l.Name, "breakdown_requirements", w.BreakdownRequirements, []string{}); err != nil {
		return err
	}
	return nil
}

// decodeOptional returns an absent Optional when raw is empty (the key was
// missing) and def when the key held null.
func decodeOptional[T any](level, field string, raw json.RawMessage, def T) (Optional[T], error) {
	if len(raw) == 0 {
		return Optional[T]{}, nil
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return Some(def), nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return Optional[T]{}, &StructuralError{Level: level, Field: field, Msg: err.Error()}
	}
	return Some(v), nil
}

// LoadLevels decodes a level document: a JSON array of levels with unique
// names.
func LoadLevels(r io.Reader) ([]*Level, error) {
	var levels []*Level
	if err := json.NewDecoder(r).Decode(&levels); err != nil {
		var se *StructuralError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &StructuralError{Field: "document", Msg: err.Error()}
	}
	seen := make(map[string]struct{}, len(levels))
	for _, l := range levels {
		if l == nil {
			return nil, &StructuralError{Field: "document", Msg: "null level"}
		}
		if _, dup := seen[l.Name]; dup {
			return nil, &StructuralError{Level: l.Name, Field: "name", Msg: "duplicate level name"}
		}
		seen[l.Name] = struct{}{}
	}
	return levels, nil
}

// WriteLevels encodes levels as an indented JSON array followed by a newline.
func WriteLevels(w io.Writer, levels []*Level) error {
	if levels == nil {
		levels = []*Level{}
	}
	data, err := json.MarshalIndent(levels, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding levels: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
