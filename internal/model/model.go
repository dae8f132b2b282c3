// Package model defines core data structures for reqtrace.
package model

// Kind is the role a level plays in the traceability hierarchy.
type Kind string

const (
	Requirements Kind = "requirements"
	Design       Kind = "design"
	Code         Kind = "code"
	Test         Kind = "test"
)

// Valid reports whether k is one of the known level kinds.
func (k Kind) Valid() bool {
	switch k {
	case Requirements, Design, Code, Test:
		return true
	}
	return false
}

// Extracted reports whether items of this kind come from source files
// rather than being authored by hand.
func (k Kind) Extracted() bool {
	return k == Code || k == Test
}

// Item is a single traceable entry of a level: a hand-authored requirement
// or a construct extracted from source.
type Item struct {
	ID   string   `json:"id"`
	File string   `json:"file,omitempty"`
	Line int      `json:"line,omitempty"`
	Tag  string   `json:"tag,omitempty"`
	Refs []string `json:"refs,omitempty"`
	URL  string   `json:"url,omitempty"`

	// Annotated is set by extraction; items kept without an annotation have
	// no refs and fail up tracing.
	Annotated bool `json:"-"`
}

// Direction is the sense of a tracing check between adjacent levels.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Violation records an item that fails a tracing check.
type Violation struct {
	Level     string
	Item      string
	Direction Direction
	Reason    string
}

// Report is the complete result of an extraction run, ready for encoding.
type Report struct {
	Repo       string
	Commit     string
	Levels     []*Level
	Files      []FileTag
	Violations []Violation
}

// FileTag pairs a registry tag with the path it was issued for.
type FileTag struct {
	Tag  string
	Path string
}
