// Package annotate decides whether a source construct carries a requirement
// annotation in the comment block directly above it.
//
// The decision is a line-based heuristic, not a parse: the scanner looks at
// the nearest non-blank line above the construct, picks the comment style it
// finds there and walks upward while that style continues.
package annotate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// DefaultKeyword introduces a requirement annotation.
const DefaultKeyword = "@requirement"

// Style holds the comment markers of a language. Empty markers are never
// matched.
type Style struct {
	Line       string // single-line marker, e.g. "//"
	BlockOpen  string // e.g. "/*"
	BlockClose string // e.g. "*/"
}

var (
	tokenRe     = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.#/:-]*`)
	separatorRe = regexp.MustCompile(`[\s,]+`)
)

// Scanner matches annotations introduced by one keyword.
type Scanner struct {
	keyword string
	re      *regexp.Regexp
}

// NewScanner returns a scanner for the given annotation keyword.
func NewScanner(keyword string) (*Scanner, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("annotation keyword is empty")
	}
	re, err := regexp.Compile(regexp.QuoteMeta(keyword) + `(?:\s*:\s*|\s+)(.*)$`)
	if err != nil {
		return nil, fmt.Errorf("compiling annotation pattern: %w", err)
	}
	return &Scanner{keyword: keyword, re: re}, nil
}

// Keyword returns the annotation keyword.
func (s *Scanner) Keyword() string {
	return s.keyword
}

// HasAnnotation reports whether the comment block directly above
// lines[idx] contains an annotation. idx is a 0-based index into lines.
func (s *Scanner) HasAnnotation(lines []string, idx int, style Style) bool {
	for _, line := range Block(lines, idx, style) {
		if len(s.lineRefs(line)) > 0 {
			return true
		}
	}
	return false
}

// References returns the reference tokens of every annotation in the block
// directly above lines[idx], top to bottom, without duplicates.
func (s *Scanner) References(lines []string, idx int, style Style) []string {
	block := Block(lines, idx, style)
	var refs []string
	seen := make(map[string]struct{})
	for i := len(block) - 1; i >= 0; i-- {
		for _, ref := range s.lineRefs(block[i]) {
			if _, dup := seen[ref]; dup {
				continue
			}
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	return refs
}

// lineRefs returns the reference tokens following the keyword on line.
// The first word and any word after a comma are taken as references as
// long as they are token-shaped; a word after plain whitespace must also
// look like an id, so trailing prose ends the list. Collection also stops
// right after a token glued to other text, such as a closing marker.
func (s *Scanner) lineRefs(line string) []string {
	m := s.re.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	rest := m[1]
	var refs []string
	listed := true
	for rest != "" {
		var field, sep string
		if loc := separatorRe.FindStringIndex(rest); loc != nil {
			field, sep, rest = rest[:loc[0]], rest[loc[0]:loc[1]], rest[loc[1]:]
		} else {
			field, rest = rest, ""
		}
		if field != "" {
			tok := strings.TrimRight(tokenRe.FindString(field), ".:")
			if tok == "" || (!listed && !idLike(tok)) {
				break
			}
			refs = append(refs, tok)
			if len(tok) < len(strings.TrimRight(field, ".:")) {
				break
			}
			listed = false
		}
		if strings.Contains(sep, ",") {
			listed = true
		}
	}
	return refs
}

// idLike accepts tokens that carry a digit, a separator or an uppercase
// letter after the first character ("REQ", "SafetyGoal"), which prose words
// rarely do.
func idLike(tok string) bool {
	if strings.ContainsAny(tok, "0123456789-#_.:/") {
		return true
	}
	for _, r := range tok[1:] {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

// Block returns the comment block directly above lines[idx], nearest line
// first. It returns nil when the nearest non-blank line above the construct
// is not a comment.
func Block(lines []string, idx int, style Style) []string {
	if idx > len(lines) {
		idx = len(lines)
	}
	i := idx - 1
	for i >= 0 && isBlank(lines[i]) {
		i--
	}
	if i < 0 {
		return nil
	}

	first := lines[i]
	switch {
	case contains(first, style.Line):
		var block []string
		for j := i; j >= 0; j-- {
			if isBlank(lines[j]) {
				continue
			}
			if !contains(lines[j], style.Line) {
				break
			}
			block = append(block, lines[j])
		}
		return block

	case contains(first, style.BlockClose):
		closeAt := strings.LastIndex(first, style.BlockClose)
		if contains(first[:closeAt], style.BlockOpen) {
			return []string{first}
		}
		block := []string{first}
		for j := i - 1; j >= 0; j-- {
			block = append(block, lines[j])
			if contains(lines[j], style.BlockOpen) {
				break
			}
		}
		return block
	}
	return nil
}

func contains(line, marker string) bool {
	return marker != "" && strings.Contains(line, marker)
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}
