// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/reqtrace/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a Report into TOON format. Lists inside a cell are joined
// with single spaces.
func Encode(r *model.Report) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("repo: %s", encodeValue(r.Repo)))
	parts = append(parts, fmt.Sprintf("commit: %s", encodeValue(r.Commit)))

	var levelRows [][]string
	for _, l := range r.Levels {
		levelRows = append(levelRows, []string{
			l.Name,
			string(l.Kind),
			strings.Join(l.Traces, " "),
			strconv.Itoa(len(l.Source)),
		})
	}
	parts = append(parts, formatTabular("levels", []string{"name", "kind", "traces", "items"}, levelRows))

	var fileRows [][]string
	for _, f := range r.Files {
		fileRows = append(fileRows, []string{f.Tag, f.Path})
	}
	parts = append(parts, formatTabular("files", []string{"tag", "path"}, fileRows))

	var itemRows [][]string
	for _, l := range r.Levels {
		for i := range l.Source {
			it := &l.Source[i]
			line := ""
			if it.Line > 0 {
				line = strconv.Itoa(it.Line)
			}
			itemRows = append(itemRows, []string{
				l.Name,
				it.ID,
				it.Tag,
				line,
				strings.Join(it.Refs, " "),
				it.URL,
			})
		}
	}
	parts = append(parts, formatTabular("items", []string{"level", "id", "tag", "line", "refs", "url"}, itemRows))

	var violationRows [][]string
	for _, v := range r.Violations {
		violationRows = append(violationRows, []string{v.Level, v.Item, string(v.Direction), v.Reason})
	}
	parts = append(parts, formatTabular("violations", []string{"level", "item", "direction", "reason"}, violationRows))

	return strings.Join(parts, "\n")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
