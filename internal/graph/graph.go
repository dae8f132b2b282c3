// Package graph checks tracing coverage between levels.
//
// A level that traces to another sits below it: its items reference the
// other level's item ids through their refs. Up tracing asks that every item
// of a level references something in a traced level; down tracing asks that
// every item of a level is referenced from some level tracing to it.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/reqtrace/internal/model"
)

// Check validates the links between levels and returns every tracing
// violation, sorted by level, item and direction. A traces entry naming an
// unknown level, or a level tracing to itself, is a structural error.
func Check(levels []*model.Level) ([]model.Violation, error) {
	byName := make(map[string]*model.Level, len(levels))
	for _, l := range levels {
		byName[l.Name] = l
	}

	// Levels tracing to each level, in document order.
	tracedBy := make(map[string][]*model.Level)
	for _, l := range levels {
		for _, t := range l.Traces {
			if t == l.Name {
				return nil, &model.StructuralError{Level: l.Name, Field: "traces", Msg: "level traces to itself"}
			}
			if _, ok := byName[t]; !ok {
				return nil, &model.StructuralError{Level: l.Name, Field: "traces", Msg: fmt.Sprintf("unknown level %q", t)}
			}
			tracedBy[t] = append(tracedBy[t], l)
		}
	}

	var out []model.Violation
	for _, l := range levels {
		if l.NeedsTracingUp.Value() {
			out = append(out, checkUp(l, byName)...)
		}
		if l.NeedsTracingDown.Value() {
			out = append(out, checkDown(l, tracedBy[l.Name])...)
		}
	}
	return sortUnique(out), nil
}

func checkUp(l *model.Level, byName map[string]*model.Level) []model.Violation {
	if len(l.Traces) == 0 {
		return []model.Violation{{
			Level: l.Name, Direction: model.Up,
			Reason: "level needs tracing up but traces no level",
		}}
	}

	targets := make(map[string]struct{})
	for _, t := range l.Traces {
		for _, id := range byName[t].ItemIDs() {
			targets[id] = struct{}{}
		}
	}

	var out []model.Violation
	for _, it := range l.Source {
		if len(it.Refs) == 0 {
			out = append(out, model.Violation{
				Level: l.Name, Item: it.ID, Direction: model.Up,
				Reason: "no trace references",
			})
			continue
		}
		if !anyIn(it.Refs, targets) {
			out = append(out, model.Violation{
				Level: l.Name, Item: it.ID, Direction: model.Up,
				Reason: fmt.Sprintf("no reference resolves in %s", strings.Join(l.Traces, ", ")),
			})
		}
	}
	return out
}

func checkDown(l *model.Level, below []*model.Level) []model.Violation {
	exempt := make(map[string]struct{})
	for _, id := range l.BreakdownRequirements.Value() {
		exempt[id] = struct{}{}
	}

	referenced := make(map[string]struct{})
	for _, b := range below {
		for _, it := range b.Source {
			for _, ref := range it.Refs {
				referenced[ref] = struct{}{}
			}
		}
	}

	reason := "not referenced by any level"
	if len(below) > 0 {
		names := make([]string, len(below))
		for i, b := range below {
			names[i] = b.Name
		}
		reason = fmt.Sprintf("not referenced by %s", strings.Join(names, ", "))
	}

	var out []model.Violation
	for _, it := range l.Source {
		if _, ok := exempt[it.ID]; ok {
			continue
		}
		if _, ok := referenced[it.ID]; ok {
			continue
		}
		out = append(out, model.Violation{
			Level: l.Name, Item: it.ID, Direction: model.Down,
			Reason: reason,
		})
	}
	return out
}

func anyIn(refs []string, set map[string]struct{}) bool {
	for _, r := range refs {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

// sortUnique orders violations for deterministic output and drops exact
// duplicates, which arise when several constructs share a name.
func sortUnique(vs []model.Violation) []model.Violation {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.Item != b.Item {
			return a.Item < b.Item
		}
		return a.Direction < b.Direction
	})
	out := vs[:0]
	for i, v := range vs {
		if i > 0 && v == vs[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}
