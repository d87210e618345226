package config

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/mongo2elastic/internal/syncerr"
	"github.com/roach88/mongo2elastic/internal/transform"
)

// Selector picks collections of one database.
//
//	db:+a b   only a and b; both must exist
//	db:-a b   every collection except a and b
type Selector struct {
	DB      string
	Include bool
	Names   []string
}

// ParseSelector parses one select line.
func ParseSelector(line string) (Selector, error) {
	db, details, ok := strings.Cut(strings.TrimSpace(line), ":")
	db = strings.TrimSpace(db)
	details = strings.TrimSpace(details)
	if !ok || db == "" {
		return Selector{}, syncerr.Configuration("select %q: expected db:+names or db:-names", line)
	}
	if details == "" {
		return Selector{}, syncerr.Configuration("select %q: missing instruction", line)
	}

	sel := Selector{DB: db}
	switch details[0] {
	case '+':
		sel.Include = true
	case '-':
	default:
		return Selector{}, syncerr.Configuration("select %q: instruction must be + or -", line)
	}
	sel.Names = strings.Fields(details[1:])
	if sel.Include && len(sel.Names) == 0 {
		return Selector{}, syncerr.Configuration("select %q: + needs at least one collection", line)
	}
	return sel, nil
}

// String renders the selector in its config form.
func (s Selector) String() string {
	op := "-"
	if s.Include {
		op = "+"
	}
	return s.DB + ":" + op + strings.Join(s.Names, " ")
}

// Lister is the part of the source a selector is expanded against.
type Lister interface {
	HasDatabase(ctx context.Context, db string) (bool, error)
	ListCollections(ctx context.Context, db string) ([]string, error)
}

// Expand resolves the selector to collection names in source order for
// exclusions and listed order for inclusions. A missing database or an
// included collection that does not exist is a MISSING_SOURCE error.
func (s Selector) Expand(ctx context.Context, l Lister) ([]string, error) {
	ok, err := l.HasDatabase(ctx, s.DB)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s, err)
	}
	if !ok {
		return nil, syncerr.MissingSource(s.DB, "")
	}
	all, err := l.ListCollections(ctx, s.DB)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", s, err)
	}

	if s.Include {
		for _, name := range s.Names {
			if !slices.Contains(all, name) {
				return nil, syncerr.MissingSource(s.DB, name)
			}
		}
		return slices.Clone(s.Names), nil
	}

	out := make([]string, 0, len(all))
	for _, name := range all {
		if !slices.Contains(s.Names, name) {
			out = append(out, name)
		}
	}
	return out, nil
}

// Resolve returns the configured collections followed by the ones the
// selectors add. A collection configured explicitly keeps its settings and
// is not repeated.
func (c *Config) Resolve(ctx context.Context, l Lister) ([]transform.Collection, error) {
	out := slices.Clone(c.Collections)
	seen := make(map[string]bool, len(out))
	for _, col := range out {
		seen[col.FullName()] = true
	}
	for _, sel := range c.Selectors {
		names, err := sel.Expand(ctx, l)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			col := transform.Collection{DB: sel.DB, Name: name}
			if seen[col.FullName()] {
				continue
			}
			seen[col.FullName()] = true
			out = append(out, col)
		}
	}
	return out, nil
}
