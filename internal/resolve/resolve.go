// Package resolve turns one user-supplied token into candidate members.
//
// Paths are tried in order and the first applicable one returns:
// external handle, numeric identifier, then fuzzy name.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/asso-tools/assobot/internal/errs"
	"github.com/asso-tools/assobot/internal/models"
)

// DefaultThreshold is the fuzzy score floor used unless configured otherwise
const DefaultThreshold = 50

// IdentityLookup recognises tokens that denote an external-platform handle
type IdentityLookup interface {
	// LookupHandle returns the canonical handle for token and whether it is known
	LookupHandle(ctx context.Context, token string) (string, bool, error)
}

// Options tunes a resolution
type Options struct {
	// Threshold keeps fuzzy scores strictly above it. Zero keeps every
	// positive score.
	Threshold int
	// Strict turns several perfect matches into an AmbiguityError
	Strict bool
}

// Match is one candidate member. Scored is false for exact and perfect
// matches, whose score is not shown.
type Match struct {
	Member *models.Member
	Score  int
	Scored bool
}

// Resolver resolves tokens against a member list
type Resolver struct {
	lookup IdentityLookup
}

// New creates a resolver. lookup may be nil to disable the handle path.
func New(lookup IdentityLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve returns the candidates for token among members
func (r *Resolver) Resolve(ctx context.Context, token string, members []*models.Member, opts Options) ([]Match, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	if r.lookup != nil {
		handle, ok, err := r.lookup.LookupHandle(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("failed to look up handle %q: %w", token, err)
		}
		if ok {
			return byHandle(handle, members)
		}
	}

	if id, err := strconv.ParseInt(strings.TrimPrefix(token, "#"), 10, 64); err == nil {
		for _, m := range members {
			if m.ID == id {
				return []Match{{Member: m, Score: 100}}, nil
			}
		}
		return nil, nil
	}

	return ByName(token, members, opts)
}

func byHandle(handle string, members []*models.Member) ([]Match, error) {
	var found []*models.Member
	for _, m := range members {
		if m.Handle != nil && *m.Handle == handle {
			found = append(found, m)
		}
	}
	if len(found) > 1 {
		ids := make([]int64, len(found))
		for i, m := range found {
			ids[i] = m.ID
		}
		return nil, &errs.IntegrityError{Handle: handle, MemberIDs: ids}
	}
	if len(found) == 0 {
		return nil, nil
	}
	return []Match{{Member: found[0], Score: 100}}, nil
}

// ByName ranks members by fuzzy similarity of their full name to token.
// Perfect matches hide partial ones.
func ByName(token string, members []*models.Member, opts Options) ([]Match, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	var matches, perfect []Match
	for _, m := range members {
		if m.Credential == nil {
			continue
		}
		score := Similarity(token, m.Credential.FullName())
		if score <= opts.Threshold {
			continue
		}
		match := Match{Member: m, Score: score, Scored: score < 100}
		matches = append(matches, match)
		if score == 100 {
			perfect = append(perfect, match)
		}
	}

	if len(perfect) > 0 {
		if len(perfect) > 1 && opts.Strict {
			return nil, &errs.AmbiguityError{Token: token, Count: len(perfect)}
		}
		return perfect, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Member.ID < matches[j].Member.ID
	})
	return matches, nil
}

// MentionLookup recognises "@handle" mentions as external handles
type MentionLookup struct{}

// LookupHandle strips the leading "@" of a mention
func (MentionLookup) LookupHandle(_ context.Context, token string) (string, bool, error) {
	if len(token) > 1 && strings.HasPrefix(token, "@") {
		return token[1:], true, nil
	}
	return "", false, nil
}

// ChainLookup tries each lookup in turn
type ChainLookup []IdentityLookup

// LookupHandle returns the first known handle, or the first error
func (c ChainLookup) LookupHandle(ctx context.Context, token string) (string, bool, error) {
	for _, l := range c {
		handle, ok, err := l.LookupHandle(ctx, token)
		if err != nil || ok {
			return handle, ok, err
		}
	}
	return "", false, nil
}
