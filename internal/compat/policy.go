// Package compat decides which predictions may be multiplied together as
// independent likelihoods without double-counting events.
package compat

import (
	"fmt"
	"sort"
	"strings"

	"gocombine/domain/prediction"
	"gocombine/internal/errors"
)

// Policy decides whether two predictions may be combined. Implementations
// must be symmetric.
type Policy interface {
	Name() string
	Allowed(a, b prediction.Member) bool
}

// Conservative assumes full overlap between analyses of the same
// experiment at the same center-of-mass energy.
type Conservative struct{}

func (Conservative) Name() string { return "conservative" }

// Allowed is true iff the predictions differ in sqrts or in experiment.
func (Conservative) Allowed(a, b prediction.Member) bool {
	if a.Sqrts() != b.Sqrts() {
		return true
	}
	return !strings.EqualFold(a.Experiment(), b.Experiment())
}

// Unknown says how Explicit treats analyses missing from its dictionary.
type Unknown int

const (
	// UnknownConservative falls back to the Conservative rule for the pair.
	UnknownConservative Unknown = iota
	// UnknownNever never combines an unknown analysis.
	UnknownNever
	// UnknownExclude drops unknown analyses before the matrix is built.
	UnknownExclude
)

func (u Unknown) String() string {
	switch u {
	case UnknownNever:
		return "never"
	case UnknownExclude:
		return "exclude"
	default:
		return "conservative"
	}
}

// ParseUnknown maps conservative|never|exclude to an Unknown mode.
func ParseUnknown(s string) (Unknown, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "conservative", "fallback":
		return UnknownConservative, nil
	case "never":
		return UnknownNever, nil
	case "exclude":
		return UnknownExclude, nil
	default:
		return UnknownConservative, errors.ConfigInvalid(fmt.Sprintf("unknown-analysis mode %q (want conservative, never or exclude)", s))
	}
}

// Dictionary is a frozen allow-list: analysis id -> analyses it may be
// combined with. Lookups are symmetric.
type Dictionary struct {
	allowed map[string]map[string]struct{}
}

// NewDictionary freezes raw. Listing b under a also allows a with b.
func NewDictionary(raw map[string][]string) Dictionary {
	d := Dictionary{allowed: make(map[string]map[string]struct{}, len(raw))}
	add := func(a, b string) {
		if d.allowed[a] == nil {
			d.allowed[a] = make(map[string]struct{})
		}
		if b != "" {
			d.allowed[a][b] = struct{}{}
		}
	}
	for a, partners := range raw {
		a = strings.TrimSpace(a)
		add(a, "")
		for _, b := range partners {
			b = strings.TrimSpace(b)
			add(a, b)
			add(b, a)
		}
	}
	return d
}

// Contains reports whether id appears in the dictionary at all.
func (d Dictionary) Contains(id string) bool {
	_, ok := d.allowed[id]
	return ok
}

// Allows reports whether a and b are listed as combinable.
func (d Dictionary) Allows(a, b string) bool {
	_, ok := d.allowed[a][b]
	return ok
}

// Len is the number of analyses known to the dictionary.
func (d Dictionary) Len() int { return len(d.allowed) }

// Analyses lists the known analyses in sorted order.
func (d Dictionary) Analyses() []string {
	out := make([]string, 0, len(d.allowed))
	for id := range d.allowed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Explicit combines only what the dictionary allows. Two signal regions of
// the same analysis are never combined.
type Explicit struct {
	Dict    Dictionary
	Unknown Unknown
}

func (e Explicit) Name() string { return "explicit/" + e.Unknown.String() }

func (e Explicit) Allowed(a, b prediction.Member) bool {
	ida, idb := a.AnalysisID(), b.AnalysisID()
	if ida == idb {
		return false
	}
	if e.Dict.Contains(ida) && e.Dict.Contains(idb) {
		return e.Dict.Allows(ida, idb)
	}
	if e.Unknown == UnknownConservative {
		return Conservative{}.Allowed(a, b)
	}
	return false
}

// NewPolicy builds a policy by name: "conservative", or "explicit"/"aggressive"
// (which require a dictionary).
func NewPolicy(name string, dict *Dictionary, unknown Unknown) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "conservative":
		return Conservative{}, nil
	case "explicit", "aggressive":
		if dict == nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("policy %q needs a combination dictionary", name))
		}
		return Explicit{Dict: *dict, Unknown: unknown}, nil
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unknown combination policy %q", name))
	}
}

// Restrict keeps only members whose analysis is in the dictionary.
func Restrict(members []prediction.Member, dict Dictionary) (kept, dropped []prediction.Member) {
	for _, m := range members {
		if dict.Contains(m.AnalysisID()) {
			kept = append(kept, m)
		} else {
			dropped = append(dropped, m)
		}
	}
	return kept, dropped
}

// Prepare applies the policy's pre-filter: with an Explicit policy in
// UnknownExclude mode, analyses absent from the dictionary are removed.
func Prepare(members []prediction.Member, policy Policy) (kept, dropped []prediction.Member) {
	if e, ok := policy.(Explicit); ok && e.Unknown == UnknownExclude {
		return Restrict(members, e.Dict)
	}
	return members, nil
}
