package compat

import (
	"gocombine/domain/prediction"
	"gocombine/internal/errors"
)

// Matrix is a frozen symmetric compatibility relation over an ordered list
// of members. The diagonal is never consulted.
type Matrix struct {
	members []prediction.Member
	allowed []bool
	policy  string
}

// Build evaluates policy on every unordered pair. Each pair is evaluated
// once and mirrored, so the result is symmetric even for a policy that
// is not.
func Build(members []prediction.Member, policy Policy) (*Matrix, error) {
	if len(members) == 0 {
		return nil, errors.InvalidInput("compatibility matrix needs at least one prediction")
	}
	if policy == nil {
		return nil, errors.InvalidInput("compatibility matrix needs a policy")
	}
	n := len(members)
	m := &Matrix{
		members: append([]prediction.Member(nil), members...),
		allowed: make([]bool, n*n),
		policy:  policy.Name(),
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ok := policy.Allowed(members[i], members[j])
			m.allowed[i*n+j] = ok
			m.allowed[j*n+i] = ok
		}
	}
	return m, nil
}

// Len is the number of members.
func (m *Matrix) Len() int { return len(m.members) }

// Policy names the policy the matrix was built with.
func (m *Matrix) Policy() string { return m.policy }

// Member returns the i-th member.
func (m *Matrix) Member(i int) prediction.Member { return m.members[i] }

// Members returns a copy of the ordered member list.
func (m *Matrix) Members() []prediction.Member {
	return append([]prediction.Member(nil), m.members...)
}

// Allowed reports whether i and j may be combined; false on the diagonal.
func (m *Matrix) Allowed(i, j int) bool {
	if i == j {
		return false
	}
	return m.allowed[i*len(m.members)+j]
}

// CompatibleWithAll reports whether idx may join every member of set.
func (m *Matrix) CompatibleWithAll(idx int, set []int) bool {
	for _, j := range set {
		if !m.Allowed(idx, j) {
			return false
		}
	}
	return true
}

// Degree counts the members idx may be combined with.
func (m *Matrix) Degree(idx int) int {
	d := 0
	for j := range m.members {
		if m.Allowed(idx, j) {
			d++
		}
	}
	return d
}
