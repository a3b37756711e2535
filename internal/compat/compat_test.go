package compat

import (
	"testing"

	"gocombine/domain/prediction"
	"gocombine/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMember is a minimal prediction.Member for policy tests.
type stubMember struct {
	id         string
	experiment string
	sqrts      float64
}

func (s stubMember) AnalysisID() string                        { return s.id }
func (s stubMember) DataID() string                            { return "" }
func (s stubMember) Experiment() string                        { return s.experiment }
func (s stubMember) Sqrts() float64                            { return s.sqrts }
func (s stubMember) RValue(bool) (float64, error)              { return 0, nil }
func (s stubMember) Likelihood(float64, bool) (float64, error) { return 1, nil }
func (s stubMember) NLL(float64, bool) (float64, error)        { return 0, nil }
func (s stubMember) LSM(bool) (float64, error)                 { return 1, nil }

func member(id string, sqrts float64) prediction.Member {
	return stubMember{id: id, experiment: prediction.ExperimentOf(id), sqrts: sqrts}
}

func TestConservative(t *testing.T) {
	p := Conservative{}
	assert.True(t, p.Allowed(member("CMS-SUS-19-006", 13), member("ATLAS-SUSY-2018-32", 13)))
	assert.True(t, p.Allowed(member("CMS-SUS-13-012", 8), member("CMS-SUS-19-006", 13)))
	assert.False(t, p.Allowed(member("CMS-SUS-19-006", 13), member("CMS-SUS-16-050", 13)))
}

func TestBuild_SymmetricAndDiagonalIgnored(t *testing.T) {
	members := []prediction.Member{
		member("CMS-SUS-19-006", 13),
		member("CMS-SUS-16-050", 13),
		member("ATLAS-SUSY-2018-32", 13),
		member("ATLAS-SUSY-2013-02", 8),
	}
	m, err := Build(members, Conservative{})
	require.NoError(t, err)
	require.Equal(t, 4, m.Len())

	for i := 0; i < m.Len(); i++ {
		assert.False(t, m.Allowed(i, i))
		for j := 0; j < m.Len(); j++ {
			assert.Equal(t, m.Allowed(i, j), m.Allowed(j, i), "(%d,%d)", i, j)
		}
	}
	assert.False(t, m.Allowed(0, 1))
	assert.True(t, m.Allowed(0, 2))
	assert.True(t, m.CompatibleWithAll(3, []int{0, 1, 2}))
	assert.False(t, m.CompatibleWithAll(1, []int{0, 2}))
	assert.Equal(t, 3, m.Degree(3))
	assert.Equal(t, "conservative", m.Policy())
}

func TestBuild_RejectsEmpty(t *testing.T) {
	_, err := Build(nil, Conservative{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	_, err = Build([]prediction.Member{member("CMS-X", 13)}, nil)
	require.Error(t, err)
}

// oneWay is deliberately asymmetric; Build must still produce a symmetric matrix.
type oneWay struct{}

func (oneWay) Name() string { return "one-way" }
func (oneWay) Allowed(a, b prediction.Member) bool {
	return a.AnalysisID() < b.AnalysisID()
}

func TestBuild_MirrorsAsymmetricPolicy(t *testing.T) {
	m, err := Build([]prediction.Member{member("B", 13), member("A", 13)}, oneWay{})
	require.NoError(t, err)
	assert.Equal(t, m.Allowed(0, 1), m.Allowed(1, 0))
}

func TestExplicit(t *testing.T) {
	dict := NewDictionary(map[string][]string{
		"CMS-SUS-19-006":     {"CMS-SUS-16-050"},
		"ATLAS-SUSY-2018-32": {},
	})
	cms1 := member("CMS-SUS-19-006", 13)
	cms2 := member("CMS-SUS-16-050", 13)
	atlas := member("ATLAS-SUSY-2018-32", 13)
	unknown := member("CMS-SUS-20-001", 13)
	unknownOther := member("ATLAS-SUSY-2019-08", 13)

	policy := Explicit{Dict: dict, Unknown: UnknownConservative}
	assert.True(t, policy.Allowed(cms1, cms2))
	assert.True(t, policy.Allowed(cms2, cms1), "one-directional listing must be symmetric")
	assert.False(t, policy.Allowed(cms1, atlas), "known but not listed")
	assert.False(t, policy.Allowed(unknown, cms1), "conservative fallback: same experiment and sqrts")
	assert.True(t, policy.Allowed(unknown, atlas), "conservative fallback: different experiment")
	assert.False(t, policy.Allowed(cms1, cms1), "same analysis never combines")

	never := Explicit{Dict: dict, Unknown: UnknownNever}
	assert.False(t, never.Allowed(unknown, atlas))
	assert.False(t, never.Allowed(unknown, unknownOther))
	assert.True(t, never.Allowed(cms1, cms2))
}

func TestPrepare_ExcludesUnknown(t *testing.T) {
	dict := NewDictionary(map[string][]string{"CMS-SUS-19-006": {"ATLAS-SUSY-2018-32"}})
	members := []prediction.Member{
		member("CMS-SUS-19-006", 13),
		member("CMS-SUS-20-001", 13),
		member("ATLAS-SUSY-2018-32", 13),
	}
	kept, dropped := Prepare(members, Explicit{Dict: dict, Unknown: UnknownExclude})
	require.Len(t, kept, 2)
	require.Len(t, dropped, 1)
	assert.Equal(t, "CMS-SUS-20-001", dropped[0].AnalysisID())

	kept, dropped = Prepare(members, Conservative{})
	assert.Len(t, kept, 3)
	assert.Empty(t, dropped)
	assert.Equal(t, []string{"ATLAS-SUSY-2018-32", "CMS-SUS-19-006"}, dict.Analyses())
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy("", nil, UnknownConservative)
	require.NoError(t, err)
	assert.Equal(t, "conservative", p.Name())

	_, err = NewPolicy("explicit", nil, UnknownConservative)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))

	dict := NewDictionary(nil)
	p, err = NewPolicy("aggressive", &dict, UnknownNever)
	require.NoError(t, err)
	assert.Equal(t, "explicit/never", p.Name())

	_, err = NewPolicy("random", nil, UnknownConservative)
	assert.Error(t, err)

	u, err := ParseUnknown("EXCLUDE")
	require.NoError(t, err)
	assert.Equal(t, UnknownExclude, u)
	_, err = ParseUnknown("maybe")
	assert.Error(t, err)
}
