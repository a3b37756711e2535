package policyfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocombine/internal/compat"
	"gocombine/internal/config"
	"gocombine/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_YAMLAndJSON(t *testing.T) {
	yamlDoc := `
CMS-SUS-19-006:
  - ATLAS-SUSY-2018-32
  - ATLAS-SUSY-2019-08
ATLAS-SUSY-2018-32: []
`
	dict, err := Decode(strings.NewReader(yamlDoc))
	require.NoError(t, err)
	assert.True(t, dict.Allows("ATLAS-SUSY-2019-08", "CMS-SUS-19-006"), "lookups are symmetric")
	assert.False(t, dict.Allows("ATLAS-SUSY-2018-32", "ATLAS-SUSY-2019-08"))

	dict, err = Decode(strings.NewReader(`{"CMS-SUS-19-006": ["ATLAS-SUSY-2018-32"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"ATLAS-SUSY-2018-32", "CMS-SUS-19-006"}, dict.Analyses())
}

func TestDecode_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"list root":   "- CMS-SUS-19-006\n",
		"empty entry": "CMS-SUS-19-006: ['']\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(doc))
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), "%v", err)
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combinations.yaml")
	require.NoError(t, os.WriteFile(path, []byte("CMS-SUS-19-006: [ATLAS-SUSY-2018-32]\n"), 0o644))

	p, err := PolicyFromConfig(config.CombinerConfig{Policy: "explicit", DictionaryFile: path, Unknown: compat.UnknownNever})
	require.NoError(t, err)
	explicit, ok := p.(compat.Explicit)
	require.True(t, ok)
	assert.Equal(t, compat.UnknownNever, explicit.Unknown)
	assert.Equal(t, 2, explicit.Dict.Len())

	p, err = PolicyFromConfig(config.CombinerConfig{Policy: "conservative"})
	require.NoError(t, err)
	assert.Equal(t, "conservative", p.Name())

	_, err = PolicyFromConfig(config.CombinerConfig{Policy: "explicit", DictionaryFile: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}
