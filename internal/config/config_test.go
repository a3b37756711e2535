package config

import (
	"testing"
	"time"

	"gocombine/internal/compat"
	"gocombine/internal/errors"
	"gocombine/internal/likelihood"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"COMBINER_DRMAX", "COMBINER_CAP_LIKELIHOODS", "COMBINER_UNDERFLUCT", "COMBINER_POLICY",
		"COMBINER_DICTIONARY", "COMBINER_UNKNOWN", "COMBINER_NTOP", "COMBINER_WORKERS",
		"COMBINER_MAX_COMBINATIONS", "COMBINER_SCAN_TIMEOUT", "DATABASE_URL", "PORT", "GIN_MODE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.99, cfg.Combiner.DRMax)
	assert.False(t, cfg.Combiner.CapLikelihoods)
	assert.Equal(t, likelihood.UnderfluctNorm0, cfg.Combiner.Underfluctuation)
	assert.Equal(t, "conservative", cfg.Combiner.Policy)
	assert.Equal(t, compat.UnknownConservative, cfg.Combiner.Unknown)
	assert.Equal(t, 1, cfg.Scan.NTop)
	assert.Positive(t, cfg.Scan.Workers)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("COMBINER_DRMAX", "0.5")
	t.Setenv("COMBINER_CAP_LIKELIHOODS", "true")
	t.Setenv("COMBINER_UNDERFLUCT", "norm_neg")
	t.Setenv("COMBINER_POLICY", "explicit")
	t.Setenv("COMBINER_DICTIONARY", "combinations.yaml")
	t.Setenv("COMBINER_UNKNOWN", "exclude")
	t.Setenv("COMBINER_NTOP", "3")
	t.Setenv("COMBINER_WORKERS", "2")
	t.Setenv("COMBINER_SCAN_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Combiner.DRMax)
	assert.True(t, cfg.Combiner.CapLikelihoods)
	assert.Equal(t, likelihood.UnderfluctNormNeg, cfg.Combiner.Underfluctuation)
	assert.Equal(t, compat.UnknownExclude, cfg.Combiner.Unknown)
	assert.Equal(t, 3, cfg.Scan.NTop)
	assert.Equal(t, 2, cfg.Scan.Workers)
	assert.Equal(t, 90*time.Second, cfg.Scan.Timeout)

	opts := cfg.LikelihoodOptions()
	assert.Equal(t, 0.5, opts.DRMax)
	assert.True(t, opts.CapLikelihoods)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"drmax out of range":    {"COMBINER_DRMAX": "2.5"},
		"unknown underfluct":    {"COMBINER_UNDERFLUCT": "gamma"},
		"unknown policy":        {"COMBINER_POLICY": "greedy"},
		"explicit without dict": {"COMBINER_POLICY": "explicit", "COMBINER_DICTIONARY": ""},
		"bad unknown mode":      {"COMBINER_UNKNOWN": "sometimes"},
		"zero workers":          {"COMBINER_WORKERS": "0"},
		"negative max combos":   {"COMBINER_MAX_COMBINATIONS": "-1"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid), "%v", err)
		})
	}
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
