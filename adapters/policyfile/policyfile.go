// Package policyfile loads combination dictionaries: YAML or JSON maps of
// analysis id to the analyses it may be combined with.
package policyfile

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"gocombine/internal/compat"
	"gocombine/internal/config"
	"gocombine/internal/errors"

	"gopkg.in/yaml.v3"
)

// Decode parses a dictionary document. YAML is a superset of JSON, so both
// go through the YAML decoder.
func Decode(r io.Reader) (compat.Dictionary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return compat.Dictionary{}, errors.Wrap(err, "failed to read combination dictionary")
	}
	raw := make(map[string][]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return compat.Dictionary{}, errors.WithCode(errors.CodeConfigInvalid, errors.Wrap(err, "malformed combination dictionary"))
	}
	for id, allowed := range raw {
		if strings.TrimSpace(id) == "" {
			return compat.Dictionary{}, errors.ConfigInvalid("combination dictionary has an empty analysis id")
		}
		for _, other := range allowed {
			if strings.TrimSpace(other) == "" {
				return compat.Dictionary{}, errors.ConfigInvalid("combination dictionary entry " + id + " lists an empty analysis id")
			}
		}
	}
	return compat.NewDictionary(raw), nil
}

// Load reads a dictionary file.
func Load(path string) (compat.Dictionary, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return compat.Dictionary{}, errors.WithCode(errors.CodeConfigInvalid, errors.NotFound("combination dictionary "+path))
		}
		return compat.Dictionary{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return Decode(f)
}

// PolicyFromConfig builds the configured policy, loading the dictionary
// when the policy needs one.
func PolicyFromConfig(cfg config.CombinerConfig) (compat.Policy, error) {
	var dict *compat.Dictionary
	if cfg.DictionaryFile != "" {
		d, err := Load(cfg.DictionaryFile)
		if err != nil {
			return nil, err
		}
		dict = &d
	}
	return compat.NewPolicy(cfg.Policy, dict, cfg.Unknown)
}
