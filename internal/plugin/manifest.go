package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// ManifestFile is the optional manifest inside a candidate directory.
const ManifestFile = "module.toml"

// ScriptEntry is the script file the fallback scan looks for.
const ScriptEntry = "init.lua"

// Manifest designates how a candidate resolves to a module.
type Manifest struct {
	// Entry names a symbol in the candidate's catalog package.
	Entry string `toml:"entry"`

	// Script names a Lua file relative to the candidate directory.
	Script string `toml:"script"`
}

// readManifest loads dir/module.toml. A missing file yields nil, nil.
func readManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var m Manifest
	md, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidManifest, strings.Join(keys, ", "))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that the manifest designates at most one entry point and
// that a script stays inside its directory.
func (m *Manifest) Validate() error {
	m.Entry = strings.TrimSpace(m.Entry)
	m.Script = strings.TrimSpace(m.Script)
	if m.Entry != "" && m.Script != "" {
		return fmt.Errorf("%w: entry and script are mutually exclusive", ErrInvalidManifest)
	}
	if m.Script != "" {
		clean := filepath.Clean(m.Script)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: script %q escapes the module directory", ErrInvalidManifest, m.Script)
		}
		m.Script = clean
	}
	return nil
}
