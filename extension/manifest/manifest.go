// Package manifest discovers script extensions described by YAML manifests.
//
// Every search path is scanned for an "extensions" directory holding one
// manifest per extension:
//
//	name: lyrics
//	title: Lyrics finder
//	version: "1.2"
//	capabilities: [menu, meta-listener]
//	script: lyrics.lua
//
// The script is executed by the host supplied extension.Runtime.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/toolink/backplane/capability"
	"github.com/toolink/backplane/extension"
	"github.com/toolink/backplane/global"
)

// Dir is the directory scanned below each search path.
const Dir = "extensions"

// Manifest is the on-disk description of a script extension.
type Manifest struct {
	extension.Descriptor `yaml:",inline"`
	// Script is the script path, relative to the manifest.
	Script string `yaml:"script"`
}

// Parse decodes a manifest and resolves its script path against dir.
func Parse(data []byte, dir string) (Manifest, error) {
	var m Manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Descriptor.Validate(); err != nil {
		return Manifest{}, err
	}
	if m.Script == "" {
		return Manifest{}, fmt.Errorf("manifest %s: no script", m.Name)
	}
	if !filepath.IsAbs(m.Script) {
		m.Script = filepath.Join(dir, m.Script)
	}
	return m, nil
}

// Candidate returns the provider candidate for the "extension" capability.
func Candidate() capability.Candidate[extension.ProviderContext, extension.Provider] {
	return capability.Candidate[extension.ProviderContext, extension.Provider]{
		Name:        "manifest",
		Shortcuts:   []string{"yaml"},
		Description: "YAML manifest script extensions",
		Priority:    10,
		Init:        open,
	}
}

func init() {
	if err := extension.ProviderCapability.Register(global.GetRegistry(), Candidate()); err != nil {
		log.Error().Err(err).Msg("failed to register manifest extension provider")
	}
}

type provider struct {
	dirs    []string
	runtime extension.Runtime
}

func open(ctx extension.ProviderContext) (extension.Provider, error) {
	if ctx.Runtime == nil {
		return nil, capability.Declinef("no script runtime")
	}
	var dirs []string
	for _, p := range ctx.SearchPaths {
		dir := filepath.Join(p, Dir)
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	if len(dirs) == 0 {
		return nil, capability.Declinef("no %s directory in %v", Dir, ctx.SearchPaths)
	}
	return &provider{dirs: dirs, runtime: ctx.Runtime}, nil
}

// Probe reads every manifest. Broken manifests are skipped with a warning;
// a name seen in an earlier search path wins.
func (p *provider) Probe(ctx context.Context) ([]extension.Extension, error) {
	var exts []extension.Extension
	seen := make(map[string]string)
	for _, dir := range p.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				log.Warn().Str("manifest", path).Err(err).Msg("skipping unreadable manifest")
				continue
			}
			m, err := Parse(data, dir)
			if err != nil {
				log.Warn().Str("manifest", path).Err(err).Msg("skipping invalid manifest")
				continue
			}
			if prev, dup := seen[m.Name]; dup {
				log.Warn().Str("manifest", path).Str("extension", m.Name).Str("shadowed_by", prev).Msg("skipping duplicate extension")
				continue
			}
			seen[m.Name] = path
			exts = append(exts, newScriptExtension(m, p.runtime))
		}
	}
	log.Debug().Strs("dirs", p.dirs).Int("extensions", len(exts)).Msg("manifests probed")
	return exts, nil
}

func (p *provider) Close() error { return nil }

var errNotLoaded = errors.New("script not loaded")
