package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Document file names inside a version directory.
const (
	WorkflowFile     = "workflow.json"
	ActionsFile      = "actions.json"
	SelectorsFile    = "selectors.json"
	PoliciesFile     = "policies.json"
	FingerprintsFile = "fingerprints.json"
)

// Store reads and writes recipes under <root>/<domain>/<flow>/<version>/.
// Versions are immutable: saving over an existing version fails.
type Store struct {
	root string
}

// NewStore returns a Store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory holding one recipe version.
func (s *Store) Dir(domain, flow, version string) (string, error) {
	for _, part := range []string{domain, flow, version} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("recipe: invalid path component %q", part)
		}
	}
	return filepath.Join(s.root, domain, flow, version), nil
}

// Save writes all five documents of r into a fresh version directory.
// The documents are staged in a sibling directory and renamed into place,
// so a failed save leaves no partial version behind.
func (s *Store) Save(r *Recipe) error {
	dir, err := s.Dir(r.Domain, r.Flow, r.Version)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s", ErrVersionExists, r)
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("recipe: create flow directory: %w", err)
	}
	staging := filepath.Join(parent, "."+r.Version+"-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o750); err != nil {
		return fmt.Errorf("recipe: create staging directory: %w", err)
	}

	workflow := r.Workflow
	workflow.Version = r.Version
	docs := []struct {
		name  string
		value interface{}
	}{
		{WorkflowFile, workflow},
		{ActionsFile, nonNilMap(r.Actions)},
		{SelectorsFile, nonNilMap(r.Selectors)},
		{PoliciesFile, nonNilMap(r.Policies)},
		{FingerprintsFile, nonNilMap(r.Fingerprints)},
	}
	for _, d := range docs {
		if err := writeJSON(filepath.Join(staging, d.name), d.value); err != nil {
			_ = os.RemoveAll(staging)
			return err
		}
	}

	if err := os.Rename(staging, dir); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("recipe: publish %s: %w", r, err)
	}
	slog.Debug("recipe: saved version", "recipe", r.String(), "dir", dir)
	return nil
}

// Load reads one recipe version.
func (s *Store) Load(domain, flow, version string) (*Recipe, error) {
	dir, err := s.Dir(domain, flow, version)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s@%s", ErrNotFound, domain, flow, version)
	}

	r := &Recipe{Domain: domain, Flow: flow, Version: version}
	targets := []struct {
		name     string
		dest     interface{}
		optional bool
	}{
		{WorkflowFile, &r.Workflow, false},
		{ActionsFile, &r.Actions, true},
		{SelectorsFile, &r.Selectors, true},
		{PoliciesFile, &r.Policies, true},
		{FingerprintsFile, &r.Fingerprints, true},
	}
	for _, t := range targets {
		b, err := os.ReadFile(filepath.Join(dir, t.name))
		if errors.Is(err, os.ErrNotExist) && t.optional {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("recipe: read %s: %w", t.name, err)
		}
		if err := json.Unmarshal(b, t.dest); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, t.name, err)
		}
	}
	return r, nil
}

// Versions lists the saved versions of a flow in ascending order.
// Directories that are not valid version names are ignored.
func (s *Store) Versions(domain, flow string) ([]string, error) {
	dir := filepath.Join(s.root, domain, flow)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recipe: list %s: %w", dir, err)
	}

	type numbered struct {
		name string
		n    int
	}
	var found []numbered
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := ParseVersion(e.Name())
		if err != nil {
			continue
		}
		found = append(found, numbered{e.Name(), n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.name
	}
	return out, nil
}

// Latest loads the highest saved version of a flow.
func (s *Store) Latest(domain, flow string) (*Recipe, error) {
	versions, err := s.Versions(domain, flow)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, domain, flow)
	}
	return s.Load(domain, flow, versions[len(versions)-1])
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("recipe: encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("recipe: write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func nonNilMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
