package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/linnemanlabs-seed/internal/xerrors"
)

// Site is the site-wide configuration consulted at export time.
// Values are CMS system paths such as /node/1; empty means unset.
type Site struct {
	Front     string `yaml:"front"`
	Forbidden string `yaml:"page_403"`
	NotFound  string `yaml:"page_404"`
}

// Manifest lists everything one seed run exports.
type Manifest struct {
	Site   Site     `yaml:"site"`
	Items  []Item   `yaml:"items"`
	Routes []string `yaml:"routes"`
	Files  []string `yaml:"files"`
}

// LoadManifest reads and validates a YAML manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read manifest %s", path)
	}
	m, err := ParseManifest(bytes.NewReader(b))
	if err != nil {
		return nil, xerrors.Wrapf(err, "manifest %s", path)
	}
	return m, nil
}

// ParseManifest decodes a manifest, rejecting unknown fields.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, xerrors.Wrap(err, "decode yaml")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate reports every problem found, joined.
func (m *Manifest) Validate() error {
	var errs []error
	seen := make(map[int64]bool, len(m.Items))
	for _, it := range m.Items {
		if err := it.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[it.ID] {
			errs = append(errs, fmt.Errorf("item %d listed more than once", it.ID))
		}
		seen[it.ID] = true
	}
	for _, r := range m.Routes {
		if !strings.HasPrefix(r, "/") {
			errs = append(errs, fmt.Errorf("route %q must start with /", r))
		}
	}
	for _, f := range m.Files {
		if !strings.HasPrefix(f, "/") {
			errs = append(errs, fmt.Errorf("file %q must start with /", f))
		}
	}
	return errors.Join(errs...)
}
