// Package fsconfig loads and validates the JSON configuration document
// that drives an image build: volume identity, the source map, mount
// points and the rule list.
package fsconfig

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/xerrors"

	"fsbuild/internal/rules"
)

// schemaJSON is the config document's JSON Schema, embedded so a build
// can validate without any external file (matching the original's
// co-located schema.json, loaded relative to the script rather than a
// flag-supplied path).
//
//go:embed schema.json
var schemaJSON []byte

// Config is the decoded configuration document.
type Config struct {
	Name        string            `json:"name"`
	ID          json.RawMessage   `json:"id"`
	Source      map[string]string `json:"source"`
	MountPoints map[string]int    `json:"mountpoints"`
	Rules       []rules.Rule      `json:"rules"`
}

// Load reads and decodes the configuration file at path, validating it
// against the embedded schema first. A schema that fails to compile is
// a non-fatal condition reported through warn rather than returned as
// an error, matching the original's `except ImportError` fallback when
// no validator is installed; a schema that compiles but rejects the
// document is fatal.
func Load(path string, warn func(string)) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("reading config %s: %w", path, err)
	}

	if err := validate(raw, schemaJSON); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return nil, xerrors.Errorf("%s: schema validation failed: %w", path, verr)
		}
		warn(fmt.Sprintf("cannot validate config %s: %v", path, err))
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, xerrors.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

func validate(raw, schema []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", strings.NewReader(string(schema))); err != nil {
		return err
	}
	sch, err := compiler.Compile("config.schema.json")
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return sch.Validate(doc)
}

// VolumeID parses the id field, which may be a JSON number or a hex/
// decimal string (matching the original's `eval(id) if type(id) is str
// else id`), defaulting to 0 if absent.
func (c *Config) VolumeID() (uint32, error) {
	if len(c.ID) == 0 {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(c.ID, &n); err == nil {
		return uint32(n), nil
	}
	var s string
	if err := json.Unmarshal(c.ID, &s); err != nil {
		return 0, xerrors.Errorf("id must be a number or a numeric string: %w", err)
	}
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, xerrors.Errorf("invalid id %q: %w", string(c.ID), err)
	}
	return uint32(v), nil
}

// ExpandedSource returns the source map with environment variables
// expanded in every value, matching the original's
// `os.path.expandvars(source)`.
func (c *Config) ExpandedSource() map[string]string {
	out := make(map[string]string, len(c.Source))
	for target, source := range c.Source {
		out[target] = os.ExpandEnv(source)
	}
	return out
}
