package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrMissingKey indicates that no configured source defines the requested key.
var ErrMissingKey = errors.New("key not defined in any configuration source")

// Source supplies configuration values by key. Implementations must be safe
// for concurrent use and must not cache between calls.
type Source interface {
	// Name identifies the source in error messages and diagnostics output.
	Name() string
	// Lookup returns the value for key and whether the source defines it.
	Lookup(key string) (string, bool)
}

// EnvSource resolves keys against process environment variables.
// A variable that is unset or contains only whitespace counts as undefined.
type EnvSource struct{}

// Name implements Source.
func (EnvSource) Name() string { return "environment" }

// Lookup implements Source.
func (EnvSource) Lookup(key string) (string, bool) {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// buildMetadata holds KEY = VALUE assignments baked into the binary at link
// time, one per line:
//
//	go build -ldflags "-X 'github.com/snatchshot/core/internal/config.buildMetadata=MIXPANEL_TOKEN = abc'"
//
// Release builds populate it from CI secrets; development builds leave it empty.
var buildMetadata string

// BuildMetadataSource resolves keys against assignments compiled into the
// binary. Unlike EnvSource, a key defined with an empty value still counts
// as defined.
type BuildMetadataSource struct {
	raw string
}

// NewBuildMetadataSource returns a source backed by the link-time metadata
// embedded in this binary.
func NewBuildMetadataSource() BuildMetadataSource {
	return BuildMetadataSource{raw: buildMetadata}
}

// NewStaticMetadataSource returns a source backed by the provided assignment
// text. Primarily for tests.
func NewStaticMetadataSource(raw string) BuildMetadataSource {
	return BuildMetadataSource{raw: raw}
}

// Name implements Source.
func (BuildMetadataSource) Name() string { return "build metadata" }

// Lookup implements Source.
func (s BuildMetadataSource) Lookup(key string) (string, bool) {
	return lookupAssignment(s.raw, key)
}

// FileSource resolves keys against a bundled plain-text configuration file.
// The file is re-read on every lookup so external edits are observable
// between calls.
type FileSource struct {
	Path string
}

// Name implements Source.
func (s FileSource) Name() string { return fmt.Sprintf("config file %s", s.Path) }

// Lookup implements Source. A missing or unreadable file yields no values.
func (s FileSource) Lookup(key string) (string, bool) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", false
	}
	return lookupAssignment(string(data), key)
}

// lookupAssignment scans assignment text for the first line defining key.
// Each non-comment line is split on the first " = " delimiter; both key and
// value are trimmed, and any further '=' characters in the value are
// preserved verbatim.
func lookupAssignment(data, key string) (string, bool) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := splitAssignment(line)
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}

// splitAssignment splits a single "KEY = VALUE" line on the first
// space-equals-space delimiter.
func splitAssignment(line string) (key, value string, ok bool) {
	idx := strings.Index(line, " = ")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	value = strings.TrimSpace(line[idx+len(" = "):])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// Resolver answers configuration queries by consulting an ordered list of
// sources and returning the first match. It holds no mutable state and is
// safe for concurrent use.
type Resolver struct {
	sources []Source
}

// NewResolver builds a resolver over the provided sources, queried in order.
func NewResolver(sources ...Source) *Resolver {
	return &Resolver{sources: sources}
}

// NewDefaultResolver builds a resolver with the standard priority chain:
// environment variables, then link-time build metadata, then the bundled
// configuration file at path.
func NewDefaultResolver(path string) *Resolver {
	return NewResolver(EnvSource{}, NewBuildMetadataSource(), FileSource{Path: path})
}

// Lookup returns the resolved value for key together with the name of the
// source that defined it.
func (r *Resolver) Lookup(key string) (value, origin string, ok bool) {
	for _, src := range r.sources {
		if v, found := src.Lookup(key); found {
			return v, src.Name(), true
		}
	}
	return "", "", false
}

// String resolves key against the source chain and returns ErrMissingKey
// when no source defines it.
func (r *Resolver) String(key string) (string, error) {
	value, _, ok := r.Lookup(key)
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrMissingKey)
	}
	return value, nil
}

// MustString resolves key and panics when it is undefined. Mandatory
// identity and endpoint settings cannot be defaulted; their absence is a
// deployment error, not a runtime condition.
func (r *Resolver) MustString(key string) string {
	value, err := r.String(key)
	if err != nil {
		panic(fmt.Sprintf("configuration: %v", err))
	}
	return value
}

// Float resolves key and parses it as a floating point number. An undefined
// key or an unparsable value yields def; tunable numeric settings are
// optional, unlike the mandatory strings served by String.
func (r *Resolver) Float(key string, def float64) float64 {
	value, _, ok := r.Lookup(key)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return def
	}
	return parsed
}
