package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

const (
	includeKey      = "$include"
	maxIncludeDepth = 8
)

// LoadRaw reads a config file into a raw map with $include files merged in.
// Included files are merged first, in order, and the including file wins.
// Experiment lists are merged by id rather than replaced, so experiments may
// be split across files.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	l := &rawLoader{active: map[string]bool{}}
	return l.load(path, 0)
}

type rawLoader struct {
	// active holds the files on the current include chain.
	active map[string]bool
}

func (l *rawLoader) load(path string, depth int) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if l.active[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	if depth > maxIncludeDepth {
		return nil, fmt.Errorf("config includes nested deeper than %d at %s", maxIncludeDepth, absPath)
	}
	l.active[absPath] = true
	defer delete(l.active, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	raw, err := parseRaw([]byte(expandEnv(string(data))), absPath)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", absPath, err)
	}
	includes, err := popIncludes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	merged := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(absPath), inc)
		}
		incRaw, err := l.load(inc, depth+1)
		if err != nil {
			return nil, err
		}
		merged = mergeRaw(merged, incRaw)
	}
	return mergeRaw(merged, raw), nil
}

// envRef matches ${VAR} and ${VAR:-default}. Bare $name is left alone so
// prompt text and $include keys pass through untouched.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnv substitutes ${VAR}, and ${VAR:-default} when VAR is unset or
// empty.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" || !strings.Contains(ref, ":-") {
			return v
		}
		return m[2]
	})
}

func parseRaw(data []byte, pathHint string) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(pathHint)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(&raw); err != nil && err != io.EOF {
			return nil, err
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("expected a single YAML document")
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// popIncludes removes and returns the $include entry of raw.
func popIncludes(raw map[string]any) ([]string, error) {
	val, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	var paths []string
	switch typed := val.(type) {
	case nil:
	case string:
		paths = []string{typed}
	case []any:
		for _, entry := range typed {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%s entries must be strings", includeKey)
			}
			paths = append(paths, s)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or list of strings", includeKey)
	}

	out := paths[:0]
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// mergeRaw merges src into dst. Nested maps merge recursively and the
// top-level experiments list merges by id.
func mergeRaw(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if key == "experiments" {
			if merged, ok := mergeExperimentLists(dst[key], value); ok {
				dst[key] = merged
				continue
			}
		}
		dst[key] = mergeValue(dst[key], value)
	}
	return dst
}

func mergeValue(existing, value any) any {
	srcMap, ok := value.(map[string]any)
	if !ok {
		return value
	}
	dstMap, ok := existing.(map[string]any)
	if !ok {
		return value
	}
	for k, v := range srcMap {
		dstMap[k] = mergeValue(dstMap[k], v)
	}
	return dstMap
}

// mergeExperimentLists appends src experiments to dst, replacing entries of
// dst that share an id. It reports false when either side is not a list.
func mergeExperimentLists(dst, src any) ([]any, bool) {
	srcList, ok := src.([]any)
	if !ok {
		return nil, false
	}
	if dst == nil {
		return srcList, true
	}
	dstList, ok := dst.([]any)
	if !ok {
		return nil, false
	}

	out := append([]any(nil), dstList...)
	index := map[string]int{}
	for i, entry := range out {
		if id := experimentID(entry); id != "" {
			index[id] = i
		}
	}
	for _, entry := range srcList {
		if i, ok := index[experimentID(entry)]; ok {
			out[i] = entry
			continue
		}
		if id := experimentID(entry); id != "" {
			index[id] = len(out)
		}
		out = append(out, entry)
	}
	return out, true
}

func experimentID(entry any) string {
	m, ok := entry.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["id"].(string)
	return strings.TrimSpace(id)
}

// decodeRawConfig decodes the merged map strictly: unknown keys are errors.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
