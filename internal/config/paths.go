package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultBaseDir = ".chatkit-demo"

// Paths holds resolved filesystem paths for chatkit-demo data.
type Paths struct {
	Base      string // ~/.chatkit-demo
	Config    string // ~/.chatkit-demo/config.yaml
	DotEnv    string // ~/.chatkit-demo/.env
	Data      string // ~/.chatkit-demo/data
	Scenarios string // ~/.chatkit-demo/scenarios
	Logs      string // ~/.chatkit-demo/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If CHATKIT_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("CHATKIT_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}
	return PathsAt(base), nil
}

// PathsAt lays out the standard tree under base.
func PathsAt(base string) Paths {
	return Paths{
		Base:      base,
		Config:    filepath.Join(base, "config.yaml"),
		DotEnv:    filepath.Join(base, ".env"),
		Data:      filepath.Join(base, "data"),
		Scenarios: filepath.Join(base, "scenarios"),
		Logs:      filepath.Join(base, "logs"),
	}
}

// Database returns the default SQLite path under the data directory.
func (p Paths) Database() string {
	return filepath.Join(p.Data, "conversations.db")
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Scenarios, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// reservedKeys can never appear in a config path. YAML anchors and merge
// keys would otherwise let `config set` write structure it cannot read back.
var reservedKeys = map[string]bool{
	"<<": true,
	"&":  true,
	"*":  true,
}

// ParseConfigPath splits a dot path such as "server.port" into segments.
func ParseConfigPath(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		switch {
		case p == "":
			return nil, &ConfigError{Message: "config path contains empty segment"}
		case reservedKeys[p]:
			return nil, &ConfigError{Message: "config path contains reserved key: " + p}
		}
	}
	return parts, nil
}

// GetValueAtPath walks nested maps and returns the value at path.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	var cur any = root
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetValueAtPath stores value at path. Missing or non-map intermediates
// are replaced with empty maps.
func SetValueAtPath(root map[string]any, path []string, value any) {
	parent := descend(root, path[:len(path)-1], true)
	parent[path[len(path)-1]] = value
}

// UnsetValueAtPath deletes the value at path and reports whether it existed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	parent := descend(root, path[:len(path)-1], false)
	if parent == nil {
		return false
	}
	last := path[len(path)-1]
	if _, ok := parent[last]; !ok {
		return false
	}
	delete(parent, last)
	return true
}

func descend(root map[string]any, keys []string, create bool) map[string]any {
	cur := root
	for _, key := range keys {
		next, ok := cur[key].(map[string]any)
		if !ok {
			if !create {
				return nil
			}
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	return cur
}

// CoerceValue turns a command-line string into the YAML scalar it spells,
// so "3000" is stored as an int and "true" as a bool.
func CoerceValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw
	}
	switch v.(type) {
	case map[string]any, []any:
		return raw
	}
	return v
}
