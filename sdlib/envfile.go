package sdlib

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// LoadEnvFile reads a file of KEY=VALUE settings, such as ".env.local".
// Blank lines and lines beginning with "#" are ignored, as are lines without
// an "=". Surrounding whitespace and double quotes are trimmed from values.
// If a key occurs more than once, the first occurrence wins.
func LoadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return ParseEnv(data), nil
}

// ParseEnv parses the contents of an env file as described by LoadEnvFile.
func ParseEnv(data []byte) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := out[key]; seen {
			continue
		}
		out[key] = strings.Trim(strings.TrimSpace(val), `"`)
	}
	return out
}

// LookupEnv returns the value of key from the env file at path, and reports
// whether it was found. A missing or unreadable file has no keys.
func LookupEnv(path, key string) (string, bool) {
	env, err := LoadEnvFile(path)
	if err != nil {
		return "", false
	}
	v, ok := env[key]
	return v, ok
}
