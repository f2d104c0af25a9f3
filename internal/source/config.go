package source

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

func (c Config) getString(key, fallback string) string {
	switch v := c[key].(type) {
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return fallback
}

func (c Config) getInt(key string, fallback int) (int, error) {
	switch v := c[key].(type) {
	case nil:
		return fallback, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return fallback, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

func (c Config) getBool(key string, fallback bool) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// getOptions reads a flat key/value option set given either as an object or
// as a string holding a JSON object, and returns it as a JSON object of
// strings. An absent key yields "".
func (c Config) getOptions(key string) (string, error) {
	var raw map[string]any
	switch v := c[key].(type) {
	case nil:
		return "", nil
	case map[string]any:
		raw = v
	case string:
		if strings.TrimSpace(v) == "" {
			return "", nil
		}
		if err := json.Unmarshal([]byte(v), &raw); err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
	default:
		return "", fmt.Errorf("%s: expected an object, got %T", key, v)
	}
	if len(raw) == 0 {
		return "", nil
	}

	opts := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return "", fmt.Errorf("%s.%s: expected a scalar value", key, k)
		}
		opts[k] = fmt.Sprint(v)
	}
	out, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return string(out), nil
}
