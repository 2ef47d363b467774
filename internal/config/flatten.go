package config

import (
	"strings"
)

// secretKeys lists the dot-separated keys whose values are masked for
// display.
var secretKeys = map[string]bool{
	"llm.api_key":    true,
	"remote.api_key": true,
	"brave.api_key":  true,
	"telegram.token": true,
	"redis.password": true,
	"webhook.secret": true,
}

// IsSecretKey reports whether the dot-separated key holds a secret.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten converts a nested JSON object into a single-level map keyed by
// dot-separated paths: {"llm": {"model": "x"}} becomes {"llm.model": "x"}.
func Flatten(m map[string]any) map[string]any {
	flat := make(map[string]any)
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			key := prefix + k
			if child, ok := v.(map[string]any); ok {
				walk(key+".", child)
				continue
			}
			flat[key] = v
		}
	}
	walk("", m)
	return flat
}

// Unflatten rebuilds the nested object from a flat dot-keyed map.
func Unflatten(flat map[string]any) map[string]any {
	root := make(map[string]any)
	for key, v := range flat {
		node := root
		rest := key
		for {
			head, tail, found := strings.Cut(rest, ".")
			if !found {
				node[head] = v
				break
			}
			child, ok := node[head].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[head] = child
			}
			node = child
			rest = tail
		}
	}
	return root
}

// MaskSecrets copies flat, replacing secret values with "***" plus their
// last four characters. Empty secrets stay empty.
func MaskSecrets(flat map[string]any) map[string]any {
	masked := make(map[string]any, len(flat))
	for k, v := range flat {
		s, ok := v.(string)
		if !secretKeys[k] || !ok || s == "" {
			masked[k] = v
			continue
		}
		masked[k] = mask(s)
	}
	return masked
}

func mask(s string) string {
	if len(s) <= 4 {
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}
