package thingsboard

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
)

// unmarshalResponse unmarshals JSON data with consistent error formatting.
// Plain payloads (key lists, telemetry maps) go through here; entities go
// through Hydrate.
func unmarshalResponse[T any](data []byte, resourceName string) (T, error) {
	var resp T
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("failed to parse %s: %w (body: %s)", resourceName, err, truncatePreview(data))
	}
	return resp, nil
}

// truncatePreview returns a truncated string for error messages.
func truncatePreview(data []byte) string {
	s := string(data)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// joinKeys renders keys the way ThingsBoard expects them in a query string.
func joinKeys(keys []string) string {
	return strings.Join(keys, ",")
}

// withQuery appends encoded parameters to path.
func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// exactMatch narrows a prefix search down to records whose name equals name.
// More than one distinct entity with that name is an error; repeats of the
// same entity are not.
func exactMatch[T Identifiable](kind, name string, candidates []T, nameOf func(T) string) (T, error) {
	var zero T
	var matches []T
	for _, c := range candidates {
		if nameOf(c) == name {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return zero, nil
	}
	first := matches[0].Identity()
	for _, m := range matches[1:] {
		if !first.Equal(m.Identity()) {
			return zero, &AmbiguousMatchError{Kind: kind, Name: name, Count: len(matches)}
		}
	}
	return matches[0], nil
}

// GetString navigates a nested map and returns a string value.
// Returns the value and true if found, or empty string and false if not.
//
// Example:
//
//	// Extract: customer.AdditionalInfo["description"]
//	desc, ok := GetString(customer.AdditionalInfo, "description")
func GetString(data map[string]any, keys ...string) (string, bool) {
	val, ok := navigate(data, keys)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// GetInt navigates a nested map and returns an int value.
// Handles JSON's float64 representation of numbers.
// Returns false if the value is outside the valid int range.
func GetInt(data map[string]any, keys ...string) (int, bool) {
	val, ok := navigate(data, keys)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		if v > float64(math.MaxInt) || v < float64(math.MinInt) || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

// GetBool navigates a nested map and returns a bool value.
//
// Example:
//
//	// Extract: customer.AdditionalInfo["isPublic"]
//	public, ok := GetBool(customer.AdditionalInfo, "isPublic")
func GetBool(data map[string]any, keys ...string) (bool, bool) {
	val, ok := navigate(data, keys)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// GetMap navigates a nested map and returns a map[string]any value.
//
// Example:
//
//	// Extract: profile.ProfileData["transportConfiguration"]
//	transport, ok := GetMap(profile.ProfileData, "transportConfiguration")
func GetMap(data map[string]any, keys ...string) (map[string]any, bool) {
	val, ok := navigate(data, keys)
	if !ok {
		return nil, false
	}
	m, ok := val.(map[string]any)
	return m, ok
}

// navigate walks through a nested map following the provided keys.
// Returns the final value and true if successful, or nil and false if any key is missing.
func navigate(data map[string]any, keys []string) (any, bool) {
	if len(keys) == 0 {
		return data, true
	}

	current := data
	for i, key := range keys {
		val, exists := current[key]
		if !exists {
			return nil, false
		}
		if i == len(keys)-1 {
			return val, true
		}
		next, ok := val.(map[string]any)
		if !ok {
			return nil, false
		}
		current = next
	}

	return nil, false
}
