package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ParseListField turns a list-like backend value into a list of strings.
// It accepts arrays, objects (values are flattened in key order), JSON
// encoded arrays, and strings separated by comma, semicolon or newline.
// Empty items are dropped.
func ParseListField(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{}
	case []string:
		return compact(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, ParseListField(item)...)
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(val))
		for _, k := range keys {
			out = append(out, ParseListField(val[k])...)
		}
		return out
	case string:
		return parseListString(val)
	case bool:
		if !val {
			return []string{}
		}
		return []string{"true"}
	case float64:
		return []string{fmt.Sprint(val)}
	case json.Number:
		return []string{val.String()}
	default:
		return []string{fmt.Sprint(val)}
	}
}

func parseListString(s string) []string {
	var arr []any
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		return ParseListField(arr)
	}

	var sep string
	switch {
	case strings.Contains(s, ","):
		sep = ","
	case strings.Contains(s, ";"):
		sep = ";"
	case strings.Contains(s, "\n"):
		sep = "\n"
	}
	if sep == "" {
		if t := strings.TrimSpace(s); t != "" {
			return []string{t}
		}
		return []string{}
	}
	return compact(strings.Split(s, sep))
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if t := strings.TrimSpace(item); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// MergeUnique concatenates lists keeping the first occurrence of each item.
func MergeUnique(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, item := range list {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
