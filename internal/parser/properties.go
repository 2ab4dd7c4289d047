package parser

import (
	"fmt"
	"strings"
)

const (
	propTags    = "tags"
	propAliases = "aliases"
	propID      = "id"
	propTitle   = "title"
)

// propertyKeys maps accepted spellings onto canonical property names.
var propertyKeys = map[string]string{
	"tag":   propTags,
	"alias": propAliases,
}

type propertyParser func(raw any) (any, bool)

// propertyParsers are the typed handlers for known properties. Anything not
// listed here is passed through verbatim.
var propertyParsers = map[string]propertyParser{
	propTags:    parseTagProperty,
	propAliases: parseStringListProperty,
	propID:      parseIDProperty,
	propTitle:   parseStringProperty,
}

// normalizeProperties returns a copy of fm with canonical keys and typed
// values for known properties. A value its handler rejects is kept as-is.
func normalizeProperties(fm map[string]any) map[string]any {
	out := make(map[string]any, len(fm))
	for name, raw := range fm {
		key := name
		if canonical, ok := propertyKeys[strings.ToLower(name)]; ok {
			key = canonical
		}
		parse, known := propertyParsers[key]
		if !known {
			out[key] = raw
			continue
		}
		if v, ok := parse(raw); ok {
			out[key] = v
		} else {
			out[key] = raw
		}
	}
	return out
}

func parseTagProperty(raw any) (any, bool) {
	list, ok := stringList(raw, true)
	if !ok {
		return nil, false
	}
	var tags []string
	for _, t := range list {
		tags = append(tags, expandHierarchy(normalizeTag(t))...)
	}
	return dedupe(tags), true
}

func parseStringListProperty(raw any) (any, bool) {
	list, ok := stringList(raw, false)
	if !ok {
		return nil, false
	}
	return list, true
}

func parseIDProperty(raw any) (any, bool) {
	if raw == nil {
		return nil, false
	}
	return fmt.Sprintf("OBS_%v", raw), true
}

func parseStringProperty(raw any) (any, bool) {
	s, ok := raw.(string)
	return strings.TrimSpace(s), ok
}

// stringList accepts a YAML sequence of strings or a single string. With
// splitWords a single string is split on commas and spaces.
func stringList(raw any, splitWords bool) ([]string, bool) {
	switch v := raw.(type) {
	case string:
		if !splitWords {
			if s := strings.TrimSpace(v); s != "" {
				return []string{s}, true
			}
			return nil, true
		}
		var out []string
		for _, f := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, f)
		}
		return out, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, true
	case nil:
		return nil, true
	default:
		return nil, false
	}
}
