package mapping

import (
	"strings"

	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
)

// reservedPrefix marks platform-internal line item properties.
const reservedPrefix = "__"

// NormalizedProperty is a property whose name is ready for table lookup.
type NormalizedProperty struct {
	Name  string
	Value string
}

// NormalizeName canonicalizes a raw property name.
func NormalizeName(raw string) string {
	name := strings.TrimLeft(raw, "_")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeProperties returns the lookup-ready properties of one line item in
// first-seen order. Duplicate names keep the last value.
func NormalizeProperties(props []domain.Property) []NormalizedProperty {
	out := make([]NormalizedProperty, 0, len(props))
	index := make(map[string]int, len(props))
	for _, prop := range props {
		if strings.HasPrefix(prop.Name, reservedPrefix) {
			continue
		}
		name := NormalizeName(prop.Name)
		if name == "" || prop.Value == "" {
			continue
		}
		if i, ok := index[name]; ok {
			out[i].Value = prop.Value
			continue
		}
		index[name] = len(out)
		out = append(out, NormalizedProperty{Name: name, Value: prop.Value})
	}
	return out
}
