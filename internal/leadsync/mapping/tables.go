package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
)

const (
	DefaultExternalIDField     = "UF_CRM_FACTORYMOTO62"
	DefaultProductDetailsField = "UF_CRM_1744466600"
)

// Table maps a normalized property name to a CRM field identifier.
type Table map[string]string

// Lookup returns the CRM field for a normalized property name.
func (t Table) Lookup(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	field, ok := t[name]
	return field, ok
}

// Set is the full field-mapping configuration. A Set is never mutated after
// construction; reloads produce a new Set.
type Set struct {
	ExternalIDField     string
	ProductDetailsField string
	Tables              map[domain.Collection]Table
}

// Table returns the mapping table of a collection. Uncategorized has none.
func (s Set) Table(c domain.Collection) Table {
	if c == domain.CollectionUncategorized {
		return nil
	}
	return s.Tables[c]
}

// Default returns the built-in mapping tables.
func Default() Set {
	return Set{
		ExternalIDField:     DefaultExternalIDField,
		ProductDetailsField: DefaultProductDetailsField,
		Tables: map[domain.Collection]Table{
			domain.CollectionGraphicsKit: {
				"bike model":                               "UF_CRM_1742489085",
				"bike year":                                "UF_CRM_1742489103",
				"rider number":                             "UF_CRM_1742489121",
				"rider name":                               "UF_CRM_1742832390",
				"background colour":                        "UF_CRM_1742832460",
				"number/name colour":                       "UF_CRM_1742832499",
				"number outline colour":                    "UF_CRM_1742832564",
				"select font style":                        "UF_CRM_1742832637",
				"want clear swingarms?":                    "UF_CRM_1742832690",
				"add upperforks/miniplates":                "UF_CRM_1742832740",
				"add miniplates":                           "UF_CRM_1742832824",
				"add upper forks stickers":                 "UF_CRM_1742833157",
				"add plastic kit & fitting":                "UF_CRM_1742833192",
				"choose your plastic colour":               "UF_CRM_1742833240",
				"want us to fit your graphics to plastics": "UF_CRM_1742833298",
				"add a second set":                         "UF_CRM_1742833405",
				"additional comments":                      "UF_CRM_1742835224",
			},
			domain.CollectionBackground: {
				"bike model":              "UF_CRM_1743064150",
				"bike year":               "UF_CRM_1743064240",
				"number":                  "UF_CRM_1743064259",
				"name":                    "UF_CRM_1743064287",
				"background colour":       "UF_CRM_1743064308",
				"number/name colour":      "UF_CRM_1743064327",
				"number outline colour":   "UF_CRM_1743064351",
				"select font style":       "UF_CRM_1743064369",
				"additional comments":     "UF_CRM_1743064390",
				"add a free design proof": "UF_CRM_1743064487",
				"add plastic":             "UF_CRM_1743064506",
				"want us to fit your graphics to plastics": "UF_CRM_1743064530",
			},
			domain.CollectionIndividualGraphics: {
				"bike model": "UF_CRM_1743860304",
				"bike year":  "UF_CRM_1743860338",
			},
		},
	}
}

// CollectionKeys are the configuration keys used for each mapped collection.
// "kit" and "custom" are short aliases.
var CollectionKeys = map[string]domain.Collection{
	"graphics_kit":        domain.CollectionGraphicsKit,
	"kit":                 domain.CollectionGraphicsKit,
	"background":          domain.CollectionBackground,
	"individual_graphics": domain.CollectionIndividualGraphics,
	"custom":              domain.CollectionIndividualGraphics,
}

// FromConfig builds a Set from raw configuration values. Table keys are
// canonicalized the same way property names are, so configuration may use
// any casing or underscores.
func FromConfig(externalIDField, productDetailsField string, raw map[string]map[string]string) (Set, error) {
	set := Set{
		ExternalIDField:     strings.TrimSpace(externalIDField),
		ProductDetailsField: strings.TrimSpace(productDetailsField),
		Tables:              make(map[domain.Collection]Table, len(raw)),
	}
	for key, entries := range raw {
		collection, ok := CollectionKeys[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			return Set{}, fmt.Errorf("unknown collection %q", key)
		}
		if _, dup := set.Tables[collection]; dup {
			return Set{}, fmt.Errorf("collection %q is configured more than once", key)
		}
		table := make(Table, len(entries))
		for name, field := range entries {
			normalized := NormalizeName(name)
			field = strings.TrimSpace(field)
			if normalized == "" || field == "" {
				return Set{}, fmt.Errorf("collection %q has an empty mapping entry", key)
			}
			table[normalized] = field
		}
		set.Tables[collection] = table
	}
	if err := set.Validate(); err != nil {
		return Set{}, err
	}
	return set, nil
}

func (s Set) Validate() error {
	if s.ExternalIDField == "" {
		return errors.New("mappings.externalIdField cannot be empty")
	}
	if s.ProductDetailsField == "" {
		return errors.New("mappings.productDetailsField cannot be empty")
	}
	if len(s.Tables) == 0 {
		return errors.New("mappings.collections cannot be empty")
	}
	return nil
}

// Source yields the mapping set in effect when a delivery is processed.
type Source interface {
	Current() Set
}

type staticSource struct {
	set Set
}

// Static returns a Source that always yields set.
func Static(set Set) Source {
	return staticSource{set: set}
}

func (s staticSource) Current() Set { return s.set }
