package mapping

import (
	"strings"

	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
)

// Classify decides which collection a product belongs to from its name.
// "graphics kit" is tested before the bare "graphics" rule so kits are never
// classified as individual graphics.
func Classify(productName string) domain.Collection {
	name := strings.ToLower(productName)
	switch {
	case strings.Contains(name, "graphics kit"):
		return domain.CollectionGraphicsKit
	case strings.Contains(name, "background"):
		return domain.CollectionBackground
	case strings.Contains(name, "graphics") && !strings.Contains(name, "kit"):
		return domain.CollectionIndividualGraphics
	default:
		return domain.CollectionUncategorized
	}
}
