package mapping

import (
	"testing"

	"github.com/smallbiznis/orderlead/internal/leadsync/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want domain.Collection
	}{
		{name: "Graphics Kit Deluxe", want: domain.CollectionGraphicsKit},
		{name: "Graphics Kit - Large", want: domain.CollectionGraphicsKit},
		{name: "MX GRAPHICS KIT", want: domain.CollectionGraphicsKit},
		{name: "Background Sticker", want: domain.CollectionBackground},
		{name: "Background Graphics", want: domain.CollectionBackground},
		{name: "Fork Graphics", want: domain.CollectionIndividualGraphics},
		{name: "Graphics Starter Kit", want: domain.CollectionUncategorized},
		{name: "Seat Cover", want: domain.CollectionUncategorized},
		{name: "", want: domain.CollectionUncategorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.name))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "bike model", NormalizeName("_Bike_Model"))
	assert.Equal(t, "rider number", NormalizeName("  Rider Number "))
	assert.Equal(t, "", NormalizeName("___"))
}

func TestNormalizePropertiesDropsReservedAndEmpty(t *testing.T) {
	props := []domain.Property{
		{Name: "__internal_flag", Value: "1"},
		{Name: "_Bike_Model", Value: "CRF450"},
		{Name: "Bike Year", Value: ""},
		{Name: "___", Value: "x"},
		{Name: "Rider Name", Value: "Sam"},
	}

	got := NormalizeProperties(props)
	require.Len(t, got, 2)
	assert.Equal(t, NormalizedProperty{Name: "bike model", Value: "CRF450"}, got[0])
	assert.Equal(t, NormalizedProperty{Name: "rider name", Value: "Sam"}, got[1])
}

func TestNormalizePropertiesLastWriteWins(t *testing.T) {
	got := NormalizeProperties([]domain.Property{
		{Name: "Bike Model", Value: "KX250"},
		{Name: "bike_model", Value: "CRF450"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "CRF450", got[0].Value)
}

func TestSetTable(t *testing.T) {
	set := Default()
	require.NoError(t, set.Validate())

	field, ok := set.Table(domain.CollectionGraphicsKit).Lookup("bike model")
	require.True(t, ok)
	assert.Equal(t, "UF_CRM_1742489085", field)

	field, ok = set.Table(domain.CollectionBackground).Lookup("bike model")
	require.True(t, ok)
	assert.Equal(t, "UF_CRM_1743064150", field)

	_, ok = set.Table(domain.CollectionIndividualGraphics).Lookup("rider name")
	assert.False(t, ok)

	_, ok = set.Table(domain.CollectionUncategorized).Lookup("bike model")
	assert.False(t, ok)
}

func TestFromConfig(t *testing.T) {
	set, err := FromConfig("UF_ORDER", "UF_PRODUCTS", map[string]map[string]string{
		"graphics_kit": {"Bike_Model": "UF_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "UF_ORDER", set.ExternalIDField)
	field, ok := set.Table(domain.CollectionGraphicsKit).Lookup("bike model")
	require.True(t, ok)
	assert.Equal(t, "UF_1", field)

	_, err = FromConfig("UF_ORDER", "UF_PRODUCTS", map[string]map[string]string{
		"stickers": {"bike model": "UF_1"},
	})
	assert.Error(t, err)

	_, err = FromConfig("", "UF_PRODUCTS", map[string]map[string]string{
		"background": {"bike model": "UF_1"},
	})
	assert.Error(t, err)
}

func TestFromConfigAcceptsCollectionAliases(t *testing.T) {
	set, err := FromConfig("UF_ORDER", "UF_PRODUCTS", map[string]map[string]string{
		"Kit":    {"bike model": "UF_KIT"},
		"custom": {"bike model": "UF_CUSTOM"},
	})
	require.NoError(t, err)

	field, ok := set.Table(domain.CollectionGraphicsKit).Lookup("bike model")
	require.True(t, ok)
	assert.Equal(t, "UF_KIT", field)

	field, ok = set.Table(domain.CollectionIndividualGraphics).Lookup("bike model")
	require.True(t, ok)
	assert.Equal(t, "UF_CUSTOM", field)
}

func TestFromConfigRejectsAliasConflict(t *testing.T) {
	_, err := FromConfig("UF_ORDER", "UF_PRODUCTS", map[string]map[string]string{
		"kit":          {"bike model": "UF_KIT"},
		"graphics_kit": {"bike model": "UF_GK"},
	})
	assert.ErrorContains(t, err, "configured more than once")
}
