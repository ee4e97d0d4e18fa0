package countries

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "united states", Normalize(" United States "))
	assert.Equal(t, "japan", Normalize("JAPAN"))
	assert.Equal(t, "", Normalize("   "))
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "United States", Display("united states"))
	assert.Equal(t, "South Korea", Display("SOUTH KOREA"))
}

func TestKnown(t *testing.T) {
	assert.True(t, Known("Germany"))
	assert.True(t, Known("new zealand"))
	assert.False(t, Known("atlantis"))
}

func TestRegionOf(t *testing.T) {
	assert.Equal(t, Asia, RegionOf("japan"))
	assert.Equal(t, Americas, RegionOf("brazil"))
	assert.Equal(t, MiddleEast, RegionOf("qatar"))
}

func TestUTCOffsetUsesOverrides(t *testing.T) {
	assert.Equal(t, 9, UTCOffset("japan"))
	assert.Equal(t, -6, UTCOffset("united states"))
	// no override falls back to the region offset
	assert.Equal(t, 1, UTCOffset("france"))
}

func TestImportanceTiers(t *testing.T) {
	assert.Equal(t, 10.0, Importance("united states"))
	assert.Equal(t, 4.0, Importance("poland"))
	assert.Equal(t, 2.0, Importance("moldova"))
	assert.Equal(t, 2.0, Importance("unknownland"))
}

func TestAllReturnsCopy(t *testing.T) {
	first := All()
	first[0] = "mutated"
	assert.NotEqual(t, "mutated", All()[0])
	assert.NotEmpty(t, All())
}
