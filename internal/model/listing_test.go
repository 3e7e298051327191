package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketplaceValid(t *testing.T) {
	for _, mkt := range AllMarketplaces() {
		assert.True(t, mkt.Valid(), "%s should be valid", mkt)
	}
	assert.False(t, Marketplace("craigslist").Valid())
	assert.False(t, Marketplace("").Valid())
}

func TestAllMarketplacesStableOrder(t *testing.T) {
	first := AllMarketplaces()
	second := AllMarketplaces()
	assert.Equal(t, first, second)
	assert.Len(t, first, 6)
}
