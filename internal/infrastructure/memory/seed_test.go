package memory

import (
	"strings"
	"testing"

	domain "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSeed(t *testing.T) {
	products, err := ReadSeed(strings.NewReader(`[
		{"id": "p1", "name": "Mug", "price": "4.50", "stock": 5},
		{"id": "p2", "name": "Tee", "description": "cotton", "price": 12, "stock": 0}
	]`))
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.True(t, decimal.RequireFromString("4.5").Equal(products[0].Price))
	assert.Equal(t, "cotton", products[1].Description)
}

func TestReadSeedRejectsInvalidProducts(t *testing.T) {
	_, err := ReadSeed(strings.NewReader(`[{"id": "p1", "price": "-1", "stock": 1}]`))
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = ReadSeed(strings.NewReader(`[{"name": "nameless", "price": "1", "stock": 1}]`))
	assert.Error(t, err)

	_, err = ReadSeed(strings.NewReader(`[{"id": "p1", "colour": "red"}]`))
	assert.Error(t, err)
}

func TestLoadSeedFileEmptyPath(t *testing.T) {
	products, err := LoadSeedFile("")
	require.NoError(t, err)
	assert.Empty(t, products)
}
