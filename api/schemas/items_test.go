package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShoppingItemNormalize(t *testing.T) {
	item := ShoppingItem{Name: "usb c cable"}
	require.NoError(t, item.Normalize())
	assert.Equal(t, 1, item.Quantity, "zero quantity defaults to one")

	item = ShoppingItem{Name: "mouse", Quantity: 3}
	require.NoError(t, item.Normalize())
	assert.Equal(t, 3, item.Quantity)

	assert.Error(t, (&ShoppingItem{}).Normalize())
	assert.Error(t, (&ShoppingItem{Name: "mouse", Quantity: -2}).Normalize())
}

func TestRunResultCounts(t *testing.T) {
	result := RunResult{
		Outcomes: []CartOutcome{
			{Status: CartAdded},
			{Status: CartAdded},
			{Status: CartNotFound},
			{Status: CartSkipped},
		},
	}

	counts := result.Counts()
	assert.Equal(t, 2, counts[CartAdded])
	assert.Equal(t, 1, counts[CartNotFound])
	assert.Equal(t, 1, counts[CartSkipped])
	assert.Zero(t, counts[CartFailed])
}
