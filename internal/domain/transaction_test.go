package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopedKey(t *testing.T) {
	assert.Equal(t, "purchase:k-1", ScopedKey(KeyScopePurchase, "k-1"))
	assert.Equal(t, "manual:chargeback:abc", ScopedKey(KeyScopeManual, "chargeback:abc"))
	assert.Equal(t, "", ScopedKey(KeyScopePurchase, ""))
}
