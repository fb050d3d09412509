package accountsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatalog_Lookups(t *testing.T) {
	catalog := NewCatalog(
		map[string]int{"pri_starter": 150, "pri_pro": 500},
		map[string]int{"pri_topup_100": 100},
	)

	assert.Equal(t, 150, catalog.SubscriptionCredits("pri_starter"))
	assert.Equal(t, 500, catalog.SubscriptionCredits("pri_pro"))
	assert.Equal(t, 0, catalog.SubscriptionCredits("pri_unknown"))

	assert.Equal(t, 100, catalog.TopUpCredits("pri_topup_100"))
	assert.Equal(t, 0, catalog.TopUpCredits("pri_starter"))

	assert.True(t, catalog.IsTopUp("pri_topup_100"))
	assert.False(t, catalog.IsTopUp("pri_starter"))
	assert.False(t, catalog.IsTopUp(""))
}

func TestCatalog_NilMaps(t *testing.T) {
	catalog := NewCatalog(nil, nil)
	assert.Equal(t, 0, catalog.SubscriptionCredits("pri_1"))
	assert.False(t, catalog.IsTopUp("pri_1"))
}

func TestCatalog_CopiesInput(t *testing.T) {
	subs := map[string]int{"pri_1": 10}
	catalog := NewCatalog(subs, nil)

	subs["pri_1"] = 999
	assert.Equal(t, 10, catalog.SubscriptionCredits("pri_1"))
}
