package accountsync

// Catalog is a static mapping from billing price ids to credit allocations.
// Subscription prices grant a per-period allocation; top-up prices grant a
// one-time additive amount without touching subscription state. All lookups
// are pure; unknown ids map to zero and are not an error.
type Catalog struct {
	subscriptionCredits map[string]int
	topUpCredits        map[string]int
}

// NewCatalog creates a catalog from price-id maps. Both maps may be nil.
func NewCatalog(subscriptionCredits, topUpCredits map[string]int) *Catalog {
	c := &Catalog{
		subscriptionCredits: make(map[string]int, len(subscriptionCredits)),
		topUpCredits:        make(map[string]int, len(topUpCredits)),
	}
	for id, credits := range subscriptionCredits {
		c.subscriptionCredits[id] = credits
	}
	for id, credits := range topUpCredits {
		c.topUpCredits[id] = credits
	}
	return c
}

// SubscriptionCredits returns the per-period credit allocation for a
// subscription price id, or 0 for unknown ids.
func (c *Catalog) SubscriptionCredits(priceID string) int {
	return c.subscriptionCredits[priceID]
}

// TopUpCredits returns the one-time credit amount for a top-up price id,
// or 0 for unknown ids.
func (c *Catalog) TopUpCredits(priceID string) int {
	return c.topUpCredits[priceID]
}

// IsTopUp reports whether a price id belongs to the top-up product family.
func (c *Catalog) IsTopUp(priceID string) bool {
	_, ok := c.topUpCredits[priceID]
	return ok
}
