package accountsync

import "strconv"

// Default values used when a payload carries no line items.
const (
	defaultPlanName = "Unknown Plan"
	defaultInterval = "month"
)

// itemLocation is one extraction strategy for finding the line-items list in
// an event payload. The provider moved the list between event families over
// time, so the strategies are tried in order, first hit wins.
type itemLocation struct {
	name    string
	extract func(data map[string]interface{}) []interface{}
}

var itemLocations = []itemLocation{
	{name: "items", extract: func(data map[string]interface{}) []interface{} {
		items, _ := data["items"].([]interface{})
		return items
	}},
	{name: "line_items", extract: func(data map[string]interface{}) []interface{} {
		items, _ := data["line_items"].([]interface{})
		return items
	}},
	{name: "details.line_items", extract: func(data map[string]interface{}) []interface{} {
		details, _ := data["details"].(map[string]interface{})
		if details == nil {
			return nil
		}
		items, _ := details["line_items"].([]interface{})
		return items
	}},
}

// LineItems returns the line-items list of an event payload, searching the
// known alternative locations in priority order. Returns nil when the payload
// carries no items, which is a valid degraded state and not an error.
func LineItems(data map[string]interface{}) []map[string]interface{} {
	if data == nil {
		return nil
	}
	for _, loc := range itemLocations {
		raw := loc.extract(data)
		if len(raw) == 0 {
			continue
		}
		items := make([]map[string]interface{}, 0, len(raw))
		for _, entry := range raw {
			if item, ok := entry.(map[string]interface{}); ok {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

// NormalizePrice extracts the canonical (price id, plan name, amount,
// interval) tuple from a raw event payload. Missing pieces fall back to
// defaults; a payload without items yields an empty price id, the default
// plan name, zero amount and a monthly interval.
func NormalizePrice(data map[string]interface{}) PriceInfo {
	info := PriceInfo{
		PlanName: defaultPlanName,
		Interval: defaultInterval,
	}

	items := LineItems(data)
	if len(items) == 0 {
		return info
	}

	price, _ := items[0]["price"].(map[string]interface{})
	if price == nil {
		return info
	}

	info.PriceID = stringField(price, "id")
	if name := stringField(price, "description"); name != "" {
		info.PlanName = name
	} else if name := stringField(price, "name"); name != "" {
		info.PlanName = name
	}
	info.Amount = priceAmount(price)
	if cycle, _ := price["billing_cycle"].(map[string]interface{}); cycle != nil {
		if interval := stringField(cycle, "interval"); interval != "" {
			info.Interval = interval
		}
	}
	return info
}

// ItemPriceID returns the price id of a single line item, or "".
func ItemPriceID(item map[string]interface{}) string {
	price, _ := item["price"].(map[string]interface{})
	if price == nil {
		return ""
	}
	return stringField(price, "id")
}

// priceAmount extracts the monetary amount of a price, converting minor
// units (cents) to a decimal major-unit amount. The provider serializes the
// amount either as an object {"amount": n} or as a bare integer or string.
func priceAmount(price map[string]interface{}) float64 {
	raw, ok := price["unit_price"]
	if !ok {
		return 0
	}
	if obj, ok := raw.(map[string]interface{}); ok {
		return minorUnits(obj["amount"]) / 100
	}
	return minorUnits(raw) / 100
}

func minorUnits(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}
