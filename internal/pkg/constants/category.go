package constants

import (
	"strings"
)

type Category string

const (
	Meals                Category = "Meals"
	TravelExpenses       Category = "Travel"
	Lodging              Category = "Lodging"
	OfficeSupplies       Category = "OfficeSupplies"
	OfficeEquipment      Category = "OfficeEquipment"
	SoftwareSubscription Category = "Software"
	Telecommunications   Category = "Telecommunications"
	ShippingExpenses     Category = "Shipping"
	Fuel                 Category = "Fuel"
	Other                Category = "Other"
)

var allCategories = []Category{
	Meals,
	TravelExpenses,
	Lodging,
	OfficeSupplies,
	OfficeEquipment,
	SoftwareSubscription,
	Telecommunications,
	ShippingExpenses,
	Fuel,
	Other,
}

var categorySynonyms = map[string]Category{
	"food":         Meals,
	"restaurant":   Meals,
	"dining":       Meals,
	"taxi":         TravelExpenses,
	"uber":         TravelExpenses,
	"lyft":         TravelExpenses,
	"airline":      TravelExpenses,
	"train":        TravelExpenses,
	"hotel":        Lodging,
	"saas":         SoftwareSubscription,
	"subscription": SoftwareSubscription,
	"cell phone":   Telecommunications,
	"internet":     Telecommunications,
	"postage":      ShippingExpenses,
	"gas":          Fuel,
	"petrol":       Fuel,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps free-form model output onto the category list, falling back to Other
func Canonicalize(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Other, false
	}
	if cat, ok := categorySynonyms[normalized]; ok {
		return cat, true
	}
	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}
	return Other, false
}
