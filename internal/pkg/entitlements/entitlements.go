package entitlements

import (
	"strings"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPremium    Plan = "premium"
	PlanPremiumMax Plan = "premium_max"
)

// Unlimited marks a quota without an upper bound
const Unlimited = -1

// ParsePlan maps a stored plan name to a Plan, falling back to free
func ParsePlan(s string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(s))) {
	case PlanPremium:
		return PlanPremium
	case PlanPremiumMax:
		return PlanPremiumMax
	default:
		return PlanFree
	}
}

// MonthlyReceipts returns how many receipt files a plan may submit per month
func MonthlyReceipts(plan Plan) int {
	switch plan {
	case PlanPremiumMax:
		return Unlimited
	case PlanPremium:
		return 500
	default:
		return 25
	}
}

// MonthlyExports returns how many per-user exports a plan may run per month
func MonthlyExports(plan Plan) int {
	switch plan {
	case PlanPremiumMax:
		return Unlimited
	case PlanPremium:
		return 50
	default:
		return 3
	}
}

// AllowedExportFormats returns which export formats are available for a plan
func AllowedExportFormats(plan Plan) (csv, xlsx bool) {
	switch plan {
	case PlanPremium, PlanPremiumMax:
		return true, true
	default:
		return true, false
	}
}

// Within reports whether used+n stays inside limit
func Within(limit, used, n int) bool {
	return limit == Unlimited || used+n <= limit
}
