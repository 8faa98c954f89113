package entitlement

import "github.com/enjuguna-bit/bulksms-sub001/internal/models"

// DefaultPlans is the built-in plan catalogue. Callers may supply their
// own via ManagerConfig.Plans.
var DefaultPlans = []models.Plan{
	{ID: "weekly", Name: "Weekly", PriceKES: 100, DurationDays: 7},
	{ID: "monthly", Name: "Monthly", PriceKES: 350, DurationDays: 30},
	{ID: "quarterly", Name: "Quarterly", PriceKES: 900, DurationDays: 90},
	{ID: "yearly", Name: "Yearly", PriceKES: 3000, DurationDays: 365},
}

// underpaymentTolerance is the fraction below a plan's price that is
// still accepted as payment for that plan.
const underpaymentTolerance = 0.05

// getPlanByAmount selects the highest-priced plan whose price is at
// most amountKES. Only when no plan qualifies outright does it fall
// back to the highest-priced plan within 5% underpayment tolerance, so
// a narrow underpayment on an expensive plan never outranks a cheaper
// plan paid in full.
func getPlanByAmount(plans []models.Plan, amountKES int) (models.Plan, bool) {
	var best models.Plan
	found := false
	for _, p := range plans {
		if amountKES >= p.PriceKES {
			if !found || p.PriceKES > best.PriceKES {
				best = p
				found = true
			}
		}
	}
	if found {
		return best, true
	}

	for _, p := range plans {
		threshold := float64(p.PriceKES) * (1 - underpaymentTolerance)
		if float64(amountKES) >= threshold {
			if !found || p.PriceKES > best.PriceKES {
				best = p
				found = true
			}
		}
	}
	return best, found
}

func planByID(plans []models.Plan, id string) (models.Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return models.Plan{}, false
}
