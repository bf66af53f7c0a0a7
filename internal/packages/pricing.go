package packages

// Pricer returns the price charged for one renewal of DefaultRenewalAmount.
type Pricer interface {
	RenewalPrice(groupID string) float64
}

// StaticPricer charges Default everywhere except for groups listed in ByGroup.
type StaticPricer struct {
	Default float64
	ByGroup map[string]float64
}

func (p StaticPricer) RenewalPrice(groupID string) float64 {
	if price, ok := p.ByGroup[groupID]; ok {
		return price
	}
	return p.Default
}
