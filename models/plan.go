package models

// Plan is a subscription tier. PagesPerPDF is the only limit the
// ingestion pipeline enforces; Quota is total files per account.
type Plan struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Quota       int    `json:"quota"`
	PagesPerPDF int    `json:"pages_per_pdf"`
	PriceUSD    int    `json:"price_usd"`
}

var Plans = []Plan{
	{Name: "Free", Slug: "free", Quota: 10, PagesPerPDF: 10, PriceUSD: 0},
	{Name: "Pro", Slug: "pro", Quota: 50, PagesPerPDF: 25, PriceUSD: 14},
}

// PlanForSubscriber maps the billing collaborator's {isSubscribed} flag
// onto a tier.
func PlanForSubscriber(isSubscribed bool) Plan {
	if isSubscribed {
		return PlanBySlug("pro")
	}
	return PlanBySlug("free")
}

func PlanBySlug(slug string) Plan {
	for _, p := range Plans {
		if p.Slug == slug {
			return p
		}
	}
	return Plans[0]
}
