package models

import "testing"

func TestPlanForSubscriber(t *testing.T) {
	if got := PlanForSubscriber(false); got.Slug != "free" || got.PagesPerPDF != 10 {
		t.Fatalf("free plan = %+v", got)
	}
	if got := PlanForSubscriber(true); got.Slug != "pro" || got.PagesPerPDF != 25 {
		t.Fatalf("pro plan = %+v", got)
	}
}

func TestPlanBySlugFallsBackToFree(t *testing.T) {
	if got := PlanBySlug("enterprise"); got.Slug != "free" {
		t.Fatalf("unknown slug resolved to %+v", got)
	}
}
