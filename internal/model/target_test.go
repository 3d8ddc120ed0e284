package model

import "testing"

func TestNewTarget(t *testing.T) {
	variant := "v1"
	empty := ""

	tests := []struct {
		name      string
		variantID *string
		want      Target
	}{
		{"no variant", nil, ItemTarget{ItemID: "i1"}},
		{"empty variant", &empty, ItemTarget{ItemID: "i1"}},
		{"variant", &variant, VariantTarget{ItemID: "i1", VariantID: "v1"}},
	}

	for _, tt := range tests {
		got := NewTarget("i1", tt.variantID)
		if got != tt.want {
			t.Errorf("%s: NewTarget = %#v, want %#v", tt.name, got, tt.want)
		}
		if got.Item() != "i1" {
			t.Errorf("%s: Item() = %q", tt.name, got.Item())
		}
	}
}

func TestLoanTargetRoundTrip(t *testing.T) {
	variant := "v2"
	loan := Loan{ItemID: "i2", VariantID: &variant}
	target := loan.Target()

	vt, ok := target.(VariantTarget)
	if !ok {
		t.Fatalf("expected VariantTarget, got %T", target)
	}
	if vt.VariantID != "v2" {
		t.Errorf("expected variant v2, got %s", vt.VariantID)
	}

	got := VariantOf(target)
	if got == nil || *got != "v2" {
		t.Errorf("VariantOf = %v", got)
	}
	if VariantOf(ItemTarget{ItemID: "i2"}) != nil {
		t.Error("item target has no variant")
	}
}

func TestLoanState(t *testing.T) {
	loan := Loan{}
	if !loan.Active() || loan.State() != LoanStateActive {
		t.Errorf("new loan should be active")
	}
	now := loan.LoanedAt
	loan.ReturnedAt = &now
	if loan.Active() || loan.State() != LoanStateReturned {
		t.Errorf("returned loan should not be active")
	}
}
