package model

import (
	"testing"
	"time"
)

func TestQuote_Spread(t *testing.T) {
	tests := []struct {
		name string
		bid  float64
		ask  float64
		want float64
	}{
		{"normal spread", 100.25, 100.50, 0.25},
		{"zero bid", 0, 100.50, 0},
		{"zero ask", 100.25, 0, 0},
		{"both missing", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := Quote{Bid: tt.bid, Ask: tt.ask}
			got := q.Spread()
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Spread() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountValue_Float(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		want   float64
		wantOK bool
	}{
		{"numeric", "250000.50", 250000.50, true},
		{"integer", "42", 42, true},
		{"negative", "-1250.75", -1250.75, true},
		{"non-numeric tag", "INDIVIDUAL", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := AccountValue{Tag: "x", Value: tt.value}
			got, ok := v.Float()
			if ok != tt.wantOK {
				t.Fatalf("Float() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("Float() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountSummary_Lookup(t *testing.T) {
	s := AccountSummary{
		AccountID: "DU123456",
		Values: []AccountValue{
			{Tag: "NetLiquidation", Value: "100000", Currency: "USD"},
			{Tag: "BuyingPower", Value: "400000", Currency: "USD"},
		},
		Timestamp: time.Now(),
	}

	if v, ok := s.Lookup("BuyingPower"); !ok || v.Value != "400000" {
		t.Errorf("Lookup(BuyingPower) = %v, %v; want 400000, true", v, ok)
	}
	if _, ok := s.Lookup("GrossPositionValue"); ok {
		t.Error("Lookup(GrossPositionValue) should miss")
	}
}
