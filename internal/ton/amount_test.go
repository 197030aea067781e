package ton

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToNanoFromNano(t *testing.T) {
	d := decimal.RequireFromString("1.5")
	n := ToNano(d)
	if n.String() != "1500000000" {
		t.Fatalf("nano=%s want=1500000000", n)
	}
	back := FromNano(n)
	if !back.Equal(d) {
		t.Fatalf("back=%s want=%s", back, d)
	}
	if !FromNano(nil).Equal(decimal.Zero) {
		t.Fatal("nil nano should be zero")
	}
}

func TestParsePercent(t *testing.T) {
	num, den, err := ParsePercent("33.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if num.String() != "335" || den.String() != "10" {
		t.Fatalf("got %s/%s want 335/10", num, den)
	}

	for _, bad := range []string{"", "abc", "0", "-1", "100.0001", "101"} {
		if _, _, err := ParsePercent(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}

	if _, _, err := ParsePercent("100"); err != nil {
		t.Fatalf("100 should be accepted: %v", err)
	}
}

func TestSellAmount(t *testing.T) {
	cases := []struct {
		balance string
		percent string
		want    string
	}{
		{"1000000", "50", "500000"},
		{"1000000", "100", "1000000"},
		{"7", "33.5", "2"},
		// Floor would be zero; the smallest unit is sold instead.
		{"3", "10", "1"},
		{"1", "0.1", "1"},
	}
	for _, tc := range cases {
		balance, _ := new(big.Int).SetString(tc.balance, 10)
		got, err := SellAmount(balance, tc.percent)
		if err != nil {
			t.Fatalf("SellAmount(%s, %s): %v", tc.balance, tc.percent, err)
		}
		if got.String() != tc.want {
			t.Fatalf("SellAmount(%s, %s)=%s want=%s", tc.balance, tc.percent, got, tc.want)
		}
		if got.Cmp(balance) > 0 {
			t.Fatalf("SellAmount(%s, %s)=%s exceeds balance", tc.balance, tc.percent, got)
		}
	}

	if _, err := SellAmount(big.NewInt(0), "50"); err == nil {
		t.Fatal("expected error for zero balance")
	}
	if _, err := SellAmount(big.NewInt(100), "abc"); err == nil {
		t.Fatal("expected error for malformed percent")
	}
}

func TestMinOutForLimit(t *testing.T) {
	cases := []struct {
		amount   string
		price    string
		decimals int
		want     string
	}{
		{"1", "0.5", 9, "2000000000"},
		{"2.5", "3", 6, "833333"},
		{"10", "2", 0, "5"},
	}
	for _, tc := range cases {
		amount := decimal.RequireFromString(tc.amount)
		price := decimal.RequireFromString(tc.price)
		got, err := MinOutForLimit(amount, price, tc.decimals)
		if err != nil {
			t.Fatalf("MinOutForLimit(%s, %s, %d): %v", tc.amount, tc.price, tc.decimals, err)
		}
		if got.String() != tc.want {
			t.Fatalf("MinOutForLimit(%s, %s, %d)=%s want=%s", tc.amount, tc.price, tc.decimals, got, tc.want)
		}
	}

	if _, err := MinOutForLimit(decimal.RequireFromString("1"), decimal.Zero, 9); err == nil {
		t.Fatal("expected error for zero price")
	}
	if _, err := MinOutForLimit(decimal.Zero, decimal.RequireFromString("1"), 9); err == nil {
		t.Fatal("expected error for zero amount")
	}
}
