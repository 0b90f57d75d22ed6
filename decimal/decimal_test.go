package decimal

import (
	"math/big"
	"testing"
)

func TestParseAndString(t *testing.T) {
	cases := map[string]string{
		"0":        "0",
		"1":        "1",
		"1.5":      "1.5",
		"0.25":     "0.25",
		"12.3400":  "12.34",
		"3.000001": "3.000001",
	}
	for in, want := range cases {
		d, err := Parse(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got := d.String(); got != want {
			t.Fatalf("parse %q: got %q want %q", in, got, want)
		}
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "-1", "+2", "1.2.3", "abc", "1.0000000000000000001"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("expected error parsing %q", in)
		}
	}
}

func TestSubChecked(t *testing.T) {
	a := MustParse("1.5")
	b := MustParse("2")
	if _, err := a.Sub(b); err == nil {
		t.Fatalf("expected negative result error")
	}
	got, err := b.Sub(a)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if got.String() != "0.5" {
		t.Fatalf("unexpected difference: %s", got)
	}
}

func TestMulDiv(t *testing.T) {
	a := MustParse("1.2")
	b := MustParse("0.5")
	if got := a.Mul(b).String(); got != "0.6" {
		t.Fatalf("mul: got %s", got)
	}
	q, err := a.Div(b)
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if q.String() != "2.4" {
		t.Fatalf("div: got %s", q)
	}
	if _, err := a.Div(Zero()); err != ErrDivisionByZero {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestIntDivisionRounding(t *testing.T) {
	idx := MustParse("3")
	amount := big.NewInt(100)

	trunc, err := idx.DivIntTrunc(amount)
	if err != nil {
		t.Fatalf("trunc: %v", err)
	}
	if trunc.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("trunc: got %s", trunc)
	}

	ceil, err := idx.DivIntCeil(amount)
	if err != nil {
		t.Fatalf("ceil: %v", err)
	}
	if ceil.Cmp(big.NewInt(34)) != 0 {
		t.Fatalf("ceil: got %s", ceil)
	}

	// Exact divisions must not round up.
	exact, err := idx.DivIntCeil(big.NewInt(99))
	if err != nil {
		t.Fatalf("ceil exact: %v", err)
	}
	if exact.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("ceil exact: got %s", exact)
	}
}

func TestMulIntTruncates(t *testing.T) {
	rate := MustParse("0.333333333333333333")
	got := rate.MulInt(big.NewInt(3))
	if got.Cmp(big.NewInt(0)) != 0 {
		t.Fatalf("expected 0 (truncated), got %s", got)
	}
	got = rate.MulInt(big.NewInt(6))
	if got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected 1, got %s", got)
	}
}

func TestDivIntByIntCeil(t *testing.T) {
	got, err := DivIntByIntCeil(big.NewInt(10), big.NewInt(3))
	if err != nil {
		t.Fatalf("ceil: %v", err)
	}
	if got.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("got %s", got)
	}
	if _, err := DivIntByIntCeil(big.NewInt(1), big.NewInt(0)); err != ErrDivisionByZero {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestFromRatio(t *testing.T) {
	half := MustRatio(1, 2)
	if half.String() != "0.5" {
		t.Fatalf("got %s", half)
	}
	if _, err := FromRatio(1, 0); err != ErrDivisionByZero {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestZeroValueIsUsable(t *testing.T) {
	var d Decimal
	if !d.IsZero() {
		t.Fatalf("zero value should be zero")
	}
	if got := d.Add(One()); got.Cmp(One()) != 0 {
		t.Fatalf("zero add one: got %s", got)
	}
	if d.String() != "0" {
		t.Fatalf("zero string: %s", d.String())
	}
}

func TestFloat64(t *testing.T) {
	if got := MustParse("0.035").Float64(); got < 0.0349999 || got > 0.0350001 {
		t.Fatalf("got %v", got)
	}
	if got := MustParse("1.0175").Float64(); got < 1.0174999 || got > 1.0175001 {
		t.Fatalf("got %v", got)
	}
	var zero Decimal
	if got := zero.Float64(); got != 0 {
		t.Fatalf("got %v", got)
	}
}
