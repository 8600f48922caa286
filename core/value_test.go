package core

import "testing"

/*
	--------------------------------------------------------------------
	Dimension-safe arithmetic
	--------------------------------------------------------------------
*/

func TestAdd_DimensionMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		a, b    TaggedValue
		wantErr ErrorKind
		wantNum float64
	}{
		{name: "same dim adds", a: Money(10), b: Money(5), wantNum: 15},
		{name: "mismatched dims reject", a: Money(10), b: Mass(5), wantErr: KindDimensionError},
		{name: "mismatched units reject", a: TaggedValue{Dim: DimDistance, Unit: "m", Num: 1}, b: TaggedValue{Dim: DimDistance, Unit: "ft", Num: 1}, wantErr: KindDimensionError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Add(tc.a, tc.b)
			if tc.wantErr != "" {
				if !got.IsError() || got.ErrKind() != tc.wantErr {
					t.Fatalf("Add() = %v, want error %s", got, tc.wantErr)
				}
				return
			}
			if got.IsError() {
				t.Fatalf("Add() unexpected error: %v", got)
			}
			if got.Num != tc.wantNum {
				t.Errorf("Add() = %g, want %g", got.Num, tc.wantNum)
			}
		})
	}
}

func TestMul_DimensionlessOperandRule(t *testing.T) {
	t.Parallel()

	got := Mul(Money(10), Real(3))
	if got.IsError() || got.Dim != DimMoney || got.Num != 30 {
		t.Fatalf("Mul(Money,Real) = %v, want Money(30)", got)
	}

	if got := Mul(Money(10), Mass(3)); !got.IsError() || got.ErrKind() != KindDimensionError {
		t.Fatalf("Mul(Money,Mass) = %v, want dim_mismatch", got)
	}
}

func TestDiv_SameDimensionYieldsRatio(t *testing.T) {
	t.Parallel()

	got := Div(Money(30), Money(10))
	if got.IsError() || got.Dim != DimRatio || got.Num != 3 {
		t.Fatalf("Div(Money,Money) = %v, want Ratio(3)", got)
	}
}

func TestDiv_NearZeroDenominatorIsDivisionByZero(t *testing.T) {
	t.Parallel()

	got := Div(Real(1), Real(0))
	if !got.IsError() || got.ErrKind() != KindDivisionByZero {
		t.Fatalf("Div(1,0) = %v, want division_by_zero", got)
	}
}

func TestDivEps_WidenedToleranceRejectsSmallDenominators(t *testing.T) {
	t.Parallel()

	got := divEps(Real(1), Real(0.0001), 1e-3)
	if !got.IsError() || got.ErrKind() != KindDivisionByZero {
		t.Fatalf("divEps(1, 0.0001, 1e-3) = %v, want division_by_zero", got)
	}
	if got := divEps(Real(1), Real(0.0001), 1e-9); got.IsError() {
		t.Fatalf("divEps(1, 0.0001, 1e-9) = %v, want a clean quotient", got)
	}
}

func TestNormalizeCountEps_ToleranceGovernsIntegrality(t *testing.T) {
	t.Parallel()

	nearWhole := TaggedValue{Dim: DimCount, Num: 6.0001}
	if got := normalizeCountEps(nearWhole, 1e-3); got.IsError() {
		t.Fatalf("normalizeCountEps(6.0001, 1e-3) = %v, want Count accepted within tolerance", got)
	}
	if got := normalizeCountEps(nearWhole, 1e-9); !got.IsError() || got.ErrKind() != KindCountNotInteger {
		t.Fatalf("normalizeCountEps(6.0001, 1e-9) = %v, want count_not_integral", got)
	}
}

func TestConstruct_RejectsNonFinite(t *testing.T) {
	t.Parallel()

	got := Construct(DimReal, posInf())
	if !got.IsError() || got.ErrKind() != KindNaN {
		t.Fatalf("Construct(+Inf) = %v, want nan", got)
	}
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}

func TestNormalizeCount_RejectsFractional(t *testing.T) {
	t.Parallel()

	frac := Mul(Count(1), Real(1.0/3.0))
	if !frac.IsError() || frac.ErrKind() != KindCountNotInteger {
		t.Fatalf("Mul(Count(1), 1/3) = %v, want count_not_integral", frac)
	}

	whole := Mul(Count(2), Real(3))
	if whole.IsError() || whole.Dim != DimCount || whole.Num != 6 {
		t.Fatalf("Mul(Count(2), Real(3)) = %v, want Count(6)", whole)
	}
}

/*
	--------------------------------------------------------------------
	RatioCheck signals
	--------------------------------------------------------------------
*/

func TestRatioCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		f, g       float64
		threshold  float64
		wantSignal RatioSignal
	}{
		{name: "within threshold", f: 5, g: 10, threshold: 0.75, wantSignal: RatioOK},
		{name: "exceeds threshold", f: 9, g: 10, threshold: 0.75, wantSignal: RatioExceeds},
		{name: "undefined denominator", f: 5, g: 0, threshold: 0.75, wantSignal: RatioUndefined},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, signal := RatioCheck(tc.f, tc.g, tc.threshold, defaultRatioEpsilon)
			if signal != tc.wantSignal {
				t.Errorf("RatioCheck() signal = %v, want %v", signal, tc.wantSignal)
			}
		})
	}
}
