package oracle_test

import (
	"errors"
	"testing"

	fpmath "TroveLedger/internal/math"
	"TroveLedger/internal/oracle"
)

func TestCollateralValue(t *testing.T) {
	// 2.5 tokens at 8 decimals, price 30_000 micro-USD per token unit scaled
	// by 10^8: value = 250_000_000 * 30_000 / 10^8 = 75_000.
	got, err := oracle.CollateralValue(250_000_000, 30_000, 8)
	if err != nil {
		t.Fatalf("CollateralValue: %v", err)
	}
	if got != 75_000 {
		t.Fatalf("CollateralValue = %d, want 75000", got)
	}

	// Floor: 1 * 1 / 10 == 0
	got, err = oracle.CollateralValue(1, 1, 1)
	if err != nil || got != 0 {
		t.Fatalf("CollateralValue floor = %d, %v, want 0", got, err)
	}

	if _, err := oracle.CollateralValue(1, 1, 20); !errors.Is(err, fpmath.ErrInvalidDecimal) {
		t.Fatalf("expected ErrInvalidDecimal, got %v", err)
	}
}

func TestCollateralRatio(t *testing.T) {
	// value == debt means exactly 100% => 1_000_000 ratio units.
	got, err := oracle.CollateralRatio(500, 500)
	if err != nil || got != 1_000_000 {
		t.Fatalf("CollateralRatio(500,500) = %d, %v, want 1000000", got, err)
	}

	// 110% is the liquidation threshold.
	got, err = oracle.CollateralRatio(110, 100)
	if err != nil || got != oracle.LiquidationThresholdRatio {
		t.Fatalf("CollateralRatio(110,100) = %d, %v, want %d", got, err, oracle.LiquidationThresholdRatio)
	}

	if _, err := oracle.CollateralRatio(100, 0); !errors.Is(err, fpmath.ErrDivideByZero) {
		t.Fatalf("expected ErrDivideByZero on zero debt, got %v", err)
	}
}

func TestAdjustedDecimal(t *testing.T) {
	// 8 token decimals, price quoted at 10^-2: adjusted = 8 + 2 - 6 = 4.
	got, err := oracle.AdjustedDecimal(8, 2)
	if err != nil || got != 4 {
		t.Fatalf("AdjustedDecimal(8,2) = %d, %v, want 4", got, err)
	}

	// Going below zero is not representable.
	if _, err := oracle.AdjustedDecimal(2, 1); !errors.Is(err, fpmath.ErrInvalidDecimal) {
		t.Fatalf("expected ErrInvalidDecimal, got %v", err)
	}
}
