package exits

import (
	"testing"
)

func TestExitEvaluator_NoExit(t *testing.T) {
	evaluator := NewExitEvaluator(DefaultExitConfig())

	result := evaluator.EvaluateExit(ExitInputs{
		Symbol:       "AAPL",
		EntryPrice:   100.0,
		PeakPrice:    100.0,
		CurrentPrice: 98.5, // within the 2% stop
	})

	if result.ShouldExit {
		t.Errorf("Expected no exit, but got exit recommendation: %s", result.TriggeredBy)
	}
	if result.ExitReason != NoExit {
		t.Errorf("Expected NoExit reason, got %s", result.ExitReason.String())
	}
	if result.PeakPrice != 100.0 {
		t.Errorf("Expected peak to stay at 100, got %.4f", result.PeakPrice)
	}
}

func TestExitEvaluator_HardStopTriggered(t *testing.T) {
	evaluator := NewExitEvaluator(DefaultExitConfig())

	result := evaluator.EvaluateExit(ExitInputs{
		Symbol:       "AAPL",
		EntryPrice:   100.0,
		PeakPrice:    100.0,
		CurrentPrice: 97.99,
	})

	if !result.ShouldExit {
		t.Error("Expected exit due to hard stop")
	}
	if result.ExitReason != HardStop {
		t.Errorf("Expected HardStop reason, got %s", result.ExitReason.String())
	}
}

func TestExitEvaluator_HardStopBoundaryIsStrict(t *testing.T) {
	evaluator := NewExitEvaluator(DefaultExitConfig())

	// exactly entry*(1-0.02) does not trigger
	result := evaluator.EvaluateExit(ExitInputs{Symbol: "AAPL", EntryPrice: 100.0, PeakPrice: 100.0, CurrentPrice: 98.0})
	if result.ShouldExit {
		t.Errorf("Expected no exit at the stop price, got %s", result.ExitReason)
	}
}

func TestExitEvaluator_TrailingStopAboveEntry(t *testing.T) {
	evaluator := NewExitEvaluator(DefaultExitConfig())

	// rally to a new peak
	result := evaluator.EvaluateExit(ExitInputs{Symbol: "AAPL", EntryPrice: 100.0, PeakPrice: 100.0, CurrentPrice: 120.0})
	if result.ShouldExit {
		t.Fatalf("Expected no exit on a new high, got %s", result.ExitReason)
	}
	if result.PeakPrice != 120.0 {
		t.Fatalf("Expected peak 120, got %.4f", result.PeakPrice)
	}

	// give back more than 5% from the peak while still above entry
	result = evaluator.EvaluateExit(ExitInputs{Symbol: "AAPL", EntryPrice: 100.0, PeakPrice: result.PeakPrice, CurrentPrice: 113.99})
	if !result.ShouldExit {
		t.Fatal("Expected exit due to trailing stop")
	}
	if result.ExitReason != TrailingStop {
		t.Errorf("Expected TrailingStop reason, got %s", result.ExitReason.String())
	}
	if result.PeakPrice != 120.0 {
		t.Errorf("Peak must not move on a down day, got %.4f", result.PeakPrice)
	}
}

func TestExitEvaluator_HardStopTakesPrecedence(t *testing.T) {
	evaluator := NewExitEvaluator(DefaultExitConfig())

	// both the fixed stop (98) and the trail (95) are crossed
	result := evaluator.EvaluateExit(ExitInputs{Symbol: "AAPL", EntryPrice: 100.0, PeakPrice: 100.0, CurrentPrice: 90.0})
	if result.ExitReason != HardStop {
		t.Errorf("Expected HardStop precedence, got %s", result.ExitReason.String())
	}
}

func TestExitEvaluator_PeakNeverDecreases(t *testing.T) {
	evaluator := NewExitEvaluator(&ExitConfig{}) // stops disabled, only tracking

	prices := []float64{101, 99, 105, 104, 110, 50, 111}
	peak := 100.0
	for _, p := range prices {
		result := evaluator.EvaluateExit(ExitInputs{Symbol: "X", EntryPrice: 100, PeakPrice: peak, CurrentPrice: p})
		if result.PeakPrice < peak {
			t.Fatalf("Peak decreased from %.2f to %.2f at price %.2f", peak, result.PeakPrice, p)
		}
		if result.ShouldExit {
			t.Fatalf("Disabled stops must not trigger, got %s", result.ExitReason)
		}
		peak = result.PeakPrice
	}
	if peak != 111 {
		t.Errorf("Expected final peak 111, got %.2f", peak)
	}
}

func TestExitEvaluator_SameFormulaForShorts(t *testing.T) {
	evaluator := NewExitEvaluator(DefaultExitConfig())

	// a short entered at 100 is stopped out below 98, not above 102
	result := evaluator.EvaluateExit(ExitInputs{Symbol: "TSLA", EntryPrice: 100.0, PeakPrice: 100.0, CurrentPrice: 97.0})
	if result.ExitReason != HardStop {
		t.Errorf("Expected hard stop below 98, got %s", result.ExitReason)
	}

	result = evaluator.EvaluateExit(ExitInputs{Symbol: "TSLA", EntryPrice: 100.0, PeakPrice: 100.0, CurrentPrice: 103.0})
	if result.ShouldExit {
		t.Errorf("Expected no exit on a rise, got %s", result.ExitReason)
	}
	if result.PeakPrice != 103.0 {
		t.Errorf("Expected peak 103, got %.2f", result.PeakPrice)
	}
}

func TestExitReasonString(t *testing.T) {
	cases := map[ExitReason]string{
		NoExit:         "no_exit",
		HardStop:       "hard_stop",
		TrailingStop:   "trailing_stop",
		ExitReason(42): "unknown",
	}
	for reason, want := range cases {
		if reason.String() != want {
			t.Errorf("Expected %s, got %s", want, reason.String())
		}
	}
}
