package utils_test

import (
	"fmt"
	"lipsync-backend/internal/utils"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunInPool(t *testing.T) {
	worker := func(i int) (string, error) {
		if i%4 == 3 {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return "", fmt.Errorf("error")
		}
		return fmt.Sprintf("%d-%d", i, i), nil
	}

	inputs := make([]int, 10)
	for i := range inputs {
		inputs[i] = i
	}

	success, errors := 0, 0
	for result := range utils.RunInPool(worker, inputs, 5) {
		if result.Error != nil {
			errors++
		} else {
			success++
			if result.Result != fmt.Sprintf("%d-%d", result.Input, result.Input) {
				t.Fatalf("result %q does not match input %d", result.Result, result.Input)
			}
		}
	}

	if success != 8 || errors != 2 {
		t.Fatal("invalid results")
	}
}

func TestRunInPoolLimitsWorkers(t *testing.T) {
	var active, peak atomic.Int32
	worker := func(i int) (int, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return i, nil
	}

	count := 0
	for range utils.RunInPool(worker, make([]int, 20), 3) {
		count++
	}

	if count != 20 {
		t.Fatalf("expected 20 results, got %d", count)
	}
	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 concurrent workers, saw %d", peak.Load())
	}
}

func TestRunInPoolEmpty(t *testing.T) {
	for range utils.RunInPool(func(i int) (int, error) { return i, nil }, nil, 4) {
		t.Fatal("expected no results")
	}
}
