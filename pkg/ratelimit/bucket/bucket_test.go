package bucket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/national-talent-atm/data-retrieval/internal/testutil"
	"github.com/national-talent-atm/data-retrieval/pkg/common/errors"
	"github.com/national-talent-atm/data-retrieval/pkg/metrics"
)

func newTestLimiter(t *testing.T, rate Limit, burst int) (Limiter, *testutil.MockClock) {
	t.Helper()
	clock := testutil.NewMockClock(time.Time{})
	lim, err := NewWithConfigSafe(Config{Rate: rate, Burst: burst, Clock: clock, InitialTokens: -1})
	testutil.AssertNoError(t, err)
	return lim, clock
}

func TestNewSafeValidation(t *testing.T) {
	tests := []struct {
		name    string
		rate    Limit
		burst   int
		wantErr bool
	}{
		{"valid", 10, 5, false},
		{"zero rate", 0, 5, false},
		{"infinite rate", Inf, 1, false},
		{"negative rate", -1, 5, true},
		{"zero burst", 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lim, err := NewSafe(tt.rate, tt.burst)
			if tt.wantErr {
				testutil.AssertErrorIs(t, err, errors.ErrInvalidConfiguration)
				testutil.AssertEqual(t, errors.IsValidationError(err), true)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, lim.Limit(), tt.rate)
			testutil.AssertEqual(t, lim.Burst(), tt.burst)
			testutil.AssertEqual(t, lim.Tokens(), float64(tt.burst))
		})
	}
}

func TestEvery(t *testing.T) {
	testutil.AssertEqual(t, Every(100*time.Millisecond), Limit(10))
	testutil.AssertEqual(t, Every(2*time.Second), Limit(0.5))
	testutil.AssertEqual(t, Every(0), Inf)
}

func TestAllowRefillsOverTime(t *testing.T) {
	lim, clock := newTestLimiter(t, 10, 3)

	for i := 0; i < 3; i++ {
		testutil.AssertEqual(t, lim.Allow(), true)
	}
	testutil.AssertEqual(t, lim.Allow(), false)

	clock.Advance(100 * time.Millisecond)
	testutil.AssertEqual(t, lim.Allow(), true)
	testutil.AssertEqual(t, lim.Allow(), false)

	clock.Advance(time.Hour)
	testutil.AssertEqual(t, lim.Tokens(), 3.0)
}

func TestAllowN(t *testing.T) {
	lim, _ := newTestLimiter(t, 1, 5)

	testutil.AssertEqual(t, lim.AllowN(4), true)
	testutil.AssertEqual(t, lim.AllowN(2), false)
	testutil.AssertEqual(t, lim.AllowN(1), true)
	testutil.AssertEqual(t, lim.AllowN(0), true)
}

func TestReserveGoesIntoDebt(t *testing.T) {
	lim, clock := newTestLimiter(t, 10, 1)

	r1 := lim.Reserve()
	testutil.AssertEqual(t, r1.OK(), true)
	testutil.AssertEqual(t, r1.Delay(), time.Duration(0))

	r2 := lim.Reserve()
	testutil.AssertEqual(t, r2.OK(), true)
	testutil.AssertEqual(t, r2.Delay(), 100*time.Millisecond)

	r3 := lim.Reserve()
	testutil.AssertEqual(t, r3.Delay(), 200*time.Millisecond)

	clock.Advance(150 * time.Millisecond)
	testutil.AssertEqual(t, r3.Delay(), 50*time.Millisecond)
}

func TestReservationCancelRefunds(t *testing.T) {
	lim, _ := newTestLimiter(t, 10, 2)

	r := lim.ReserveN(2)
	testutil.AssertEqual(t, r.OK(), true)
	testutil.AssertEqual(t, lim.Allow(), false)

	r.Cancel()
	testutil.AssertEqual(t, lim.Tokens(), 2.0)
}

func TestPacerSpacesEvents(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	lim, err := NewWithConfigSafe(Config{Rate: Every(100 * time.Millisecond), Burst: 1, InitialTokens: 1, Clock: clock})
	testutil.AssertNoError(t, err)

	var delays []time.Duration
	for i := 0; i < 4; i++ {
		delays = append(delays, lim.Reserve().Delay())
	}
	testutil.AssertSliceEqual(t, delays, []time.Duration{
		0, 100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond,
	})
}

func TestNewPacerValidation(t *testing.T) {
	_, err := NewPacer(0, "scopus", nil)
	testutil.AssertErrorIs(t, err, errors.ErrInvalidConfiguration)

	lim, err := NewPacer(100*time.Millisecond, "scopus", nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, lim.Burst(), 1)
	testutil.AssertEqual(t, lim.Limit(), Limit(10))
}

func TestWaitBlocksForNextToken(t *testing.T) {
	lim, err := NewSafe(Every(30*time.Millisecond), 1)
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	start := time.Now()
	testutil.AssertNoError(t, lim.Wait(ctx))
	testutil.AssertNoError(t, lim.Wait(ctx))
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("second Wait returned after %v, want about 30ms", elapsed)
	}
}

func TestWaitRespectsDeadline(t *testing.T) {
	lim, err := NewSafe(Every(time.Second), 1)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, lim.Allow(), true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// the token is a second away, so Wait fails without sleeping
	start := time.Now()
	err = lim.Wait(ctx)
	testutil.AssertErrorIs(t, err, context.DeadlineExceeded)
	if time.Since(start) > 15*time.Millisecond {
		t.Error("Wait slept although the deadline could not be met")
	}
	testutil.AssertEqual(t, lim.Tokens() < 1, true)
}

func TestWaitCancelledReturnsTokens(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	lim, err := NewWithConfigSafe(Config{Rate: 10, Burst: 1, InitialTokens: 0, Clock: clock})
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lim.Wait(ctx) }()

	testutil.Eventually(t, func() bool { return lim.Tokens() < 0 }, time.Second, time.Millisecond)
	cancel()
	testutil.AssertErrorIs(t, <-done, context.Canceled)
	testutil.AssertEqual(t, lim.Tokens(), 0.0)
}

func TestWaitNBeyondBurst(t *testing.T) {
	lim, _ := newTestLimiter(t, 10, 2)
	err := lim.WaitN(context.Background(), 3)
	testutil.AssertErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitRecordsMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	lim, err := NewWithConfigSafe(Config{Rate: Inf, Burst: 1, Name: "scopus", Metrics: reg})
	testutil.AssertNoError(t, err)

	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, lim.Wait(context.Background()))
	}
	testutil.AssertEqual(t, promtest.CollectAndCount(reg.RateLimitWaitTime), 1)
}

func TestInfiniteAndZeroRate(t *testing.T) {
	inf, _ := newTestLimiter(t, Inf, 1)
	for i := 0; i < 100; i++ {
		if !inf.Allow() {
			t.Fatal("infinite rate denied an event")
		}
	}

	zero, clock := newTestLimiter(t, 0, 2)
	testutil.AssertEqual(t, zero.AllowN(2), true)
	clock.Advance(time.Hour)
	testutil.AssertEqual(t, zero.Allow(), false)
	testutil.AssertEqual(t, zero.Reserve().OK(), false)
}

func TestSetLimitAndBurst(t *testing.T) {
	lim, clock := newTestLimiter(t, 1, 4)
	testutil.AssertEqual(t, lim.AllowN(4), true)

	lim.SetLimit(20)
	clock.Advance(100 * time.Millisecond)
	testutil.AssertEqual(t, lim.Tokens(), 2.0)

	lim.SetBurst(1)
	testutil.AssertEqual(t, lim.Tokens(), 1.0)
	testutil.AssertEqual(t, lim.Burst(), 1)
}

func TestConcurrentAllow(t *testing.T) {
	lim, _ := newTestLimiter(t, 0, 50)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if lim.Allow() {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	testutil.AssertEqual(t, allowed, 50)
}
