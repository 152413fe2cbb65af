package core

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func minor(cents int64) decimal.Decimal { return decimal.New(cents, -Places) }

func balances(amounts ...string) []Balance {
	out := make([]Balance, len(amounts))
	for i, a := range amounts {
		out[i] = Balance{ParticipantID: fmt.Sprintf("p%d", i+1), Amount: dec(a)}
	}
	return out
}

func mismatchOf(t *testing.T, err error) *BalanceMismatchError {
	t.Helper()
	var mismatch *BalanceMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *BalanceMismatchError, got %v", err)
	}
	return mismatch
}

func TestPlanBalances_KeepsInputOrder(t *testing.T) {
	// Sorting by magnitude would pair p4 with p2 first.
	transfers := PlanBalances(balances("30", "100", "-50", "-80"))
	if len(transfers) != 3 {
		t.Fatalf("expected 3 transfers, got %d: %+v", len(transfers), transfers)
	}

	want := []struct{ from, to, amount string }{
		{"p3", "p1", "30.00"},
		{"p3", "p2", "20.00"},
		{"p4", "p2", "80.00"},
	}
	for i, w := range want {
		tr := transfers[i]
		if tr.FromParticipantID != w.from || tr.ToParticipantID != w.to || Format(tr.Amount) != w.amount {
			t.Errorf("transfer %d: got %s -> %s %s, want %s -> %s %s",
				i, tr.FromParticipantID, tr.ToParticipantID, Format(tr.Amount), w.from, w.to, w.amount)
		}
	}
}

func TestPlanBalances_NothingToSettle(t *testing.T) {
	cases := map[string][]Balance{
		"nil":             nil,
		"below threshold": balances("0", "0.004", "-0.005"),
		"only creditors":  balances("10", "5"),
	}
	for name, bs := range cases {
		if got := PlanBalances(bs); len(got) != 0 {
			t.Errorf("%s: expected no transfers, got %+v", name, got)
		}
	}
}

func TestPlanBalances_AppliedTransfersSettleEveryone(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for iter := 0; iter < 300; iter++ {
		n := 2 + rng.IntN(12)
		bs := make([]Balance, n)
		var sum int64
		for i := 0; i < n-1; i++ {
			cents := rng.Int64N(200001) - 100000
			sum += cents
			bs[i] = Balance{ParticipantID: fmt.Sprintf("p%d", i), Amount: minor(cents)}
		}
		bs[n-1] = Balance{ParticipantID: fmt.Sprintf("p%d", n-1), Amount: minor(-sum)}

		var creditors, debtors int
		for _, b := range bs {
			switch {
			case b.Amount.GreaterThan(settleThreshold):
				creditors++
			case b.Amount.LessThan(settleThreshold.Neg()):
				debtors++
			}
		}

		transfers := PlanBalances(bs)
		if creditors > 0 && debtors > 0 {
			if len(transfers) > creditors+debtors-1 {
				t.Errorf("iteration %d: %d transfers for %d creditors and %d debtors", iter, len(transfers), creditors, debtors)
			}
		} else if len(transfers) != 0 {
			t.Errorf("iteration %d: one-sided balances produced %d transfers", iter, len(transfers))
		}
		for _, tr := range transfers {
			if !tr.Amount.IsPositive() || tr.FromParticipantID == tr.ToParticipantID {
				t.Fatalf("iteration %d: bad transfer %+v", iter, tr)
			}
		}

		for _, b := range ApplyTransfers(bs, transfers) {
			if !withinTolerance(b.Amount, rowTolerance) {
				t.Errorf("iteration %d: %s left with %s", iter, b.ParticipantID, b.Amount)
			}
		}
		if err := CheckBalance(bs, transfers); err != nil {
			t.Errorf("iteration %d: %v", iter, err)
		}
	}
}

func TestApplyTransfers(t *testing.T) {
	bs := balances("100", "-60", "-40")
	out := ApplyTransfers(bs, []Transfer{
		{FromParticipantID: "p2", ToParticipantID: "p1", Amount: dec("60")},
		{FromParticipantID: "p3", ToParticipantID: "p1", Amount: dec("40")},
	})
	for _, b := range out {
		if !b.Amount.IsZero() {
			t.Errorf("%s: residual %s", b.ParticipantID, b.Amount)
		}
	}
	// input untouched
	if got := Format(bs[0].Amount); got != "100.00" {
		t.Errorf("input mutated: %s", got)
	}
}

func TestCheckBalance(t *testing.T) {
	t.Run("within tolerance", func(t *testing.T) {
		bs := balances("66.67", "-33.33", "-33.33")
		if err := CheckBalance(bs, PlanBalances(bs)); err != nil {
			t.Fatalf("unexpected mismatch: %v", err)
		}
	})

	t.Run("sum outside tolerance", func(t *testing.T) {
		bs := balances("100", "-60")
		err := CheckBalance(bs, PlanBalances(bs))
		if !errors.Is(err, ErrBalanceMismatch) {
			t.Fatalf("expected ErrBalanceMismatch, got %v", err)
		}

		mismatch := mismatchOf(t, err)
		if Format(mismatch.Sum) != "40.00" || Format(mismatch.Tolerance) != "0.02" {
			t.Errorf("sum %s tolerance %s", mismatch.Sum, mismatch.Tolerance)
		}
		if len(mismatch.Unsettled) != 1 {
			t.Fatalf("expected one unsettled balance, got %+v", mismatch.Unsettled)
		}
		if u := mismatch.Unsettled[0]; u.ParticipantID != "p1" || Format(u.Amount) != "40.00" {
			t.Errorf("unexpected residual %+v", u)
		}
		if !strings.Contains(err.Error(), "balances sum to 40.00") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("rounding drift left on one participant", func(t *testing.T) {
		bs := balances("100.00", "-50.00", "-50.02")
		mismatch := mismatchOf(t, CheckBalance(bs, PlanBalances(bs)))
		if Format(mismatch.Sum) != "-0.02" {
			t.Errorf("sum %s, want -0.02", Format(mismatch.Sum))
		}
		if len(mismatch.Unsettled) != 1 {
			t.Fatalf("expected one unsettled balance, got %+v", mismatch.Unsettled)
		}
		if u := mismatch.Unsettled[0]; u.ParticipantID != "p3" || Format(u.Amount) != "-0.02" {
			t.Errorf("unexpected residual %+v", u)
		}
	})

	t.Run("one cent left is settled", func(t *testing.T) {
		bs := balances("100.00", "-50.00", "-50.01")
		if err := CheckBalance(bs, PlanBalances(bs)); err != nil {
			t.Fatalf("unexpected mismatch: %v", err)
		}
	})

	t.Run("transfers that do not settle", func(t *testing.T) {
		mismatch := mismatchOf(t, CheckBalance(balances("50", "-50"), nil))
		if !mismatch.Sum.IsZero() {
			t.Errorf("sum %s, want 0", mismatch.Sum)
		}
		if len(mismatch.Unsettled) != 2 {
			t.Errorf("expected both participants unsettled, got %+v", mismatch.Unsettled)
		}
	})
}

func TestTolerance(t *testing.T) {
	cases := map[int]string{0: "0.01", 1: "0.01", 7: "0.07"}
	for n, want := range cases {
		if got := Tolerance(n); !got.Equal(dec(want)) {
			t.Errorf("Tolerance(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestCalculate_RandomSessionsBalance(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 2024))
	policies := []SplitPolicy{EqualAmongPresent, ProportionalByMinutes}

	for iter := 0; iter < 200; iter++ {
		booking := BookingCost{
			Courts:        1 + rng.IntN(3),
			DurationHours: minor(int64(25 * (1 + rng.IntN(12)))),
			HourlyRate:    minor(1000 + rng.Int64N(90000)),
		}
		session := booking.SessionMinutes()

		n := 1 + rng.IntN(10)
		ps := make([]Participant, n)
		for i := range ps {
			ps[i] = Participant{ID: fmt.Sprintf("p%d", i), MinutesPlayed: rng.IntN(session + 1)}
		}
		ps[0].MinutesPlayed = session

		drinks := DrinksCost{
			Total:   minor(rng.Int64N(50000)),
			Policy:  policies[rng.IntN(len(policies))],
			Model:   SingleDesignatedPayer,
			PayerID: "p0",
		}
		booker := ps[rng.IntN(n)].ID

		res, err := Calculate(Input{Booking: booking, Participants: ps, Drinks: drinks, BookerID: booker})
		if err != nil {
			t.Fatalf("iteration %d: %v", iter, err)
		}

		tol := Tolerance(n)
		s := res.Summary
		// Drift beyond a cent cannot be planned away and lands on the last
		// participant of the unexhausted side.
		if withinTolerance(s.SumNet, rowTolerance) {
			if res.Warning != nil {
				t.Errorf("iteration %d: unexpected warning %v", iter, res.Warning)
			}
		} else {
			if !errors.Is(res.Warning, ErrBalanceMismatch) {
				t.Errorf("iteration %d: net %s but no mismatch warning", iter, s.SumNet)
			}
			for _, u := range res.Unsettled {
				if !withinTolerance(u.Amount, s.SumNet.Abs()) {
					t.Errorf("iteration %d: residual %s exceeds net drift %s", iter, u.Amount, s.SumNet)
				}
			}
		}
		if !withinTolerance(s.SumOwed.Sub(s.GrandTotal), tol) {
			t.Errorf("iteration %d: owed %s vs grand total %s", iter, s.SumOwed, s.GrandTotal)
		}
		if !s.SumContributed.Equal(s.GrandTotal) {
			t.Errorf("iteration %d: contributed %s vs grand total %s", iter, s.SumContributed, s.GrandTotal)
		}
		if !withinTolerance(s.SumNet, tol) {
			t.Errorf("iteration %d: net %s outside %s", iter, s.SumNet, tol)
		}

		courtSum := decimal.Zero
		for _, r := range res.Rows {
			if r.MinutesPlayed == 0 && !r.TotalOwed.IsZero() {
				t.Errorf("iteration %d: %s played 0 minutes but owes %s", iter, r.ParticipantID, r.TotalOwed)
			}
			courtSum = courtSum.Add(r.CourtShare)
		}
		if !withinTolerance(courtSum.Sub(s.TotalCourtCost), tol) {
			t.Errorf("iteration %d: court shares %s vs %s", iter, courtSum, s.TotalCourtCost)
		}
	}
}
