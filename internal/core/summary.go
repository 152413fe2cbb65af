package core

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Summary holds the session totals and the sanity sums over a ledger.
type Summary struct {
	TotalCourtCost     decimal.Decimal
	TotalDrinksCost    decimal.Decimal
	GrandTotal         decimal.Decimal
	SumOwed            decimal.Decimal
	SumContributed     decimal.Decimal
	SumNet             decimal.Decimal
	PresentCount       int
	TotalPlayedMinutes int
}

// Input is everything one calculation needs.
type Input struct {
	Booking      BookingCost
	Participants []Participant
	Drinks       DrinksCost
	BookerID     string
}

// Result is the outcome of one calculation.
type Result struct {
	Rows      []LedgerRow
	Transfers []Transfer
	Summary   Summary
	// Unsettled lists adjusted balances left outside tolerance after the transfers.
	Unsettled []Balance
	// Warning is a *BalanceMismatchError when the ledger does not balance, nil otherwise.
	Warning error
}

// Summarize computes totals over rows produced by ComputeLedger.
func Summarize(booking BookingCost, drinksTotal decimal.Decimal, rows []LedgerRow) Summary {
	s := Summary{
		TotalCourtCost:  booking.TotalCourtCost(),
		TotalDrinksCost: Round(drinksTotal),
	}
	s.GrandTotal = Round(s.TotalCourtCost.Add(s.TotalDrinksCost))
	for _, r := range rows {
		s.SumOwed = s.SumOwed.Add(r.TotalOwed)
		s.SumContributed = s.SumContributed.Add(r.TotalContributed)
		s.SumNet = s.SumNet.Add(r.NetBalance)
		if r.MinutesPlayed > 0 {
			s.PresentCount++
			s.TotalPlayedMinutes += r.MinutesPlayed
		}
	}
	s.SumOwed = Round(s.SumOwed)
	s.SumContributed = Round(s.SumContributed)
	s.SumNet = Round(s.SumNet)
	return s
}

// Calculate runs the allocation engine and the settlement planner on in.
// Fatal allocation errors are returned as is; a balance mismatch is reported
// through Result.Warning and does not fail the calculation.
func Calculate(in Input) (Result, error) {
	rows, err := ComputeLedger(in.Booking, in.Participants, in.Drinks, in.BookerID)
	if err != nil {
		return Result{}, err
	}

	balances := BalancesOf(rows)
	transfers := PlanBalances(balances)
	res := Result{
		Rows:      rows,
		Transfers: transfers,
		Summary:   Summarize(in.Booking, DrinksTotal(in.Participants, in.Drinks), rows),
	}

	if err := CheckBalance(balances, transfers); err != nil {
		res.Warning = err
		var mismatch *BalanceMismatchError
		if errors.As(err, &mismatch) {
			res.Unsettled = mismatch.Unsettled
		}
	}
	return res, nil
}
