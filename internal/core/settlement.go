package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceMismatchError reports balances that the planner could not settle within
// tolerance. It is advisory: the transfers it accompanies are still usable.
type BalanceMismatchError struct {
	Sum       decimal.Decimal // sum of input balances
	Tolerance decimal.Decimal
	Unsettled []Balance // adjusted balances outside tolerance
}

func (e *BalanceMismatchError) Error() string {
	return fmt.Sprintf("balance mismatch: balances sum to %s (tolerance %s), %d participant(s) unsettled",
		Format(e.Sum), Format(e.Tolerance), len(e.Unsettled))
}

func (e *BalanceMismatchError) Unwrap() error { return ErrBalanceMismatch }

// BalancesOf extracts the signed net balances from ledger rows, preserving order.
func BalancesOf(rows []LedgerRow) []Balance {
	out := make([]Balance, len(rows))
	for i, r := range rows {
		out[i] = Balance{ParticipantID: r.ParticipantID, Amount: r.NetBalance}
	}
	return out
}

// PlanSettlement returns the transfers that settle the given ledger.
func PlanSettlement(rows []LedgerRow) []Transfer {
	return PlanBalances(BalancesOf(rows))
}

type position struct {
	id        string
	remaining decimal.Decimal
}

// PlanBalances pairs debtors with creditors greedily, in input order.
//
// Creditors (balance > 0.005) and debtors (balance < -0.005) keep their
// original order; they are not sorted by magnitude. Each step moves
// round(min(creditor, debtor)) from the current debtor to the current creditor.
// The result has at most creditors+debtors-1 transfers, each strictly positive.
// If the balances do not sum to zero the walk stops when one side runs out and
// the rest stays unsettled; see CheckBalance.
func PlanBalances(balances []Balance) []Transfer {
	var creditors, debtors []position
	for _, b := range balances {
		switch {
		case b.Amount.GreaterThan(settleThreshold):
			creditors = append(creditors, position{id: b.ParticipantID, remaining: b.Amount})
		case b.Amount.LessThan(settleThreshold.Neg()):
			debtors = append(debtors, position{id: b.ParticipantID, remaining: b.Amount.Neg()})
		}
	}

	var transfers []Transfer
	ci, di := 0, 0
	for ci < len(creditors) && di < len(debtors) {
		c, d := &creditors[ci], &debtors[di]
		pay := Round(decimal.Min(c.remaining, d.remaining))
		if pay.IsPositive() {
			transfers = append(transfers, Transfer{
				FromParticipantID: d.id,
				ToParticipantID:   c.id,
				Amount:            pay,
			})
			c.remaining = Round(c.remaining.Sub(pay))
			d.remaining = Round(d.remaining.Sub(pay))
		}
		if c.remaining.LessThanOrEqual(settleThreshold) {
			ci++
		}
		if d.remaining.LessThanOrEqual(settleThreshold) {
			di++
		}
	}
	return transfers
}

// ApplyTransfers returns the balances left after every transfer is applied:
// the payer's balance rises by the amount and the receiver's falls by it.
func ApplyTransfers(balances []Balance, transfers []Transfer) []Balance {
	idx := make(map[string]int, len(balances))
	out := make([]Balance, len(balances))
	for i, b := range balances {
		out[i] = b
		idx[b.ParticipantID] = i
	}
	for _, t := range transfers {
		if i, ok := idx[t.FromParticipantID]; ok {
			out[i].Amount = out[i].Amount.Add(t.Amount)
		}
		if i, ok := idx[t.ToParticipantID]; ok {
			out[i].Amount = out[i].Amount.Sub(t.Amount)
		}
	}
	return out
}

// Tolerance is the aggregate rounding drift allowed for n ledger rows.
func Tolerance(n int) decimal.Decimal {
	if n < 1 {
		n = 1
	}
	return rowTolerance.Mul(decimal.NewFromInt(int64(n)))
}

// CheckBalance verifies that the balances sum to zero within
// Tolerance(len(balances)) and that the transfers leave every participant
// within one cent of zero. It returns a *BalanceMismatchError otherwise.
func CheckBalance(balances []Balance, transfers []Transfer) error {
	tol := Tolerance(len(balances))
	sum := decimal.Zero
	for _, b := range balances {
		sum = sum.Add(b.Amount)
	}

	var unsettled []Balance
	for _, b := range ApplyTransfers(balances, transfers) {
		if !withinTolerance(b.Amount, rowTolerance) {
			unsettled = append(unsettled, b)
		}
	}

	if withinTolerance(sum, tol) && len(unsettled) == 0 {
		return nil
	}
	return &BalanceMismatchError{Sum: Round(sum), Tolerance: tol, Unsettled: unsettled}
}
