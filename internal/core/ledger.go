package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeLedger allocates the court cost and the drinks total among participants
// and returns one LedgerRow per participant, in input order.
//
// Court cost is split by minutes played among present participants only. The
// booker is credited with the whole court cost. Drinks are shared according to
// drinks.Policy and credited according to drinks.Model. On any error no rows are
// returned.
func ComputeLedger(booking BookingCost, participants []Participant, drinks DrinksCost, bookerID string) ([]LedgerRow, error) {
	drinksTotal, err := validateLedgerInput(booking, participants, drinks, bookerID)
	if err != nil {
		return nil, err
	}

	totalCourtCost := booking.TotalCourtCost()

	var totalPlayed int64
	var present int64
	for _, p := range participants {
		if p.Present() {
			totalPlayed += int64(p.MinutesPlayed)
			present++
		}
	}
	if totalPlayed == 0 {
		return nil, ErrNoParticipantsPlayed
	}
	totalMinutes := decimal.NewFromInt(totalPlayed)

	if drinks.Model == SingleDesignatedPayer && drinksTotal.IsPositive() {
		if err := checkDrinksPayer(participants, drinks.PayerID); err != nil {
			return nil, err
		}
	}

	var equalDrinks decimal.Decimal
	if drinksTotal.IsPositive() && present > 0 {
		equalDrinks = Round(drinksTotal.Div(decimal.NewFromInt(present)))
	}

	rows := make([]LedgerRow, 0, len(participants))
	for _, p := range participants {
		row := LedgerRow{
			ParticipantID: p.ID,
			Name:          p.Name,
			MinutesPlayed: p.MinutesPlayed,
		}

		if p.Present() {
			minutes := decimal.NewFromInt(int64(p.MinutesPlayed))
			row.CourtShare = Round(totalCourtCost.Mul(minutes).Div(totalMinutes))
			if drinksTotal.IsPositive() {
				switch drinks.Policy {
				case EqualAmongPresent:
					row.DrinksShare = equalDrinks
				case ProportionalByMinutes:
					row.DrinksShare = Round(drinksTotal.Mul(minutes).Div(totalMinutes))
				}
			}
		}
		row.TotalOwed = Round(row.CourtShare.Add(row.DrinksShare))

		contributed := decimal.Zero
		if p.ID == bookerID {
			contributed = contributed.Add(totalCourtCost)
		}
		switch drinks.Model {
		case SingleDesignatedPayer:
			if drinksTotal.IsPositive() && p.ID == drinks.PayerID {
				contributed = contributed.Add(drinksTotal)
			}
		case DistributedPerParticipant:
			contributed = contributed.Add(p.DrinksPaid)
		}
		row.TotalContributed = Round(contributed)
		row.NetBalance = Round(row.TotalContributed.Sub(row.TotalOwed))

		rows = append(rows, row)
	}

	return rows, nil
}

// DrinksTotal returns the drinks amount that ComputeLedger allocates: the
// configured total, or under DistributedPerParticipant with no explicit total,
// the sum of what participants paid. An explicit total that differs from what
// was paid is allowed; the ledger then does not balance and Calculate reports
// a BalanceMismatchError.
func DrinksTotal(participants []Participant, drinks DrinksCost) decimal.Decimal {
	if drinks.Model == DistributedPerParticipant && drinks.Total.IsZero() {
		return sumDrinksPaid(participants)
	}
	return Round(drinks.Total)
}

func sumDrinksPaid(participants []Participant) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range participants {
		sum = sum.Add(p.DrinksPaid)
	}
	return Round(sum)
}

func validateLedgerInput(booking BookingCost, participants []Participant, drinks DrinksCost, bookerID string) (decimal.Decimal, error) {
	if err := booking.Validate(); err != nil {
		return decimal.Zero, err
	}
	if err := drinks.Validate(); err != nil {
		return decimal.Zero, err
	}
	if len(participants) == 0 {
		return decimal.Zero, invalidInput("no participants")
	}

	sessionMinutes := booking.SessionMinutes()
	seen := make(map[string]struct{}, len(participants))
	bookerFound := false
	for _, p := range participants {
		if err := p.Validate(sessionMinutes); err != nil {
			return decimal.Zero, err
		}
		if _, dup := seen[p.ID]; dup {
			return decimal.Zero, invalidInput("duplicate participant id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.ID == bookerID {
			bookerFound = true
		}
		if drinks.Model == SingleDesignatedPayer && !p.DrinksPaid.IsZero() {
			return decimal.Zero, invalidInput("participant %q has drinks paid under single payer model", p.ID)
		}
	}
	if !bookerFound {
		return decimal.Zero, invalidInput("booker %q is not a participant", bookerID)
	}

	return DrinksTotal(participants, drinks), nil
}

func checkDrinksPayer(participants []Participant, payerID string) error {
	if payerID == "" {
		return fmt.Errorf("%w: no payer given", ErrInvalidDrinksPayer)
	}
	for _, p := range participants {
		if p.ID != payerID {
			continue
		}
		if !p.Present() {
			return fmt.Errorf("%w: %q did not play", ErrInvalidDrinksPayer, payerID)
		}
		return nil
	}
	return fmt.Errorf("%w: %q is not a participant", ErrInvalidDrinksPayer, payerID)
}
