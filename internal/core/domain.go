package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SplitPolicy selects how the drinks total is shared among present participants.
type SplitPolicy string

// ContributionModel selects who is credited with having paid for drinks.
type ContributionModel string

const (
	EqualAmongPresent     SplitPolicy = "equal_among_present"
	ProportionalByMinutes SplitPolicy = "proportional_by_minutes"

	// SingleDesignatedPayer credits the whole drinks total to one present participant.
	SingleDesignatedPayer ContributionModel = "single_payer"
	// DistributedPerParticipant credits each participant with their own DrinksPaid.
	DistributedPerParticipant ContributionModel = "distributed"
)

type (
	Participant struct {
		ID            string
		Name          string
		MinutesPlayed int
		DrinksPaid    decimal.Decimal // only under DistributedPerParticipant
	}

	BookingCost struct {
		Courts        int
		DurationHours decimal.Decimal // quantized to 0.25h
		HourlyRate    decimal.Decimal
	}

	DrinksCost struct {
		Total   decimal.Decimal
		Policy  SplitPolicy
		Model   ContributionModel
		PayerID string // only under SingleDesignatedPayer
	}

	LedgerRow struct {
		ParticipantID    string
		Name             string
		MinutesPlayed    int
		CourtShare       decimal.Decimal
		DrinksShare      decimal.Decimal
		TotalOwed        decimal.Decimal
		TotalContributed decimal.Decimal
		NetBalance       decimal.Decimal // positive receives, negative pays
	}

	Transfer struct {
		FromParticipantID string
		ToParticipantID   string
		Amount            decimal.Decimal
	}

	// Balance is the signed net position of one participant.
	Balance struct {
		ParticipantID string
		Amount        decimal.Decimal
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNoParticipantsPlayed = errors.New("no participants played")
	ErrInvalidDrinksPayer   = errors.New("invalid drinks payer")
	ErrBalanceMismatch      = errors.New("balance mismatch")
)

// Error kinds exposed to callers that cannot use errors.Is (JSON, AMQP replies).
const (
	KindInvalidInput         = "invalid_input"
	KindNoParticipantsPlayed = "no_participants_played"
	KindInvalidDrinksPayer   = "invalid_drinks_payer"
	KindBalanceMismatch      = "balance_mismatch"
	KindInternal             = "internal_error"
)

// ErrorKind maps an error returned by this package to its stable kind string.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNoParticipantsPlayed):
		return KindNoParticipantsPlayed
	case errors.Is(err, ErrInvalidDrinksPayer):
		return KindInvalidDrinksPayer
	case errors.Is(err, ErrBalanceMismatch):
		return KindBalanceMismatch
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidAmount):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func (p SplitPolicy) IsValid() bool {
	switch p {
	case EqualAmongPresent, ProportionalByMinutes:
		return true
	default:
		return false
	}
}

func (m ContributionModel) IsValid() bool {
	switch m {
	case SingleDesignatedPayer, DistributedPerParticipant:
		return true
	default:
		return false
	}
}

// Present reports whether the participant played at all.
func (p Participant) Present() bool {
	return p.MinutesPlayed > 0
}

// TotalCourtCost is courts * hours * rate, rounded to cents.
func (b BookingCost) TotalCourtCost() decimal.Decimal {
	return Round(decimal.NewFromInt(int64(b.Courts)).Mul(b.DurationHours).Mul(b.HourlyRate))
}

// SessionMinutes is the booked duration expressed in whole minutes.
func (b BookingCost) SessionMinutes() int {
	return int(b.DurationHours.Mul(sixty).IntPart())
}

func (b BookingCost) Validate() error {
	if b.Courts < 1 {
		return invalidInput("courts must be at least 1, got %d", b.Courts)
	}
	if !b.DurationHours.IsPositive() {
		return invalidInput("duration must be positive, got %s", b.DurationHours)
	}
	if !b.DurationHours.Mod(quarter).IsZero() {
		return invalidInput("duration must be a multiple of 0.25h, got %s", b.DurationHours)
	}
	if !b.HourlyRate.IsPositive() {
		return invalidInput("hourly rate must be positive, got %s", b.HourlyRate)
	}
	return nil
}

func (p Participant) Validate(sessionMinutes int) error {
	if strings.TrimSpace(p.ID) == "" {
		return invalidInput("participant id is empty")
	}
	if p.MinutesPlayed < 0 || p.MinutesPlayed > sessionMinutes {
		return invalidInput("participant %q minutes %d outside [0, %d]", p.ID, p.MinutesPlayed, sessionMinutes)
	}
	if p.DrinksPaid.IsNegative() {
		return invalidInput("participant %q drinks paid is negative", p.ID)
	}
	return nil
}

// Validate checks the drinks configuration on its own; payer checks that need
// the participant list happen in ComputeLedger.
func (d DrinksCost) Validate() error {
	if d.Total.IsNegative() {
		return invalidInput("drinks total is negative")
	}
	if !d.Policy.IsValid() {
		return invalidInput("unknown split policy %q", d.Policy)
	}
	if !d.Model.IsValid() {
		return invalidInput("unknown contribution model %q", d.Model)
	}
	return nil
}

// NoDrinks is the drinks configuration for sessions without incidental costs.
func NoDrinks() DrinksCost {
	return DrinksCost{Policy: EqualAmongPresent, Model: SingleDesignatedPayer}
}
