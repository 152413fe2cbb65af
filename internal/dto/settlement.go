package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"courtsplit/internal/core"
)

// Amount is a money value on the wire. It accepts JSON strings ("12,50",
// "600") and JSON numbers, and is parsed with core.ParseAmount.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a string or a number: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// Decimal parses the amount; an empty amount is zero.
func (a Amount) Decimal() (decimal.Decimal, error) {
	if strings.TrimSpace(string(a)) == "" {
		return decimal.Zero, nil
	}
	return core.ParseAmount(string(a))
}

type (
	BookingRequest struct {
		Courts        int    `json:"courts"`
		DurationHours Amount `json:"duration_hours"`
		HourlyRate    Amount `json:"hourly_rate"`
	}

	ParticipantRequest struct {
		ID            string `json:"id,omitempty"`
		Name          string `json:"name,omitempty"`
		MinutesPlayed int    `json:"minutes_played"`
		DrinksPaid    Amount `json:"drinks_paid,omitempty"`
	}

	DrinksRequest struct {
		Total   Amount `json:"total,omitempty"`
		Policy  string `json:"policy,omitempty"`
		Model   string `json:"model,omitempty"`
		PayerID string `json:"payer_id,omitempty"`
	}

	// SettlementRequest is the body of every settlement endpoint and the
	// payload of AMQP settlement requests.
	SettlementRequest struct {
		Title        string               `json:"title,omitempty"`
		Booking      BookingRequest       `json:"booking"`
		Participants []ParticipantRequest `json:"participants"`
		Drinks       *DrinksRequest       `json:"drinks,omitempty"`
		BookerID     string               `json:"booker_id"`
		// ClampMinutes limits minutes to [0, session length] instead of rejecting them.
		ClampMinutes bool `json:"clamp_minutes,omitempty"`
	}
)

// DefaultName is the display name used for a participant without one.
func DefaultName(index int) string {
	return fmt.Sprintf("Player%d", index+1)
}

// DefaultID is the participant ID used when a request omits it.
func DefaultID(index int) string {
	return fmt.Sprintf("p%d", index+1)
}

// ToInput converts the request into a core.Input. Blank names become
// Player<N> and blank IDs p<N>, both 1-based. Unparseable amounts fail with
// an error wrapping core.ErrInvalidAmount.
func (r SettlementRequest) ToInput() (core.Input, error) {
	duration, err := r.Booking.DurationHours.Decimal()
	if err != nil {
		return core.Input{}, fmt.Errorf("duration_hours: %w", err)
	}
	rate, err := r.Booking.HourlyRate.Decimal()
	if err != nil {
		return core.Input{}, fmt.Errorf("hourly_rate: %w", err)
	}
	booking := core.BookingCost{Courts: r.Booking.Courts, DurationHours: duration, HourlyRate: rate}

	session := booking.SessionMinutes()
	participants := make([]core.Participant, len(r.Participants))
	for i, p := range r.Participants {
		paid, err := p.DrinksPaid.Decimal()
		if err != nil {
			return core.Input{}, fmt.Errorf("participants[%d].drinks_paid: %w", i, err)
		}
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = DefaultID(i)
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = DefaultName(i)
		}
		minutes := p.MinutesPlayed
		if r.ClampMinutes {
			minutes = core.ClampMinutes(minutes, session)
		}
		participants[i] = core.Participant{ID: id, Name: name, MinutesPlayed: minutes, DrinksPaid: paid}
	}

	drinks := core.NoDrinks()
	if r.Drinks != nil {
		total, err := r.Drinks.Total.Decimal()
		if err != nil {
			return core.Input{}, fmt.Errorf("drinks.total: %w", err)
		}
		drinks.Total = total
		drinks.PayerID = strings.TrimSpace(r.Drinks.PayerID)
		if r.Drinks.Policy != "" {
			drinks.Policy = core.SplitPolicy(r.Drinks.Policy)
		}
		if r.Drinks.Model != "" {
			drinks.Model = core.ContributionModel(r.Drinks.Model)
		}
	}

	return core.Input{
		Booking:      booking,
		Participants: participants,
		Drinks:       drinks,
		BookerID:     strings.TrimSpace(r.BookerID),
	}, nil
}
