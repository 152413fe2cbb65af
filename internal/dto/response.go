package dto

import (
	"courtsplit/internal/core"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewErrorResponse maps err to its stable kind.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: core.ErrorKind(err), Message: err.Error()}
}

type (
	RowResponse struct {
		ParticipantID    string `json:"participant_id"`
		Name             string `json:"name"`
		MinutesPlayed    int    `json:"minutes_played"`
		CourtShare       string `json:"court_share"`
		DrinksShare      string `json:"drinks_share"`
		TotalOwed        string `json:"total_owed"`
		TotalContributed string `json:"total_contributed"`
		NetBalance       string `json:"net_balance"`
	}

	TransferResponse struct {
		From     string `json:"from"`
		FromName string `json:"from_name,omitempty"`
		To       string `json:"to"`
		ToName   string `json:"to_name,omitempty"`
		Amount   string `json:"amount"`
	}

	BalanceResponse struct {
		ParticipantID string `json:"participant_id"`
		Amount        string `json:"amount"`
	}

	SummaryResponse struct {
		TotalCourtCost     string `json:"total_court_cost"`
		TotalDrinksCost    string `json:"total_drinks_cost"`
		GrandTotal         string `json:"grand_total"`
		SumOwed            string `json:"sum_owed"`
		SumContributed     string `json:"sum_contributed"`
		SumNet             string `json:"sum_net"`
		PresentCount       int    `json:"present_count"`
		TotalPlayedMinutes int    `json:"total_played_minutes"`
	}

	SettlementResponse struct {
		Rows      []RowResponse      `json:"rows"`
		Transfers []TransferResponse `json:"transfers"`
		Summary   SummaryResponse    `json:"summary"`
		Warning   *ErrorResponse     `json:"warning,omitempty"`
		Unsettled []BalanceResponse  `json:"unsettled,omitempty"`
	}

	// ExportResponse reports where an exported table landed.
	ExportResponse struct {
		Ref    string             `json:"ref"`
		Result SettlementResponse `json:"result"`
	}

	// EnqueueResponse acknowledges an asynchronous settlement request.
	EnqueueResponse struct {
		RequestID string `json:"request_id"`
		ReplyTo   string `json:"reply_to,omitempty"`
	}
)

// FromResult renders a calculation result with two-decimal amount strings.
// Transfers is never nil so an empty settlement encodes as [].
func FromResult(res core.Result) SettlementResponse {
	names := make(map[string]string, len(res.Rows))
	out := SettlementResponse{
		Rows:      make([]RowResponse, 0, len(res.Rows)),
		Transfers: make([]TransferResponse, 0, len(res.Transfers)),
		Summary: SummaryResponse{
			TotalCourtCost:     core.Format(res.Summary.TotalCourtCost),
			TotalDrinksCost:    core.Format(res.Summary.TotalDrinksCost),
			GrandTotal:         core.Format(res.Summary.GrandTotal),
			SumOwed:            core.Format(res.Summary.SumOwed),
			SumContributed:     core.Format(res.Summary.SumContributed),
			SumNet:             core.Format(res.Summary.SumNet),
			PresentCount:       res.Summary.PresentCount,
			TotalPlayedMinutes: res.Summary.TotalPlayedMinutes,
		},
	}

	for _, r := range res.Rows {
		names[r.ParticipantID] = r.Name
		out.Rows = append(out.Rows, RowResponse{
			ParticipantID:    r.ParticipantID,
			Name:             r.Name,
			MinutesPlayed:    r.MinutesPlayed,
			CourtShare:       core.Format(r.CourtShare),
			DrinksShare:      core.Format(r.DrinksShare),
			TotalOwed:        core.Format(r.TotalOwed),
			TotalContributed: core.Format(r.TotalContributed),
			NetBalance:       core.Format(r.NetBalance),
		})
	}
	for _, t := range res.Transfers {
		out.Transfers = append(out.Transfers, TransferResponse{
			From:     t.FromParticipantID,
			FromName: names[t.FromParticipantID],
			To:       t.ToParticipantID,
			ToName:   names[t.ToParticipantID],
			Amount:   core.Format(t.Amount),
		})
	}
	for _, b := range res.Unsettled {
		out.Unsettled = append(out.Unsettled, BalanceResponse{ParticipantID: b.ParticipantID, Amount: core.Format(b.Amount)})
	}
	if res.Warning != nil {
		w := NewErrorResponse(res.Warning)
		out.Warning = &w
	}
	return out
}
