package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"courtsplit/internal/core"
	"courtsplit/internal/dto"
	"courtsplit/internal/export"
	"courtsplit/internal/log"
	"courtsplit/internal/middleware/trace"
	"courtsplit/internal/services"
)

// Error kinds produced by the transport rather than the calculation.
const (
	kindBadRequest  = "bad_request"
	kindUnavailable = "unavailable"
	kindRateLimited = "rate_limited"
)

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSettlement(w, r)
	if !ok {
		return
	}

	res, err := s.service.Settle(r.Context(), trace.GetRequestID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromResult(res))
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSettlement(w, r)
	if !ok {
		return
	}

	res, err := s.service.Calculate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, res.Rows); err != nil {
		writeError(w, r, fmt.Errorf("render csv: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSettlement(w, r)
	if !ok {
		return
	}

	res, ref, err := s.service.Export(r.Context(), trace.GetRequestID(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Settlement exported",
		log.FieldComponent, log.ComponentSheets,
		log.FieldSheetsRef, ref)
	writeJSON(w, http.StatusOK, dto.ExportResponse{Ref: ref, Result: dto.FromResult(res)})
}

// handleEnqueue accepts a settlement for the worker. The optional reply_to
// query parameter names the queue that receives the result.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSettlement(w, r)
	if !ok {
		return
	}

	replyTo := strings.TrimSpace(r.URL.Query().Get("reply_to"))
	id, err := s.service.Enqueue(r.Context(), req, replyTo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, dto.EnqueueResponse{RequestID: id, ReplyTo: replyTo})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, dto.ErrorResponse{
		Error:   kindRateLimited,
		Message: "rate limit exceeded, try again later",
	})
}

// decodeSettlement reads exactly one JSON object. On failure it writes a 400
// and returns false.
func decodeSettlement(w http.ResponseWriter, r *http.Request) (dto.SettlementRequest, bool) {
	var req dto.SettlementRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(&req)
	if err == nil && dec.Decode(&struct{}{}) != io.EOF {
		err = errors.New("body must contain a single JSON object")
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: kindBadRequest, Message: "request body too large"})
			return req, false
		}
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: kindBadRequest, Message: "invalid JSON: " + err.Error()})
		return req, false
	}
	return req, true
}

// writeError maps calculation errors to 422, disabled integrations to 503
// and everything else to 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrExportDisabled), errors.Is(err, services.ErrQueueDisabled):
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: kindUnavailable, Message: err.Error()})
	case core.ErrorKind(err) != core.KindInternal:
		writeJSON(w, http.StatusUnprocessableEntity, dto.NewErrorResponse(err))
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Settlement request failed",
			log.FieldError, err.Error(),
			log.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: core.KindInternal, Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
