package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/homegrid/backend/internal/middlewares"
	"github.com/homegrid/backend/internal/services"
	"go.uber.org/zap"
)

// BillService is the interface that wraps the electricity bill split logic
type BillService interface {
	// Method Split allocates a period total across meters by consumption.
	Split(totalCents int64, readings []services.MeterReading) (*services.BillSplit, error)
	// Method EmailReport sends a computed split to the given recipients.
	EmailReport(ctx context.Context, to []string, period string, split *services.BillSplit) error
}

// BillHandler handles electricity bill split HTTP requests
type BillHandler struct {
	BaseHandler
	billService BillService
}

// NewBillHandler creates a new bill handler
func NewBillHandler(billService BillService, logger *zap.Logger) *BillHandler {
	return &BillHandler{
		BaseHandler: BaseHandler{Logger: logger},
		billService: billService,
	}
}

// RegisterRoutes registers the bill routes behind the guard
func (h *BillHandler) RegisterRoutes(r chi.Router, guard *middlewares.Guard) {
	r.Group(func(r chi.Router) {
		r.Use(guard.Allowed)
		r.Post("/bills/split", h.Split)
		r.Post("/bills/split/email", h.SplitAndEmail)
	})
}

type splitRequest struct {
	TotalCents int64                   `json:"total_cents"`
	Readings   []services.MeterReading `json:"readings"`
}

// Split handles POST /bills/split
func (h *BillHandler) Split(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	split, err := h.billService.Split(req.TotalCents, req.Readings)
	if err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.RespondJSON(w, http.StatusOK, split)
}

// SplitAndEmail handles POST /bills/split/email
func (h *BillHandler) SplitAndEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		splitRequest
		Period string   `json:"period"`
		To     []string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Period == "" {
		h.RespondError(w, http.StatusBadRequest, "period is required")
		return
	}
	if len(req.To) == 0 {
		h.RespondError(w, http.StatusBadRequest, "at least one recipient is required")
		return
	}

	split, err := h.billService.Split(req.TotalCents, req.Readings)
	if err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.billService.EmailReport(r.Context(), req.To, req.Period, split); err != nil {
		h.Logger.Error("failed to email bill report", zap.Error(err))
		h.RespondError(w, http.StatusBadGateway, "failed to send report email")
		return
	}

	h.RespondJSON(w, http.StatusOK, map[string]any{
		"message": "report sent",
		"split":   split,
	})
}
