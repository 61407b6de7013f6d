package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/warp/reconciliation-engine/generic"
	"github.com/warp/reconciliation-engine/reconcile"
)

// =============================================================================
// CLOSING HANDLERS
// =============================================================================
//
//   GET    /api/closings?agent_id=&from=&to=&status=
//   POST   /api/closings                    (guarded)
//   GET    /api/closings/{id}
//   PATCH  /api/closings/{id}
//   DELETE /api/closings/{id}               administrative
//   POST   /api/closings/{id}/finalize
//   GET    /api/closings/{id}/adjustments
//   POST   /api/closings/{id}/adjustments   (guarded)

func (h *Handler) ListClosings(w http.ResponseWriter, r *http.Request) {
	var filter generic.ClosingFilter
	q := r.URL.Query()
	if raw := q.Get("agent_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.writeEngineError(w, r, "Invalid agent ID",
				&generic.ValidationError{Field: "agent_id", Message: "must be a positive integer"})
			return
		}
		filter.AgentID = generic.AgentID(id)
	}
	switch status := generic.ClosingStatus(q.Get("status")); status {
	case "", generic.StatusActive, generic.StatusAdjusted:
		filter.Status = status
	default:
		h.writeEngineError(w, r, "Invalid status",
			&generic.ValidationError{Field: "status", Message: "must be active or adjusted"})
		return
	}
	var err error
	if filter.From, err = queryDate(r, "from"); err != nil {
		h.writeEngineError(w, r, "Invalid start date", err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		h.writeEngineError(w, r, "Invalid end date", err)
		return
	}

	closings, err := h.Engine.Closings.List(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, r, "Failed to list closings", err)
		return
	}
	dtos := make([]ClosingDTO, len(closings))
	for i, c := range closings {
		dtos[i] = toClosingDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClosing closes an agent's day. When shift_id is omitted the closing
// is attached to the current shift, if any.
func (h *Handler) CreateClosing(w http.ResponseWriter, r *http.Request) {
	var req CreateClosingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}
	date, err := generic.ParseDate("closing_date", req.Date)
	if err != nil {
		h.writeEngineError(w, r, "Invalid closing date", err)
		return
	}
	final, err := generic.ParseAmount("final_counted_balance", req.FinalCounted)
	if err != nil {
		h.writeEngineError(w, r, "Invalid final counted balance", err)
		return
	}
	adjustment := generic.ZeroAmount()
	if req.AdjustmentAmount != "" {
		if adjustment, err = generic.ParseAmount("adjustment_amount", req.AdjustmentAmount); err != nil {
			h.writeEngineError(w, r, "Invalid adjustment amount", err)
			return
		}
	}

	shiftID := generic.NoShift
	if req.ShiftID != nil {
		shiftID = generic.ShiftID(*req.ShiftID)
	} else {
		current, err := h.Engine.Shifts.Current(r.Context(), h.Now())
		if err != nil {
			h.writeEngineError(w, r, "Failed to resolve current shift", err)
			return
		}
		if current != nil {
			shiftID = current.ID
		}
	}

	in := reconcile.CreateClosingInput{
		AgentID:          generic.AgentID(req.AgentID),
		Date:             date,
		ShiftID:          shiftID,
		FinalCounted:     final,
		AdjustmentAmount: adjustment,
		Observations:     req.Observations,
		CreatedBy:        req.CreatedBy,
	}
	fields := []any{in.AgentID, date.String(), shiftID, final.String()}
	closing, err := submit(r.Context(), h, OpCreateClosing, fields, func(ctx context.Context) (generic.Closing, error) {
		return h.Engine.Closings.Create(ctx, in)
	})
	if err != nil {
		h.writeEngineError(w, r, "Failed to create closing", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClosingDTO(closing))
}

func (h *Handler) GetClosing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid closing ID", err)
		return
	}
	closing, err := h.Engine.Closings.Get(r.Context(), generic.ClosingID(id))
	if err != nil {
		h.writeEngineError(w, r, "Failed to get closing", err)
		return
	}
	writeJSON(w, http.StatusOK, toClosingDTO(closing))
}

func (h *Handler) UpdateClosing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid closing ID", err)
		return
	}
	var req UpdateClosingRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		h.writeEngineError(w, r, "Invalid closing update", err)
		return
	}

	closing, err := h.Engine.Closings.Update(r.Context(), generic.ClosingID(id), patch)
	if err != nil {
		h.writeEngineError(w, r, "Failed to update closing", err)
		return
	}
	writeJSON(w, http.StatusOK, toClosingDTO(closing))
}

func (req UpdateClosingRequest) toPatch() (reconcile.ClosingPatch, error) {
	var patch reconcile.ClosingPatch
	if req.AgentID != nil {
		agentID := generic.AgentID(*req.AgentID)
		patch.AgentID = &agentID
	}
	if req.Date != nil {
		date, err := generic.ParseDate("closing_date", *req.Date)
		if err != nil {
			return patch, err
		}
		patch.Date = &date
	}
	if req.ShiftID != nil {
		shiftID := generic.ShiftID(*req.ShiftID)
		patch.ShiftID = &shiftID
	}
	if req.FinalCounted != nil {
		final, err := generic.ParseAmount("final_counted_balance", *req.FinalCounted)
		if err != nil {
			return patch, err
		}
		patch.FinalCounted = &final
	}
	if req.AdjustmentAmount != nil {
		adjustment, err := generic.ParseAmount("adjustment_amount", *req.AdjustmentAmount)
		if err != nil {
			return patch, err
		}
		patch.AdjustmentAmount = &adjustment
	}
	patch.Observations = req.Observations
	return patch, nil
}

func (h *Handler) DeleteClosing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid closing ID", err)
		return
	}
	if err := h.Engine.Closings.Delete(r.Context(), generic.ClosingID(id)); err != nil {
		h.writeEngineError(w, r, "Failed to delete closing", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) FinalizeClosing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid closing ID", err)
		return
	}
	closing, err := h.Engine.Closings.Finalize(r.Context(), generic.ClosingID(id))
	if err != nil {
		h.writeEngineError(w, r, "Failed to finalize closing", err)
		return
	}
	writeJSON(w, http.StatusOK, toClosingDTO(closing))
}

func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid closing ID", err)
		return
	}
	adjustments, err := h.Engine.Closings.ListAdjustments(r.Context(), generic.ClosingID(id))
	if err != nil {
		h.writeEngineError(w, r, "Failed to list adjustments", err)
		return
	}
	dtos := make([]AdjustmentDTO, len(adjustments))
	for i, a := range adjustments {
		dtos[i] = toAdjustmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordAdjustment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid closing ID", err)
		return
	}
	var req RecordAdjustmentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}
	delta, err := generic.ParseAmount("delta", req.Delta)
	if err != nil {
		h.writeEngineError(w, r, "Invalid delta", err)
		return
	}

	in := reconcile.AdjustmentInput{Delta: delta, Reason: req.Reason, CreatedBy: req.CreatedBy}
	fields := []any{id, delta.String(), req.Reason}
	adj, err := submit(r.Context(), h, OpRecordAdjustment, fields, func(ctx context.Context) (generic.Adjustment, error) {
		return h.Engine.Closings.RecordAdjustment(ctx, generic.ClosingID(id), in)
	})
	if err != nil {
		h.writeEngineError(w, r, "Failed to record adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAdjustmentDTO(adj))
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.Engine.Shifts.List(r.Context())
	if err != nil {
		h.writeEngineError(w, r, "Failed to list shifts", err)
		return
	}
	dtos := make([]ShiftDTO, len(shifts))
	for i, s := range shifts {
		dtos[i] = toShiftDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateShift(w http.ResponseWriter, r *http.Request) {
	var req CreateShiftRequest
	if err := h.decode(r, &req); err != nil {
		h.writeEngineError(w, r, "Invalid request body", err)
		return
	}
	start, err := generic.ParseClockTime("scheduled_start", req.ScheduledStart)
	if err != nil {
		h.writeEngineError(w, r, "Invalid scheduled start", err)
		return
	}
	end, err := generic.ParseClockTime("scheduled_end", req.ScheduledEnd)
	if err != nil {
		h.writeEngineError(w, r, "Invalid scheduled end", err)
		return
	}

	shift, err := h.Engine.Shifts.Create(r.Context(), generic.Shift{
		Name:           req.Name,
		ScheduledStart: start,
		ScheduledEnd:   end,
	})
	if err != nil {
		h.writeEngineError(w, r, "Failed to create shift", err)
		return
	}
	writeJSON(w, http.StatusCreated, toShiftDTO(shift))
}

// CurrentShift returns the shift in operation now, or null.
func (h *Handler) CurrentShift(w http.ResponseWriter, r *http.Request) {
	shift, err := h.Engine.Shifts.Current(r.Context(), h.Now())
	if err != nil {
		h.writeEngineError(w, r, "Failed to resolve current shift", err)
		return
	}
	if shift == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(*shift))
}

func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.Engine.Shifts.ClockIn, "Failed to clock in")
}

func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.Engine.Shifts.ClockOut, "Failed to clock out")
}

type clockFunc func(ctx context.Context, id generic.ShiftID, at time.Time) (generic.Shift, error)

func (h *Handler) clock(w http.ResponseWriter, r *http.Request, fn clockFunc, message string) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeEngineError(w, r, "Invalid shift ID", err)
		return
	}
	var req ClockRequest
	if r.ContentLength != 0 {
		if err := h.decode(r, &req); err != nil {
			h.writeEngineError(w, r, "Invalid request body", err)
			return
		}
	}
	at := h.Now()
	if req.At != nil {
		at = *req.At
	}

	shift, err := fn(r.Context(), generic.ShiftID(id), at)
	if err != nil {
		h.writeEngineError(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(shift))
}
