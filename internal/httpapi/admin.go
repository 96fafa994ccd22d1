package httpapi

import (
	"errors"
	"net/http"

	"github.com/abhisek/wordmaster/internal/store"
	"github.com/go-chi/chi/v5"
)

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requests, err := h.svc.Requests.PendingCount(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	settlements, err := h.svc.Settlements.PendingCount(ctx)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Summary{PendingTestRequests: requests, PendingSettlements: settlements})
}

func (h *Handler) listStudents(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Students.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, h.view))
}

func (h *Handler) createStudent(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(w, r, nameSchema, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.svc.Students.Create(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(st))
}

type balanceRequest struct {
	Balance int64 `json:"balance"`
}

func (h *Handler) setBalance(w http.ResponseWriter, r *http.Request) {
	var req balanceRequest
	if err := decode(w, r, balanceSchema, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rc, err := h.svc.Ledger.SetBalance(r.Context(), chi.URLParam(r, "studentID"), req.Balance)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (h *Handler) listTestRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.Requests.List(r.Context(), store.ListOpts{
		Status:    q.Get("status"),
		StudentID: q.Get("student_id"),
		Limit:     limitParam(r, 0),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, testRequestView))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	tr, err := h.svc.Requests.Approve(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testRequestView(tr))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	tr, err := h.svc.Requests.Reject(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testRequestView(tr))
}

func (h *Handler) listSettlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.Settlements.List(r.Context(), store.ListOpts{
		Status:    q.Get("status"),
		StudentID: q.Get("student_id"),
		Limit:     limitParam(r, 0),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, settlementView))
}

func (h *Handler) completeSettlement(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Settlements.Complete(r.Context(), chi.URLParam(r, "settlementID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementView(st))
}
