package httpapi

import (
	"net/http"

	"github.com/abhisek/wordmaster/internal/attempt"
	"github.com/abhisek/wordmaster/internal/dailycap"
	"github.com/abhisek/wordmaster/internal/store"
	"github.com/abhisek/wordmaster/internal/wronganswers"
	"github.com/go-chi/chi/v5"
)

const defaultHistoryLimit = 50

type nameRequest struct {
	Name string `json:"name"`
}

// view renders st with today's effective daily counter.
func (h *Handler) view(st *store.Student) StudentView {
	return studentView(st, dailycap.EffectiveEarned(st, h.svc.Ledger.Today()))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decode(w, r, nameSchema, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, created, err := h.svc.Students.Login(r.Context(), req.Name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, LoginResponse{Student: h.view(st), Created: created})
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.svc.Students.Get(ctx, chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var active *store.TestRequest
	switch tr, err := h.svc.Requests.Active(ctx, st.ID); {
	case err == nil:
		active = tr
	case !isNotFound(err):
		h.writeError(w, r, err)
		return
	}

	cd := h.svc.Requests.CooldownFor(st)
	capTracker := h.svc.Ledger.Cap()
	writeJSON(w, http.StatusOK, Overview{
		Student:         h.view(st),
		ActiveRequest:   testRequestView(active),
		CanRequestTest:  active == nil && cd.Allowed,
		CooldownMinutes: cd.RemainingMinutes,
		DailyCap:        capTracker.Cap,
		RemainingToday:  capTracker.Remaining(st, h.svc.Ledger.Today()),
		Settlement:      h.svc.Settlements.Terms().Quote(st.Balance),
	})
}

func (h *Handler) requestTest(w http.ResponseWriter, r *http.Request) {
	tr, created, err := h.svc.Requests.Request(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, TestRequestResponse{Request: testRequestView(tr), Created: created})
}

func (h *Handler) activeRequest(w http.ResponseWriter, r *http.Request) {
	tr, err := h.svc.Requests.Active(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, testRequestView(tr))
}

func (h *Handler) requestSettlement(w http.ResponseWriter, r *http.Request) {
	st, rc, err := h.svc.Settlements.Request(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SettlementResponse{Settlement: settlementView(st), Receipt: rc})
}

func (h *Handler) studentSettlements(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Settlements.List(r.Context(), store.ListOpts{
		StudentID: chi.URLParam(r, "studentID"),
		Status:    r.URL.Query().Get("status"),
		Limit:     limitParam(r, 0),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, settlementView))
}

func (h *Handler) ledgerHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "studentID")
	entries, err := h.svc.Ledger.History(r.Context(), id, limitParam(r, defaultHistoryLimit))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(entries, func(e *store.LedgerEntry) LedgerEntryView {
		return LedgerEntryView{
			Sequence:     e.Sequence,
			Kind:         string(e.Kind),
			Delta:        e.Delta,
			BalanceAfter: e.BalanceAfter,
			Reference:    e.Reference,
			CreatedAt:    e.CreatedAt,
		}
	}))
}

type studyOrderRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// studyOrder puts the items the student missed last time first.
func (h *Handler) studyOrder(w http.ResponseWriter, r *http.Request) {
	var req studyOrderRequest
	if err := decode(w, r, studyOrderSchema, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	st, err := h.svc.Students.Get(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ordered := wronganswers.Prioritize(req.ItemIDs, st.LastWrongItemIDs, func(id string) string { return id })
	writeJSON(w, http.StatusOK, studyOrderRequest{ItemIDs: ordered})
}

func (h *Handler) completeAttempt(w http.ResponseWriter, r *http.Request) {
	var sub attempt.Submission
	if err := decode(w, r, attemptSchema, &sub); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.svc.Attempts.Complete(r.Context(), sub)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) abandonAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")
	if err := h.svc.Attempts.Abandon(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"request_id": id, "status": "consumed"})
}
