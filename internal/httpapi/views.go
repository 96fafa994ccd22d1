package httpapi

import (
	"time"

	"github.com/abhisek/wordmaster/internal/ledger"
	"github.com/abhisek/wordmaster/internal/settlement"
	"github.com/abhisek/wordmaster/internal/store"
)

type StudentView struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Balance          int64      `json:"balance"`
	DailyEarned      int64      `json:"daily_earned"`
	LastEarnDate     string     `json:"last_earn_date,omitempty"`
	LastTestTime     *time.Time `json:"last_test_time,omitempty"`
	LastWrongItemIDs []string   `json:"last_wrong_item_ids"`
	CreatedAt        time.Time  `json:"created_at"`
}

// studentView renders st with its daily counter already rolled over for
// today.
func studentView(st *store.Student, dailyEarned int64) StudentView {
	return StudentView{
		ID:               st.ID,
		Name:             st.Name,
		Balance:          st.Balance,
		DailyEarned:      dailyEarned,
		LastEarnDate:     st.LastEarnDate,
		LastTestTime:     st.LastTestTime,
		LastWrongItemIDs: st.LastWrongItemIDs,
		CreatedAt:        st.CreatedAt,
	}
}

type TestRequestView struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func testRequestView(tr *store.TestRequest) *TestRequestView {
	if tr == nil {
		return nil
	}
	return &TestRequestView{
		ID:          tr.ID,
		StudentID:   tr.StudentID,
		StudentName: tr.StudentName,
		Status:      string(tr.Status),
		CreatedAt:   tr.CreatedAt,
		UpdatedAt:   tr.UpdatedAt,
	}
}

type SettlementView struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	StudentName    string    `json:"student_name,omitempty"`
	TokensDeducted int64     `json:"tokens_deducted"`
	Amount         int64     `json:"amount"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func settlementView(st *store.Settlement) SettlementView {
	return SettlementView{
		ID:             st.ID,
		StudentID:      st.StudentID,
		StudentName:    st.StudentName,
		TokensDeducted: st.TokensDeducted,
		Amount:         st.Amount,
		Status:         string(st.Status),
		CreatedAt:      st.CreatedAt,
		UpdatedAt:      st.UpdatedAt,
	}
}

type LedgerEntryView struct {
	Sequence     int64     `json:"sequence"`
	Kind         string    `json:"kind"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Overview is everything the student home screen needs in one call.
type Overview struct {
	Student         StudentView      `json:"student"`
	ActiveRequest   *TestRequestView `json:"active_request"`
	CanRequestTest  bool             `json:"can_request_test"`
	CooldownMinutes int              `json:"cooldown_minutes"`
	DailyCap        int64            `json:"daily_cap"`
	RemainingToday  int64            `json:"remaining_today"`
	Settlement      settlement.Quote `json:"settlement"`
}

type TestRequestResponse struct {
	Request *TestRequestView `json:"request"`
	Created bool             `json:"created"`
}

type SettlementResponse struct {
	Settlement SettlementView `json:"settlement"`
	Receipt    ledger.Receipt `json:"receipt"`
}

type LoginResponse struct {
	Student StudentView `json:"student"`
	Created bool        `json:"created"`
}

type Summary struct {
	PendingTestRequests int `json:"pending_test_requests"`
	PendingSettlements  int `json:"pending_settlements"`
}

func mapSlice[T, V any](in []T, f func(*T) V) []V {
	out := make([]V, 0, len(in))
	for i := range in {
		out = append(out, f(&in[i]))
	}
	return out
}
