package store

import "time"

// Student is a learner and the owner of one token balance.
type Student struct {
	ID               string
	Name             string
	Balance          int64
	DailyEarned      int64
	LastEarnDate     string // YYYY-MM-DD, empty when the student never earned
	LastTestTime     *time.Time
	LastWrongItemIDs []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TestRequestStatus is the review state of a graded-attempt request.
type TestRequestStatus string

const (
	TestRequestPending  TestRequestStatus = "pending"
	TestRequestApproved TestRequestStatus = "approved"
	TestRequestRejected TestRequestStatus = "rejected"
)

// Active reports whether the request still blocks a new one.
func (s TestRequestStatus) Active() bool {
	return s == TestRequestPending || s == TestRequestApproved
}

// TestRequest asks an admin for permission to take a graded attempt.
type TestRequest struct {
	ID          string
	StudentID   string
	StudentName string // filled by listing queries
	Status      TestRequestStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SettlementStatus is the payout state of a settlement.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementCompleted SettlementStatus = "completed"
)

// Settlement records tokens exchanged for a real-currency payout.
type Settlement struct {
	ID             string
	StudentID      string
	StudentName    string // filled by listing queries
	TokensDeducted int64
	Amount         int64
	Status         SettlementStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryCredit EntryKind = "credit"
	EntryDebit  EntryKind = "debit"
	EntryAdjust EntryKind = "adjust"
)

// LedgerEntry is one balance change in the audit trail.
type LedgerEntry struct {
	Sequence     int64
	StudentID    string
	Kind         EntryKind
	Delta        int64
	BalanceAfter int64
	Reference    string
	CreatedAt    time.Time
}

// ListOpts filters admin listings. Zero values mean no filter.
type ListOpts struct {
	Status    string
	StudentID string
	Limit     int
}
