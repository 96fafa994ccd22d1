package store

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table and column names shared by the query builders.
const (
	studentsTable    = "students"
	testRequestTable = "test_requests"
	settlementTable  = "settlement_requests"
	ledgerTable      = "ledger_entries"
)

var (
	studentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "name", Type: field.TypeString, Unique: true},
		{Name: "balance", Type: field.TypeInt64, Default: 0},
		{Name: "daily_earned", Type: field.TypeInt64, Default: 0},
		{Name: "last_earn_date", Type: field.TypeString, Size: 10, Default: ""},
		{Name: "last_test_time", Type: field.TypeTime, Nullable: true},
		{Name: "last_wrong_item_ids", Type: field.TypeString, Default: "[]"},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// StudentsTable holds the per-student economy state.
	StudentsTable = &schema.Table{
		Name:       studentsTable,
		Columns:    studentsColumns,
		PrimaryKey: []*schema.Column{studentsColumns[0]},
	}

	testRequestsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"pending", "approved", "rejected"}},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "student_id", Type: field.TypeString, Size: 36},
	}
	// TestRequestsTable holds graded-attempt requests awaiting or past review.
	TestRequestsTable = &schema.Table{
		Name:       testRequestTable,
		Columns:    testRequestsColumns,
		PrimaryKey: []*schema.Column{testRequestsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "test_requests_students_test_requests",
				Columns:    []*schema.Column{testRequestsColumns[4]},
				RefColumns: []*schema.Column{studentsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "testrequest_student_id_status",
				Unique:  false,
				Columns: []*schema.Column{testRequestsColumns[4], testRequestsColumns[1]},
			},
		},
	}

	settlementColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "tokens_deducted", Type: field.TypeInt64},
		{Name: "amount", Type: field.TypeInt64},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"pending", "completed"}},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
		{Name: "student_id", Type: field.TypeString, Size: 36},
	}
	// SettlementRequestsTable holds token-to-currency exchanges.
	SettlementRequestsTable = &schema.Table{
		Name:       settlementTable,
		Columns:    settlementColumns,
		PrimaryKey: []*schema.Column{settlementColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "settlement_requests_students_settlements",
				Columns:    []*schema.Column{settlementColumns[6]},
				RefColumns: []*schema.Column{studentsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "settlement_status_created_at",
				Unique:  false,
				Columns: []*schema.Column{settlementColumns[3], settlementColumns[4]},
			},
		},
	}

	ledgerColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "kind", Type: field.TypeEnum, Enums: []string{"credit", "debit", "adjust"}},
		{Name: "delta", Type: field.TypeInt64},
		{Name: "balance_after", Type: field.TypeInt64},
		{Name: "reference", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "student_id", Type: field.TypeString, Size: 36},
	}
	// LedgerEntriesTable is the append-only audit trail of balance changes.
	LedgerEntriesTable = &schema.Table{
		Name:       ledgerTable,
		Columns:    ledgerColumns,
		PrimaryKey: []*schema.Column{ledgerColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "ledger_entries_students_ledger_entries",
				Columns:    []*schema.Column{ledgerColumns[6]},
				RefColumns: []*schema.Column{studentsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "ledgerentry_student_id_id",
				Unique:  false,
				Columns: []*schema.Column{ledgerColumns[6], ledgerColumns[0]},
			},
		},
	}

	// Tables lists every table managed by auto-migration.
	Tables = []*schema.Table{
		StudentsTable,
		TestRequestsTable,
		SettlementRequestsTable,
		LedgerEntriesTable,
	}
)

func init() {
	TestRequestsTable.ForeignKeys[0].RefTable = StudentsTable
	SettlementRequestsTable.ForeignKeys[0].RefTable = StudentsTable
	LedgerEntriesTable.ForeignKeys[0].RefTable = StudentsTable
}

// migrate creates or upgrades all tables in place.
func migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("new migrate: %w", err)
	}
	return m.Create(ctx, Tables...)
}
