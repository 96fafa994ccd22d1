package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/wordmaster/internal/dailycap"
	"github.com/abhisek/wordmaster/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show balances and pending work",
	RunE: func(cmd *cobra.Command, args []string) error {
		eco, err := openEconomy(cmd, cliLogger(), false)
		if err != nil {
			return err
		}
		defer eco.Close()

		ctx := cmd.Context()
		list, err := eco.students.List(ctx)
		if err != nil {
			return err
		}
		requests, err := eco.requests.PendingCount(ctx)
		if err != nil {
			return err
		}
		settlements, err := eco.settlements.PendingCount(ctx)
		if err != nil {
			return err
		}

		today := eco.ledger.Today()
		terms := eco.settlements.Terms()

		fmt.Printf("%-24s  %8s  %8s  %10s\n", "Name", "Balance", "Today", "Payable")
		fmt.Println(strings.Repeat("─", 58))

		var total int64
		for i := range list {
			st := &list[i]
			total += st.Balance
			fmt.Printf("%-24s  %8d  %8s  %10d\n",
				st.Name, st.Balance,
				fmt.Sprintf("%d/%d", dailycap.EffectiveEarned(st, today), eco.cfg.Economy.DailyCap),
				terms.Quote(st.Balance).Amount)
		}

		fmt.Printf("\n%d students, %d tokens outstanding\n", len(list), total)
		fmt.Printf("Pending test requests: %d\n", requests)
		fmt.Printf("Pending settlements:   %d\n", settlements)
		return nil
	},
}

// findStudent looks a student up by display name.
func findStudent(cmd *cobra.Command, eco *economy, name string) (*store.Student, error) {
	st, err := eco.store.StudentByName(cmd.Context(), strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("student %q: %w", name, err)
	}
	return st, nil
}
