package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Inspect or correct a student's token balance",
}

var balanceShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a student's balance and recent ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eco, err := openEconomy(cmd, cliLogger(), false)
		if err != nil {
			return err
		}
		defer eco.Close()

		st, err := findStudent(cmd, eco, args[0])
		if err != nil {
			return err
		}
		rc, err := eco.ledger.Balance(cmd.Context(), st.ID)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := eco.ledger.History(cmd.Context(), st.ID, limit)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d tokens (%d earned today, %d remaining)\n",
			st.Name, rc.Balance, rc.DailyEarned, rc.RemainingToday)
		for _, e := range entries {
			fmt.Printf("  %s  %-8s %+6d  -> %6d  %s\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Kind, e.Delta, e.BalanceAfter, e.Reference)
		}
		return nil
	},
}

var balanceSetCmd = &cobra.Command{
	Use:   "set <name> <tokens>",
	Short: "Overwrite a student's balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid token amount %q", args[1])
		}

		eco, err := openEconomy(cmd, cliLogger(), false)
		if err != nil {
			return err
		}
		defer eco.Close()

		st, err := findStudent(cmd, eco, args[0])
		if err != nil {
			return err
		}
		rc, err := eco.ledger.SetBalance(cmd.Context(), st.ID, tokens)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d -> %d tokens\n", st.Name, rc.Balance-rc.Delta, rc.Balance)
		return nil
	},
}

func init() {
	balanceShowCmd.Flags().Int("limit", 10, "Number of ledger entries to show")
	balanceCmd.AddCommand(balanceShowCmd)
	balanceCmd.AddCommand(balanceSetCmd)
}
