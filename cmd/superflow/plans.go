package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/craftai-co-in/superflow/internal/plans"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print the pricing table",
	Run: func(cmd *cobra.Command, args []string) {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PLAN\tNAME\tPRICE\tMINUTES")
		for _, p := range plans.All() {
			fmt.Fprintf(tw, "%s\t%s\t%s %.2f\t%s\n", p.Type, p.DisplayName, p.Currency, p.AmountMajor(), p.Minutes)
		}
		_ = tw.Flush()
	},
}
