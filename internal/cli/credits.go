package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codepaste/typer/internal/models"
)

func newPackagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "packages",
		Short: "List the credit packages on sale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCREDITS\tPRICE")
			for _, p := range models.DefaultPackages() {
				fmt.Fprintf(w, "%s\t%s\t%d\t₹%.0f\n", p.ID, p.Name, p.Credits, p.Price)
			}
			return w.Flush()
		},
	}
}

func newRedeemCmd(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem PACKAGE PAYMENT_REF",
		Short: "Credit a purchased package using its payment reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			mgr, err := r.session(ctx)
			if err != nil {
				return err
			}
			balance, err := mgr.Redeem(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			pkg, _ := models.FindPackage(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d credits (%s), balance %d\n", pkg.Credits, pkg.Name, balance)
			return nil
		},
	}
}

func newStatsCmd(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show lifetime usage and the balance runway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			mgr, err := r.session(ctx)
			if err != nil {
				return err
			}
			stats, err := mgr.Stats(ctx)
			if err != nil {
				return err
			}
			proj, err := mgr.Projection(ctx, models.TimeRange30Days)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Account:\t%s\n", mgr.Account().Email)
			fmt.Fprintf(w, "Balance:\t%d credits\n", proj.Balance)
			fmt.Fprintf(w, "Characters typed:\t%d\n", stats.TotalCharacters)
			fmt.Fprintf(w, "Credits used:\t%d\n", stats.TotalCreditsUsed)
			fmt.Fprintf(w, "Sessions:\t%d\n", stats.SessionCount)
			fmt.Fprintf(w, "Avg per session:\t%.0f characters\n", stats.AverageSessionLength())
			fmt.Fprintf(w, "Runway:\t%s (%s confidence)\n", proj.FormatDaysLeft(), proj.Confidence)
			return w.Flush()
		},
	}
}

func newHistoryCmd(r *runtime) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent ledger transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			mgr, err := r.session(ctx)
			if err != nil {
				return err
			}
			txs, err := mgr.History(ctx, limit)
			if err != nil {
				return err
			}
			if len(txs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No transactions yet")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tKIND\tCREDITS\tREFERENCE")
			for _, tx := range txs {
				fmt.Fprintf(w, "%s\t%s\t%+d\t%s\n",
					tx.Timestamp.Local().Format("2006-01-02 15:04"), tx.Kind.Label(), tx.Delta, tx.PaymentRef)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of transactions to show (0 for all)")
	return cmd
}
