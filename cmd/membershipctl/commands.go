package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/EduPortal/internal/pkg/billing"
	"github.com/ManuelReschke/EduPortal/internal/pkg/pricing"
)

type opener func() (*billing.Service, func(), error)

type cli struct {
	open    opener
	svc     *billing.Service
	closeFn func()
	asJSON  bool
}

// newRootCmd builds the command tree. The returned func releases whatever
// connection a subcommand opened.
func newRootCmd(open opener) (*cobra.Command, func()) {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "membershipctl",
		Short:         "EduPortal membership maintenance",
		Long:          `Run membership sweeps, renewals and refunds against the EduPortal database. Intended for cron and operators.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&c.asJSON, "json", false, "print results as JSON")

	root.AddCommand(
		c.plansCmd(),
		c.expireCmd(),
		c.renewCmd(),
		c.renewDueCmd(),
		c.historyCmd(),
		c.refundCmd(),
	)
	return root, func() {
		if c.closeFn != nil {
			c.closeFn()
		}
	}
}

func (c *cli) service() (*billing.Service, error) {
	if c.svc != nil {
		return c.svc, nil
	}
	svc, closeFn, err := c.open()
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	c.svc, c.closeFn = svc, closeFn
	return svc, nil
}

func (c *cli) print(w io.Writer, v any, text func(io.Writer)) error {
	if c.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func (c *cli) plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List the active plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plans := pricing.Default().GetActivePlans()
			return c.print(cmd.OutOrStdout(), plans, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tNAME\tPRICE\tPOPULAR")
				for _, p := range plans {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", p.Code, p.Name, pricing.FormatPrice(p.Price, p.Currency), p.IsPopular)
				}
				tw.Flush()
			})
		},
	}
}

func (c *cli) expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Mark memberships past their expiry as expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			n, err := svc.CheckExpiredMemberships(cmd.Context())
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), map[string]int{"expired": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Expired %d memberships\n", n)
			})
		},
	}
}

func (c *cli) renewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew <user-id>",
		Short: "Run the auto-renewal of one user now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			out, err := svc.ProcessAutoRenewal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "Renewed %s until %s (transaction %s)\n",
					args[0], out.Profile.MembershipExpiresAt.Format(time.RFC3339), out.Transaction.ID)
			})
		},
	}
}

func (c *cli) renewDueCmd() *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "renew-due",
		Short: "Renew every auto-renewing membership expiring within the window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if window <= 0 {
				return fmt.Errorf("--window must be positive")
			}
			svc, err := c.service()
			if err != nil {
				return err
			}
			summary, err := svc.ProcessDueRenewals(cmd.Context(), window)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), summary, func(w io.Writer) {
				fmt.Fprintf(w, "Attempted %d, renewed %d, failed %d, skipped %d\n",
					summary.Attempted, summary.Renewed, summary.Failed, summary.Skipped)
			})
		},
	}
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "renew memberships expiring within this duration")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show a user's payment transactions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			txs, err := svc.TransactionHistory(cmd.Context(), args[0], billing.ClampHistoryLimit(limit))
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), txs, func(w io.Writer) {
				if len(txs) == 0 {
					fmt.Fprintln(w, "No transactions")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tTYPE\tPLAN\tAMOUNT\tSTATUS")
				for _, tx := range txs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s->%s\t%s\t%s\n",
						tx.ID, tx.CreatedAt.Format(time.RFC3339), tx.UpgradeType, tx.FromPlan, tx.ToPlan,
						pricing.FormatPrice(tx.Amount, tx.Currency), tx.Status)
				}
				tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", billing.DefaultHistoryLimit, "number of transactions to show")
	return cmd
}

func (c *cli) refundCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "refund <transaction-id>",
		Short: "Mark a completed transaction as refunded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service()
			if err != nil {
				return err
			}
			tx, err := svc.RefundTransaction(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return c.print(cmd.OutOrStdout(), tx, func(w io.Writer) {
				fmt.Fprintf(w, "Transaction %s is now %s\n", tx.ID, tx.Status)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "note stored on the transaction")
	return cmd
}
