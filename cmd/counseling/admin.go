package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/counseling-hub/config"
	"github.com/alem-hub/counseling-hub/internal/application/command"
	"github.com/alem-hub/counseling-hub/internal/application/query"
	"github.com/alem-hub/counseling-hub/internal/domain/allocation"
	"github.com/alem-hub/counseling-hub/internal/infrastructure/persistence/postgres"
)

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// runWith открывает сервисы и выполняет fn с таймаутом DB_QUERY_TIMEOUT.
func runWith(a *app, fn func(ctx context.Context, svc *services, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if t := a.cfg.Database.QueryTimeout; t > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		svc, err := a.services(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, svc, cmd.OutOrStdout())
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

func newMigrateCmd(a *app) *cobra.Command {
	var rollback, showStatus bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Store.Backend != config.BackendPostgres {
				fmt.Fprintf(cmd.OutOrStdout(), "backend %s has no migrations\n", a.cfg.Store.Backend)
				return nil
			}
			ctx := cmd.Context()
			conn, err := a.openPostgres(ctx)
			if err != nil {
				return err
			}
			m := postgres.NewMigrator(conn)

			switch {
			case rollback:
				if err := m.Rollback(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back last migration")
			case showStatus:
				migs, err := m.Status(ctx)
				if err != nil {
					return err
				}
				for _, mg := range migs {
					state := "pending"
					if mg.IsApplied {
						state = "applied " + mg.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%03d %-32s %s\n", mg.Version, mg.Name, state)
				}
			default:
				n, err := m.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last applied migration")
	cmd.Flags().BoolVar(&showStatus, "status", false, "list migrations and their state")
	cmd.MarkFlagsMutuallyExclusive("rollback", "status")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// ALLOCATION CYCLE
// ══════════════════════════════════════════════════════════════════════════════

func newRankCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rank",
		Short: "Rank every student with submitted marks",
		Args:  cobra.NoArgs,
		RunE: runWith(a, func(ctx context.Context, svc *services, out io.Writer) error {
			res, err := svc.generateRankings.Handle(ctx, command.GenerateRankingsCommand{})
			if err != nil {
				return err
			}
			return printJSON(out, map[string]any{
				"ranked":   res.Ranking.Ranked,
				"unranked": res.Ranking.Unranked,
				"cleared":  res.Ranking.Cleared,
				"changed":  res.Ranking.Changed(),
				"version":  res.Version,
			})
		}),
	}
}

func newAllocateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "allocate",
		Short: "Allocate seats by rank and preference",
		Args:  cobra.NoArgs,
		RunE: runWith(a, func(ctx context.Context, svc *services, out io.Writer) error {
			res, err := svc.allocateSeats.Handle(ctx, command.AllocateSeatsCommand{})
			if err != nil {
				return err
			}
			c := res.Cycle
			return printJSON(out, map[string]any{
				"cycleId":   c.CycleID,
				"assigned":  c.Count(allocation.ChoiceFirst) + c.Count(allocation.ChoiceSecond),
				"unplaced":  c.Count(allocation.ChoiceNone),
				"overrides": c.Count(allocation.ChoiceOverride),
				"skipped":   c.Skipped,
				"seats":     c.Seats,
				"version":   res.Version,
			})
		}),
	}
}

func newOverrideCmd(a *app) *cobra.Command {
	var cmdArgs command.OverrideAllocationCommand

	cmd := &cobra.Command{
		Use:   "override",
		Short: "Assign a student to a branch by hand, or clear the assignment",
		Args:  cobra.NoArgs,
		RunE: runWith(a, func(ctx context.Context, svc *services, out io.Writer) error {
			res, err := svc.overrideAllocation.Handle(ctx, cmdArgs)
			if err != nil {
				return err
			}
			return printJSON(out, map[string]any{
				"record":   res.Record,
				"previous": res.Previous,
				"version":  res.Version,
			})
		}),
	}
	cmd.Flags().StringVar(&cmdArgs.Email, "email", "", "student email")
	cmd.Flags().StringVar(&cmdArgs.Branch, "branch", "", "branch code, e.g. computer-science")
	cmd.Flags().BoolVar(&cmdArgs.Clear, "clear", false, "remove the allocation instead")
	_ = cmd.MarkFlagRequired("email")
	cmd.MarkFlagsMutuallyExclusive("branch", "clear")
	cmd.MarkFlagsOneRequired("branch", "clear")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

func newVerifyPaymentCmd(a *app) *cobra.Command {
	return newReviewCmd(a, "verify-payment", "Mark a student's payment as verified", command.PaymentApprove)
}

func newRejectPaymentCmd(a *app) *cobra.Command {
	return newReviewCmd(a, "reject-payment", "Reject a student's payment", command.PaymentReject)
}

func newReviewCmd(a *app, use, short string, decision command.PaymentDecision) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: runWith(a, func(ctx context.Context, svc *services, out io.Writer) error {
			res, err := svc.reviewPayment.Handle(ctx, command.ReviewPaymentCommand{
				Email:    email,
				Decision: decision,
			})
			if err != nil {
				return err
			}
			return printJSON(out, map[string]any{"record": res.Record, "version": res.Version})
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "student email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newVerifyAllPaymentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-all-payments",
		Short: "Verify every pending payment",
		Args:  cobra.NoArgs,
		RunE: runWith(a, func(ctx context.Context, svc *services, out io.Writer) error {
			res, err := svc.verifyAllPayments.Handle(ctx, command.VerifyAllPaymentsCommand{})
			if err != nil {
				return err
			}
			return printJSON(out, map[string]any{"verified": res.Verified, "version": res.Version})
		}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

func newStatusCmd(a *app) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a student's status card",
		Args:  cobra.NoArgs,
		RunE: runWith(a, func(ctx context.Context, svc *services, out io.Writer) error {
			dto, err := svc.studentStatus.Handle(ctx, query.GetStudentStatusQuery{Email: email})
			if err != nil {
				return err
			}
			return printJSON(out, dto.Card)
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "student email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newStudentsCmd(a *app) *cobra.Command {
	var (
		q      query.ListStudentsQuery
		filter string
	)

	cmd := &cobra.Command{
		Use:   "students",
		Short: "List student records",
		Args:  cobra.NoArgs,
		RunE: runWith(a, func(ctx context.Context, svc *services, out io.Writer) error {
			q.Filter = query.StudentFilter(filter)
			dto, err := svc.listStudents.Handle(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(out, dto)
		}),
	}
	cmd.Flags().StringVar(&q.Search, "search", "", "name or email substring")
	cmd.Flags().StringVar(&filter, "filter", "", "profile-complete, marks-submitted, allocated, payment-verified or payment-pending")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "page size (default 50)")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "page offset")
	return cmd
}

func newSeatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seats",
		Short: "Show seats per branch",
		Args:  cobra.NoArgs,
		RunE: runWith(a, func(ctx context.Context, svc *services, out io.Writer) error {
			dto, err := svc.seatSummary.Handle(ctx)
			if err != nil {
				return err
			}
			return printJSON(out, dto)
		}),
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard counters",
		Args:  cobra.NoArgs,
		RunE: runWith(a, func(ctx context.Context, svc *services, out io.Writer) error {
			dto, err := svc.dashboardStats.Handle(ctx)
			if err != nil {
				return err
			}
			return printJSON(out, dto)
		}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN KEY
// ══════════════════════════════════════════════════════════════════════════════

// newHashAPIKeyCmd печатает bcrypt-хеш ключа для ADMIN_API_KEY_HASH. Ключ
// читается из первой строки stdin, чтобы не попадать в историю оболочки.
func newHashAPIKeyCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-api-key",
		Short: "Read an admin key from stdin and print its bcrypt hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			key := strings.TrimRight(line, "\r\n")
			if key == "" {
				return errors.New("empty key on stdin")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return err
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}
