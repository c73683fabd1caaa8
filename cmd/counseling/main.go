// Package main - точка входа портала распределения абитуриентов.
//
// Один бинарник обслуживает HTTP API (serve) и административные операции
// из командной строки: ранжирование, распределение мест, ручные назначения,
// проверку оплат и просмотр статусов.
//
// Конфигурация читается из переменных окружения и файла .env.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rootOptions - глобальные флаги.
type rootOptions struct {
	backend  string
	logLevel string
}

// newRootCmd собирает дерево команд вокруг общего состояния a.
func newRootCmd(a *app) *cobra.Command {
	var opts rootOptions

	root := &cobra.Command{
		Use:   "counseling",
		Short: "Counseling portal: rankings, seat allocation and student status",
		Long: `counseling serves the student counseling portal API and runs the
admin operations of an allocation cycle from the command line.

Configuration comes from the environment (and a .env file when present).
STORE_BACKEND selects memory, sqlite, postgres or redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "record store backend (overrides STORE_BACKEND)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newRankCmd(a),
		newAllocateCmd(a),
		newOverrideCmd(a),
		newVerifyPaymentCmd(a),
		newRejectPaymentCmd(a),
		newVerifyAllPaymentsCmd(a),
		newStatusCmd(a),
		newStudentsCmd(a),
		newSeatsCmd(a),
		newStatsCmd(a),
		newHashAPIKeyCmd(),
	)
	return root
}
