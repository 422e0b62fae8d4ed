package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"phantomd/pkg/bus"
	"phantomd/pkg/db"
	"phantomd/services/orchestrator"
)

func newAlertsCommand() *cobra.Command {
	var (
		natsURL string
		subject string
		durable string
		dsn     string
		recent  int
	)

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Tail alerts from the bus, or list recent ones from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if recent > 0 {
				return printRecentAlerts(ctx, dsn, recent)
			}

			url := natsURL
			if url == "" {
				url = os.Getenv("PHANTOMD_NATS_URL")
			}
			if url == "" {
				return errors.New("no NATS URL, set --nats-url or PHANTOMD_NATS_URL")
			}

			b, err := bus.New(url)
			if err != nil {
				return fmt.Errorf("connect bus: %w", err)
			}
			defer b.Close()

			sub, err := orchestrator.Tail(ctx, b, subject, durable, printAlert)
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer sub.Close()

			fmt.Fprintf(os.Stdout, "tailing %s, ctrl-c to stop\n", subject)
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats-url", "", "NATS server URL (defaults to $PHANTOMD_NATS_URL)")
	cmd.Flags().StringVar(&subject, "subject", orchestrator.DefaultSubject, "Alert subject to subscribe to")
	cmd.Flags().StringVar(&durable, "durable", "phantomctl", "Durable consumer name")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Journal database DSN (defaults to $PHANTOMD_JOURNAL_DSN)")
	cmd.Flags().IntVar(&recent, "recent", 0, "Print the latest N journaled alerts and exit instead of tailing")
	return cmd
}

func printAlert(a orchestrator.Alert) {
	fmt.Fprintf(os.Stdout, "%s  %s %s (%s) on %s as %s\n",
		a.ObservedAt.Format(time.RFC3339), a.Op, a.Trap, a.Path, a.Host, a.User)
}

func printRecentAlerts(ctx context.Context, dsn string, limit int) error {
	if dsn == "" {
		dsn = os.Getenv("PHANTOMD_JOURNAL_DSN")
	}
	if dsn == "" {
		return errors.New("no journal DSN, set --dsn or PHANTOMD_JOURNAL_DSN")
	}

	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer pool.Close()

	journal, err := orchestrator.NewJournal(pool, zap.NewNop())
	if err != nil {
		return err
	}

	alerts, err := journal.RecentAlerts(ctx, limit)
	if err != nil {
		return fmt.Errorf("read journal: %w", err)
	}
	total, err := journal.CountAlerts(ctx)
	if err != nil {
		return fmt.Errorf("count journal: %w", err)
	}

	for _, a := range alerts {
		printAlert(a)
	}
	fmt.Fprintf(os.Stdout, "showing %d of %d alerts\n", len(alerts), total)
	return nil
}
