package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/fathom/internal/history"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionClearCmd)
}

// historyStore opens the shared history store. Session commands need the
// Postgres backend; without it history lives inside the daemon process and
// is only reachable through its /api/sessions endpoint.
func historyStore(ctx context.Context) (history.Store, error) {
	cfg := loadConfig()
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("session commands require postgres.dsn; without it use the daemon's /api/sessions endpoint")
	}
	return history.Connect(ctx, cfg.Postgres.DSN)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and clear conversation history",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := historyStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.Sessions(ctx)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION KEY\tTURNS\tLAST ACTIVE")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%d\t%s\n",
				s.Key,
				s.Turns,
				s.LastActive.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <key>",
	Short: "Show the turns of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := historyStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		turns, err := store.Load(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if len(turns) == 0 {
			fmt.Println("No turns in session.")
			return nil
		}

		for i, turn := range turns {
			fmt.Fprintf(os.Stdout, "[%d] %s\n", i+1, turn.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(os.Stdout, "Q: %s\n", turn.Query)
			fmt.Fprintf(os.Stdout, "A: %s\n", turn.Answer)
			if turn.Summary != "" {
				fmt.Fprintf(os.Stdout, "Summary: %s\n", turn.Summary)
			}
			fmt.Fprintln(os.Stdout)
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear <key|all>",
	Short: "Clear a session or all sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := historyStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if args[0] == "all" {
			list, err := store.Sessions(ctx)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			for _, s := range list {
				if err := store.Clear(ctx, s.Key); err != nil {
					return fmt.Errorf("clear session %s: %w", s.Key, err)
				}
			}
			fmt.Println("All sessions cleared.")
			return nil
		}

		if err := store.Clear(ctx, args[0]); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Session %s cleared.\n", args[0])
		return nil
	},
}
