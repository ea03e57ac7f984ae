package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"sapex/backend/internal/analysis"
	"sapex/backend/internal/app"
	"sapex/backend/internal/config"
	"sapex/backend/internal/models"
	"sapex/backend/internal/observability"
	"sapex/backend/internal/storage"
)

const usage = `Usage: admin <command> [args]

Commands:
  assign <session_id> <helper_id>   assign a helper to a waiting session
  open                              list open sessions, oldest first
  stats                             print queue and helper outcome stats as JSON`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Println(usage)
		return 1
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}
	observability.InitLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore, err := app.OpenStorage(ctx, cfg)
	if err != nil {
		slog.Error("open storage", "error", err)
		return 1
	}
	defer func() {
		if err := closeStore(); err != nil {
			slog.Warn("close storage", "error", err)
		}
	}()

	switch args[0] {
	case "assign":
		if len(args) != 3 {
			fmt.Println("Usage: admin assign <session_id> <helper_id>")
			return 1
		}
		err = assign(ctx, store, args[1], args[2])
	case "open":
		err = listOpen(ctx, store)
	case "stats":
		err = stats(ctx, store)
	default:
		fmt.Println(usage)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func assign(ctx context.Context, s storage.Storage, sessionID, helperID string) error {
	if err := s.AssignHelper(ctx, sessionID, helperID); err != nil {
		if errors.Is(err, storage.ErrAlreadyMatched) {
			return fmt.Errorf("session %s already has a helper", sessionID)
		}
		return err
	}
	if err := s.RemoveHelperFromPool(ctx, helperID); err != nil {
		slog.Warn("helper assigned but still in pool", "helper_id", helperID, "error", err)
	}
	fmt.Printf("Session %s assigned to helper %s.\n", sessionID, helperID)
	return nil
}

func listOpen(ctx context.Context, s storage.Storage) error {
	sessions, err := s.QuerySessions(ctx, models.SessionQuery{OpenOnly: true})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOPIC\tSEEKER\tHELPER\tNOTIFIED\tCREATED")
	for _, sess := range sessions {
		helper := sess.Helper()
		if helper == "" {
			helper = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			sess.ID, sess.Topic, sess.SeekerID, helper, sess.Notified, sess.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func stats(ctx context.Context, s storage.Storage) error {
	sessions, err := s.QuerySessions(ctx, models.SessionQuery{})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(analysis.Summarize(sessions))
}
