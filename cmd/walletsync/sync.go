package main

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/walletbase/walletsync/internal/config"
	"github.com/walletbase/walletsync/internal/remote"
	"github.com/walletbase/walletsync/internal/store"
	syncengine "github.com/walletbase/walletsync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full pull+push cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), true)
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Run one push-only cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), false)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the sync checkpoint and pending local changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		initLogger(cfg)

		db, err := store.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		cp, err := db.Checkpoint(ctx)
		if err != nil {
			return err
		}
		pending, err := db.PendingCounts(ctx)
		if err != nil {
			return err
		}

		if cp == 0 {
			fmt.Println("checkpoint: never synced")
		} else {
			fmt.Printf("checkpoint: %d (%s)\n", cp,
				time.UnixMilli(int64(cp)).UTC().Format(time.RFC3339))
		}
		if len(pending) == 0 {
			fmt.Println("pending:    none")
			return nil
		}
		tables := make([]string, 0, len(pending))
		for table := range pending {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			fmt.Printf("pending:    %s %d\n", table, pending[table])
		}
		return nil
	},
}

func runOnce(ctx context.Context, withPull bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogger(cfg)

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	client := remote.New(cfg.Remote.BaseURL, cfg.Remote.Token,
		&http.Client{Timeout: time.Duration(cfg.Remote.Timeout)})
	puller := syncengine.NewPuller(client, db, db, syncengine.NotifierFunc(func(msg string) {
		fmt.Println("server message:", msg)
	}))
	pusher := syncengine.NewPusher(client, db, db)
	orchestrator := syncengine.NewOrchestrator(puller, pusher, db)

	if withPull {
		return orchestrator.Sync(ctx)
	}
	return orchestrator.PushOnly(ctx)
}
