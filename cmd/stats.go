package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/frontdesk/internal/config"
	"github.com/nextlevelbuilder/frontdesk/internal/conversation"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stored conversation statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context())
		},
	}
}

func runStats(ctx context.Context) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	kv, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer kv.Close()

	log := conversation.NewLog(kv)
	keys, err := log.Keys()
	if err != nil {
		return err
	}

	perPersona := make(map[string]int)
	totalTurns := 0
	conversations := 0
	for _, key := range keys {
		history, err := log.History(key)
		if err != nil {
			continue
		}
		conversations++
		totalTurns += len(history)
		if i := strings.Index(key, ":"); i > 0 {
			perPersona[key[:i]]++
		}
	}

	fmt.Printf("Conversations: %d\n", conversations)
	fmt.Printf("Total turns:   %d\n", totalTurns)
	for persona, n := range perPersona {
		fmt.Printf("  %-16s %d\n", persona, n)
	}
	return nil
}
