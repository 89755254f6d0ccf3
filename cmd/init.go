package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/frontdesk/internal/config"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively create a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	path := resolveConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, remove it first or pass --config", path)
	}

	cfg := config.Default()
	persona := config.PersonaConfig{Name: "main"}
	backend := "file"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Persona name").
				Description("Stable identifier for this bot number, used in storage keys.").
				Value(&persona.Name),
			huh.NewInput().
				Title("WhatsApp bridge URL").
				Placeholder("ws://localhost:8765").
				Value(&persona.BridgeURL),
			huh.NewInput().
				Title("LLM model").
				Value(&cfg.LLM.Model),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Staff chat for general tickets (chat ID)").
				Value(&persona.Routing.General),
			huh.NewInput().
				Title("Staff chat for accounting tickets (chat ID)").
				Value(&persona.Routing.Accounting),
			huh.NewInput().
				Title("Staff chat for admin tickets (chat ID)").
				Value(&persona.Routing.Admin),
			huh.NewInput().
				Title("Fallback phone quoted when dispatch fails (optional)").
				Value(&persona.FallbackPhone),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage backend").
				Options(
					huh.NewOption("File per conversation (default)", "file"),
					huh.NewOption("SQLite", "sqlite"),
					huh.NewOption("PostgreSQL (FRONTDESK_POSTGRES_DSN)", "postgres"),
				).
				Value(&backend),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("onboarding aborted: %w", err)
	}

	cfg.Storage.Backend = backend
	cfg.Personas = []config.PersonaConfig{persona}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Printf("Wrote %s.\n", path)
	fmt.Println("Set FRONTDESK_OPENAI_API_KEY before running. Start with: frontdesk run")
	return nil
}
