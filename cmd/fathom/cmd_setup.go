package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/fathom/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive configuration wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		in := bufio.NewScanner(os.Stdin)

		fmt.Println("Fathom Setup Wizard")
		fmt.Println("Press Enter to keep the value shown in brackets.")
		fmt.Println()

		cfg.LLM.BaseURL = prompt(in, "LLM base URL", cfg.LLM.BaseURL)
		cfg.LLM.APIKey = prompt(in, "LLM API key", cfg.LLM.APIKey)
		cfg.LLM.Model = prompt(in, "LLM model name", cfg.LLM.Model)
		cfg.LLM.MaxTokens = promptInt(in, "Max output tokens", cfg.LLM.MaxTokens)
		cfg.Listen = prompt(in, "HTTP listen address", cfg.Listen)
		cfg.Brave.APIKey = prompt(in, "Brave API key (optional, enables web_search)", cfg.Brave.APIKey)
		cfg.Postgres.DSN = prompt(in, "Postgres DSN (optional, persists history)", cfg.Postgres.DSN)
		cfg.Redis.Addr = prompt(in, "Redis address (optional, shared tool cache)", cfg.Redis.Addr)
		cfg.Telegram.Token = prompt(in, "Telegram bot token (optional, task delivery)", cfg.Telegram.Token)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Config written to", cfgPath)
		return nil
	},
}

// prompt asks for one value, returning def when the user just hits Enter.
func prompt(in *bufio.Scanner, label, def string) string {
	if def == "" {
		fmt.Printf("%s: ", label)
	} else {
		fmt.Printf("%s [%s]: ", label, def)
	}
	if !in.Scan() {
		return def
	}
	if text := strings.TrimSpace(in.Text()); text != "" {
		return text
	}
	return def
}

// promptInt is prompt for numeric fields; unparseable input keeps def.
func promptInt(in *bufio.Scanner, label string, def int) int {
	if n, err := strconv.Atoi(prompt(in, label, strconv.Itoa(def))); err == nil {
		return n
	}
	return def
}
