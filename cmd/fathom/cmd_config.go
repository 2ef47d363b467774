package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/fathom/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit configuration",
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"show"},
	Short:   "List every config key and value",
	Args:    cobra.NoArgs,
	RunE:    runConfigList,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one config value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Update one config value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func runConfigList(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	values, err := config.ListValues(cfg, true)
	if err != nil {
		return fmt.Errorf("list config: %w", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%v\n", k, values[k])
	}
	return w.Flush()
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	val, err := config.GetValue(cfgPath, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, val)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := config.SetValue(cfgPath, key, value); err != nil {
		return err
	}
	if config.IsSecretKey(key) {
		value = "***"
	}
	fmt.Fprintf(os.Stdout, "Set %s = %s\n", key, value)
	return nil
}
