package main

import (
	"fmt"
	"strings"

	"reelbar/internal/adapter"

	"github.com/spf13/cobra"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List the registered page kinds",
	RunE:  runAdaptersList,
}

var adaptersMatchCmd = &cobra.Command{
	Use:   "match [url]",
	Short: "Show which page kinds apply to a URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdaptersMatch,
}

func init() {
	adaptersCmd.AddCommand(adaptersMatchCmd)
}

// loadRegistry returns the built-ins overlaid by the configured adapters file.
func loadRegistry() (*adapter.Registry, error) {
	r := adapter.BuiltinRegistry()
	if err := r.Reload(cfg.AdaptersFile); err != nil {
		return nil, fmt.Errorf("failed to load adapters: %w", err)
	}
	return r, nil
}

func runAdaptersList(cmd *cobra.Command, args []string) error {
	r, err := loadRegistry()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, d := range r.Definitions() {
		fmt.Fprintf(out, "%s\n", d.Kind)
		fmt.Fprintf(out, "  urls:      %s\n", strings.Join(d.URLPatterns, ", "))
		fmt.Fprintf(out, "  container: %s\n", d.Container)
		fmt.Fprintf(out, "  items:     %s [%s]\n", d.Items, d.ActiveAttribute)
		fmt.Fprintf(out, "  mount:     %s (media %s)\n", d.AttachPoint, d.Media)
	}
	return nil
}

func runAdaptersMatch(cmd *cobra.Command, args []string) error {
	r, err := loadRegistry()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	matches := r.Match(args[0])
	if len(matches) == 0 {
		fmt.Fprintf(out, "No page kind applies to %s\n", args[0])
		return nil
	}
	for _, d := range matches {
		fmt.Fprintln(out, d.Kind)
	}
	return nil
}
