package cmd

import (
	"testing"

	"github.com/spf13/cobra"
)

func subcommand(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, c := range parent.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("command %q is not registered under %q", name, parent.Name())
	return nil
}

func TestCommandTree(t *testing.T) {
	if rootCmd.RunE == nil {
		t.Fatal("root without subcommand must run the API server")
	}
	subcommand(t, rootCmd, "api")
	subcommand(t, rootCmd, "reindex-search")
	migrate := subcommand(t, rootCmd, "migrate")
	subcommand(t, migrate, "up")
}
