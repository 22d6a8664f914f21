package main

import (
	"log"

	"github.com/spf13/cobra"

	_ "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/registry_ext"
)

var (
	Version = "v0.1.0"

	configPath string
	env        string
)

func main() {
	root := &cobra.Command{
		Use:           "taskmanager",
		Short:         "Distributed task claiming node",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file (yaml or json)")
	root.PersistentFlags().StringVarP(&env, "env", "e", "development", "runtime environment")

	root.AddCommand(newServeCmd(), newClaimCmd(), newPartitionsCmd())
	if err := root.Execute(); err != nil {
		log.Fatalf("taskmanager exited with error: %v", err)
	}
}
