package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/facereg/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "facereg",
	Short: "Face registration and verification service",
	Long: `facereg keeps per-tenant face embeddings in memory, rejects duplicate
registrations of the same person, and verifies probes against the
registered identities. State is written through to a snapshot on every
mutation.`,
	RunE:          runServe,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a config file (defaults to config/$ENV.yaml)")
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the explicit --config file or the one selected by ENV.
func loadConfig() (config.Config, string, error) {
	env := config.GetEnv()
	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		return cfg, env, err
	}
	cfg, err := config.Load(env)
	return cfg, env, err
}
