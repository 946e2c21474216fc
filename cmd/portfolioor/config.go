package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Load the --config files, .env and PORTFOLIOOR_* environment overrides,
validate the result and print it as YAML. Secrets are redacted.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

const redacted = "<redacted>"

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Work on a copy so that redaction never leaks into a running config.
	out := *cfg

	redact(&out.Database.Postgres.Password)
	redact(&out.Auth.Firebase.APIKey)
	redact(&out.Auth.Local.Secret)
	redact(&out.GitHub.Token)

	if out.Storage.S3 != nil {
		s3 := *out.Storage.S3
		redact(&s3.SecretAccessKey)
		out.Storage.S3 = &s3
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)

	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	return enc.Close()
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
