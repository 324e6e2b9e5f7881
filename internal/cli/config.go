package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alnah/go-voicenote/internal/config"
)

// configKeysHelp describes each supported setting for help text.
var configKeysHelp = `  output-dir       Directory for local copies and the local backend
  upload-backend   local, s3, gcs or rest
  upload-folder    Folder (object key prefix) for uploaded notes
  bucket           Bucket name for s3, gcs and rest
  public-base-url  Base URL prefixed to uploaded object keys
  rest-endpoint    Upload endpoint for the rest backend
  min-bytes        Smallest recording accepted for upload
  settle-delay     Wait after stop before finalizing (300ms-500ms)
  max-duration     Recording length limit
  outbox-path      SQLite database for notes that failed to upload`

// ConfigCmd creates the config command with subcommands.
// The env parameter provides injectable dependencies for testing.
func ConfigCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage persistent configuration settings.

Configuration is stored in ~/.config/go-voicenote/config.
Every setting can be overridden with a VOICENOTE_* environment variable.

Supported settings:
` + configKeysHelp,
		Example: `  voicenote config set upload-backend s3
  voicenote config set bucket my-notes
  voicenote config get upload-backend
  voicenote config list`,
	}

	cmd.AddCommand(configSetCmd(env))
	cmd.AddCommand(configGetCmd(env))
	cmd.AddCommand(configListCmd(env))

	return cmd
}

// configSetCmd creates the "config set" subcommand.
func configSetCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value.

Supported keys:
` + configKeysHelp + `

The output directory is created if it doesn't exist.`,
		Example: `  voicenote config set output-dir ~/Documents/voicenotes
  voicenote config set settle-delay 450ms`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSet(env, args[0], args[1])
		},
	}
}

// configGetCmd creates the "config get" subcommand.
func configGetCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long: `Get a configuration value.

Prints the value to stdout, or nothing if not set.`,
		Example: `  voicenote config get upload-backend`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigGet(env, args[0])
		},
	}
}

// configListCmd creates the "config list" subcommand.
func configListCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Long: `List all configuration values.

Shows both values from the config file and environment variable overrides.`,
		Example: `  voicenote config list`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigList(env)
		},
	}
}

// runConfigSet handles the "config set" command.
func runConfigSet(env *Env, key, value string) error {
	if err := config.Validate(key, value); err != nil {
		return err
	}

	switch key {
	case config.KeyOutputDir, config.KeyOutboxPath:
		value = config.ExpandPath(value)
	}
	if key == config.KeyOutputDir {
		if err := config.EnsureOutputDir(value); err != nil {
			return fmt.Errorf("invalid output-dir: %w", err)
		}
	}

	if err := config.Save(key, value); err != nil {
		return err
	}

	fmt.Fprintf(env.Stderr, "Set %s = %s\n", key, value)
	return nil
}

// runConfigGet handles the "config get" command.
func runConfigGet(env *Env, key string) error {
	if !slices.Contains(config.Keys(), key) {
		return fmt.Errorf("%w: %q (valid: %s)", config.ErrUnknownKey, key, strings.Join(config.Keys(), ", "))
	}

	value, err := config.Get(key)
	if err != nil {
		return err
	}

	// Check environment variable fallback.
	if value == "" {
		value = env.Getenv(config.EnvFor(key))
	}

	if value != "" {
		fmt.Fprintln(env.Stdout, value)
	}

	return nil
}

// runConfigList handles the "config list" command.
func runConfigList(env *Env) error {
	data, err := config.List()
	if err != nil {
		return err
	}

	// Add environment variable values for completeness.
	for _, key := range config.Keys() {
		if _, ok := data[key]; ok {
			continue
		}
		if envVal := env.Getenv(config.EnvFor(key)); envVal != "" {
			data[key] = envVal + " (from env)"
		}
	}

	if len(data) == 0 {
		fmt.Fprintln(env.Stdout, "No configuration set.")
		fmt.Fprintln(env.Stdout, "\nAvailable settings:")
		for _, key := range config.Keys() {
			fmt.Fprintf(env.Stdout, "  %s (env: %s)\n", key, config.EnvFor(key))
		}
		return nil
	}

	for _, key := range config.Keys() {
		if value, ok := data[key]; ok {
			fmt.Fprintf(env.Stdout, "%s=%s\n", key, value)
		}
	}

	return nil
}
