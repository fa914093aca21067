package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jimshare/bae-ai/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var format string
	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (file, .env and environment merged)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg
			if !showSecrets {
				c = cfg.Redacted()
			}
			f := formatter(cmd)
			if f.IsJSON() {
				return f.JSON(c)
			}
			switch format {
			case "toml":
				return config.Print(c, cmd.OutOrStdout())
			case "yaml":
				return config.PrintYAML(c, cmd.OutOrStdout())
			default:
				return fmt.Errorf("unknown format %q (valid: toml, yaml)", format)
			}
		},
	}
	showCmd.Flags().StringVar(&format, "format", "toml", "output format: toml or yaml")
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print API keys and tokens unmasked")
	cmd.AddCommand(showCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			written, err := config.CreateDefaultAt(path)
			if err != nil {
				return err
			}
			f := formatter(cmd)
			if f.IsJSON() {
				return f.JSON(map[string]string{"path": written})
			}
			f.Success("Created %s", written)
			f.Println("Set ANTHROPIC_API_KEY and the TWILIO_* variables in your environment or a .env file.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			errs := config.Validate(cfg)
			f := formatter(cmd)
			if f.IsJSON() {
				msgs := make([]string, 0, len(errs))
				for _, err := range errs {
					msgs = append(msgs, err.Error())
				}
				if err := f.JSON(map[string]interface{}{"valid": len(errs) == 0, "errors": msgs}); err != nil {
					return err
				}
			} else if len(errs) == 0 {
				f.Success("Configuration is valid")
			} else {
				for _, err := range errs {
					f.Failure("%v", err)
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("configuration has %d error(s)", len(errs))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			formatter(cmd).Println(path)
			return nil
		},
	})

	return cmd
}
