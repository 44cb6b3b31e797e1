package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/YaganovValera/optionstream/internal/app"
	"github.com/YaganovValera/optionstream/internal/config"
	"github.com/YaganovValera/optionstream/pkg/validator"
)

var errNoMatch = errors.New("no match")

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errNoMatch) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "optionstream",
		Short:         "Stream, filter and forward trading websocket frames",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newCheckCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		cfgFile     string
		printConfig bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Forward validated frames and captured logs to Kafka",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if printConfig {
				out, err := cfg.Print()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return app.Run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to config file (env "+config.EnvPrefix+"_* overrides)")
	cmd.Flags().BoolVar(&printConfig, "print-config", false, "print the loaded configuration before starting")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var spec string
	cmd := &cobra.Command{
		Use:   "check MESSAGE...",
		Short: "Evaluate a validator against a message",
		Example: `  optionstream check --validator '{"kind":"all","children":[` +
			`{"kind":"starts_with","value":"ORDER:"},{"kind":"contains","value":"EURUSD"}]}' ` +
			`"ORDER: BUY EURUSD 100 60"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s validator.Spec
			if err := json.Unmarshal([]byte(spec), &s); err != nil {
				return fmt.Errorf("parse --validator: %w", err)
			}
			v, err := s.Build()
			if err != nil {
				return err
			}
			msg := strings.Join(args, " ")
			ok := v.Check(msg)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", v, ok)
			if !ok {
				return errNoMatch
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "validator", "{}", "validator as JSON")
	return cmd
}
