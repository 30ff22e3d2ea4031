package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vk/modforge/internal/app"
)

// Version is the modforge release, set at link time.
var Version = "dev"

// Command names the action the user asked for.
type Command string

const (
	CommandBuild Command = "build"
	CommandPlan  Command = "plan"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Invocation is a parsed command line.
type Invocation struct {
	Command Command
	Config  *app.Config
}

// Parse processes command-line arguments. It returns the parsed invocation,
// a boolean indicating if the program should exit cleanly (help, version),
// or an ExitError with code 2 for usage errors.
//
// Settings come from flags, then MODFORGE_* environment variables, then
// .modforge.yaml in the working or home directory (or --config).
func Parse(args []string, output io.Writer) (*Invocation, bool, error) {
	v := viper.New()
	var inv *Invocation

	root := &cobra.Command{
		Use:           "modforge",
		Short:         "Config-driven build and release orchestrator for script modules",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.SetArgs(append([]string{}, args...))
	root.SetOut(output)
	root.SetErr(output)
	root.PersistentFlags().String("config", "", "config file (default .modforge.yaml)")
	root.PersistentFlags().String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	root.PersistentFlags().String("log-format", "text", "Log output format. Options: 'text' or 'json'.")

	build := &cobra.Command{
		Use:   "build [PATH]",
		Short: "Resolve the build definition and run every step",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(v, cmd, args)
			if err != nil {
				return err
			}
			cfg.Watch = v.GetBool("watch")
			inv = &Invocation{Command: CommandBuild, Config: cfg}
			return nil
		},
	}
	addResolutionFlags(build.Flags())
	build.Flags().Bool("watch", false, "Rebuild whenever the sources change.")

	planCmd := &cobra.Command{
		Use:   "plan [PATH]",
		Short: "Print the resolved plan and step list without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(v, cmd, args)
			if err != nil {
				return err
			}
			inv = &Invocation{Command: CommandPlan, Config: cfg}
			return nil
		},
	}
	addResolutionFlags(planCmd.Flags())

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the modforge version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "modforge %s\n", Version)
		},
	}

	root.AddCommand(build, planCmd, versionCmd)

	if err := root.Execute(); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if inv == nil {
		return nil, true, nil
	}
	return inv, false, nil
}

func addResolutionFlags(fs *pflag.FlagSet) {
	fs.String("name", "", "Module name, overriding the build definition.")
	fs.String("source-root", "", "Module source directory (default: the definition's directory).")
	fs.String("staging", "", "Staging directory (default: a generated temp directory).")
	fs.Bool("remote", false, "Resolve 'latest' dependencies against remote repositories.")
	fs.String("remote-repository", "", "Repository queried when a dependency names none.")
	fs.StringSlice("module-root", nil, "Directory holding installed modules. Repeatable.")
	fs.String("shell", "", "Shell that runs tool scripts (default pwsh).")
}

// configFrom binds the executed command's flags into v, reads the settings
// file and environment, and builds the app config.
func configFrom(v *viper.Viper, cmd *cobra.Command, args []string) (*app.Config, error) {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := readSettings(v, cmd); err != nil {
		return nil, err
	}

	cfg := app.Config{
		ModuleName:       v.GetString("name"),
		SourceRoot:       v.GetString("source-root"),
		StagingPath:      v.GetString("staging"),
		RemoteRepository: v.GetString("remote-repository"),
		ModuleRoots:      v.GetStringSlice("module-root"),
		Shell:            v.GetString("shell"),
		LogLevel:         v.GetString("log-level"),
		LogFormat:        v.GetString("log-format"),
	}
	if len(args) > 0 {
		cfg.Paths = []string{args[0]}
	}
	if v.IsSet("remote") {
		remote := v.GetBool("remote")
		cfg.Remote = &remote
	}
	return app.NewConfig(cfg)
}

func readSettings(v *viper.Viper, cmd *cobra.Command) error {
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".modforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix("MODFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read settings: %w", err)
	}
	return nil
}
