package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/resourcebind/pkg/cliconfig"
	"github.com/getmockd/resourcebind/pkg/fetch"
	"github.com/getmockd/resourcebind/pkg/logging"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// globalFlags are the persistent flags available to all subcommands.
type globalFlags struct {
	url       string
	token     string
	timeout   time.Duration
	logLevel  string
	logFormat string
	json      bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags    globalFlags
	loadOpts cliconfig.LoadOptions

	cfg    *cliconfig.Config
	logger *slog.Logger
	client fetch.Client
}

// NewRootCmd builds the rbind command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "rbind",
		Short: "rbind reads and updates Review Board resources",
		Long: `rbind talks to the Review Board web API through typed resource models.

Configuration can be provided via flags, environment variables (RBIND_URL,
RBIND_TOKEN, RBIND_USERNAME, RBIND_TIMEOUT, RBIND_LOG_LEVEL, RBIND_LOG_FORMAT),
a local .rbindrc.yaml, or $XDG_CONFIG_HOME/rbind/config.yaml.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true, // We handle errors in Execute()
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.url, "url", "", "Review Board server URL (default "+cliconfig.DefaultURL+")")
	pf.StringVar(&a.flags.token, "token", "", "API token")
	pf.DurationVar(&a.flags.timeout, "timeout", 0, "Request timeout (default "+cliconfig.DefaultTimeout.String()+")")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "Log format: text, json")
	pf.BoolVar(&a.flags.json, "json", false, "Output command results in JSON format")

	root.AddCommand(
		newBranchesCmd(a),
		newAttachmentCmd(a),
		newDiffFileCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
// This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, FormatError(err))
		stop()
		os.Exit(1)
	}
}

// setup resolves configuration and builds the logger and fetch client.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := cliconfig.Load(a.loadOpts)
	if err != nil {
		return err
	}
	cliconfig.MergeConfig(cfg, a.flagConfig(cmd), cliconfig.SourceFlag)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	a.logger = logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.ParseFormat(cfg.LogFormat),
		Output: cmd.ErrOrStderr(),
	})
	if a.client == nil {
		a.client = fetch.NewHTTPClient(cfg.URL,
			fetch.WithTimeout(cfg.Timeout),
			fetch.WithToken(cfg.Token),
			fetch.WithUserAgent("rbind/"+Version),
			fetch.WithLogger(a.logger),
		)
	}
	a.logger.Debug("configuration resolved", "url", cfg.URL, "urlSource", cfg.Sources["url"])
	return nil
}

// flagConfig returns the flags the user actually passed as a Config.
func (a *app) flagConfig(cmd *cobra.Command) *cliconfig.Config {
	fs := cmd.Flags()
	fc := &cliconfig.Config{SetFields: make(map[string]bool)}
	if fs.Changed("url") {
		fc.URL = a.flags.url
	}
	if fs.Changed("token") {
		fc.Token = a.flags.token
	}
	if fs.Changed("timeout") {
		fc.Timeout = a.flags.timeout
	}
	if fs.Changed("log-level") {
		fc.LogLevel = a.flags.logLevel
	}
	if fs.Changed("log-format") {
		fc.LogFormat = a.flags.logFormat
	}
	if fs.Changed("json") {
		fc.JSON = a.flags.json
		fc.SetFields["json"] = true
	}
	return fc
}
