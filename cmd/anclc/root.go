package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orizon-lang/ancl/internal/cli"
	"github.com/orizon-lang/ancl/internal/driver"
)

// rootOptions holds the global flags. Flags given on the command line
// override the configuration file.
type rootOptions struct {
	ConfigFile string
	Verbose    bool
	Debug      bool
	LogTopics  string
	Syntax     string
	Allocator  string
	NoOpt      bool

	config *cli.Config
	logger *cli.Logger
}

func newRootCommand(stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "anclc",
		Short: "anclc - IR to x86-64 assembly compiler",
		Long: `anclc optimizes textual IR, lowers it to machine IR, selects AMD64
instructions, allocates registers and writes GAS or Intel assembly.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd, stderr)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&opts.Debug, "debug", false, "debug output, enables every log topic")
	flags.StringVar(&opts.LogTopics, "log-topics", "", "comma separated pass log topics, * for all")
	flags.StringVar(&opts.Syntax, "syntax", "gas", "assembly syntax (gas|intel)")
	flags.StringVar(&opts.Allocator, "allocator", "linear-scan", "register allocator")
	flags.BoolVar(&opts.NoOpt, "O0", false, "skip the IR optimizer")

	cmd.AddCommand(newCompileCommand(opts))
	cmd.AddCommand(newDumpCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func (o *rootOptions) setup(cmd *cobra.Command, stderr io.Writer) error {
	config, err := cli.LoadConfig(o.ConfigFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("syntax") {
		config.Syntax = o.Syntax
	}
	if flags.Changed("allocator") {
		config.Allocator = o.Allocator
	}
	if flags.Changed("log-topics") {
		config.LogTopics = o.LogTopics
	}
	if o.NoOpt {
		config.Optimize = false
	}
	if err := config.Validate(); err != nil {
		return err
	}
	o.config = config
	o.logger = cli.NewLogger(stderr, o.Verbose, o.Debug)
	o.logger.Install(config.LogTopics)
	return nil
}

func (o *rootOptions) driver() (*driver.Driver, error) {
	return driver.New(o.config, o.logger.Session)
}

// execute runs the command tree and returns the exit status.
func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stderr)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	return cli.HandleError(stderr, err, nil)
}
