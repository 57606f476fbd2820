package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dejo1307/verusreport/internal/config"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:   "verusreport",
		Short: "Function inventory and verification reports for Verus projects",
		Long: `verusreport lists the functions of a Verus/Rust source tree, including those
declared inside verus! and cfg_if! blocks, and turns the captured output of a
verification run into a structured report.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	// Global flags
	root.PersistentFlags().String("config", "", "config file (default is ./"+config.DefaultFile+" when present)")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	root.PersistentFlags().BoolP("quiet", "q", false, "suppress log output")
	root.PersistentFlags().Int("workers", 0, "parallel file parsers (default GOMAXPROCS)")

	// Bind flags to viper
	for _, name := range []string{"config", "verbose", "quiet", "workers"} {
		_ = a.v.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}
	a.v.SetEnvPrefix("VERUSREPORT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.newFunctionsCmd(),
		a.newReportCmd(),
		a.newServeCmd(),
		a.newVersionCmd(),
	)
	return root
}

// init sets up logging and loads the configuration.
func (a *app) init() error {
	switch {
	case a.v.GetBool("quiet"):
		log.SetOutput(io.Discard)
	case a.v.GetBool("verbose"):
		log.SetOutput(a.stderr)
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	default:
		log.SetOutput(a.stderr)
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.v.IsSet("workers") && a.v.GetInt("workers") != 0 {
		cfg.Extractor.Workers = a.v.GetInt("workers")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	path := a.v.GetString("config")
	if path != "" {
		return config.Load(path)
	}

	cfg, err := config.Load(config.DefaultFile)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if a.v.GetBool("verbose") {
		fmt.Fprintln(a.stderr, "Using config file:", config.DefaultFile)
	}
	return cfg, nil
}

// bindFlags binds command flags to viper keys so they can also be set from
// VERUSREPORT_* environment variables.
func (a *app) bindFlags(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		_ = a.v.BindPFlag(cmd.Name()+"."+name, cmd.Flags().Lookup(name))
		_ = a.v.BindEnv(cmd.Name()+"."+name, "VERUSREPORT_"+strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
	}
}

func (a *app) getBool(cmd *cobra.Command, name string) bool {
	return a.v.GetBool(cmd.Name() + "." + name)
}

func (a *app) getString(cmd *cobra.Command, name string) string {
	return a.v.GetString(cmd.Name() + "." + name)
}

// output opens the -o destination, or stdout when empty.
func (a *app) output(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return a.stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, f.Close, nil
}

// rootArg returns the source path argument, or the configured root.
func (a *app) rootArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return a.cfg.Root
}
