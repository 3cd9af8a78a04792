// Command salvo is the CLI entry point.
//
// Two players link their game instances directly: one hosts, the other
// joins. The link carries typed game packets over TCP, WebSocket or a
// WebRTC DataChannel and ends with a controlled close handshake.
//
// It can be launched interactively (no subcommand) or non-interactively via
// the host and join subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/salvo/internal/app"
	"github.com/1ureka/salvo/internal/config"
	"github.com/1ureka/salvo/internal/link"
	"github.com/1ureka/salvo/internal/util"
)

var version = "dev"

const statsInterval = 10 * time.Second

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd(&flags{}).ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// flags holds the options shared by every subcommand. Only flags set on the
// command line override the configuration file.
type flags struct {
	configPath string
	transport  string
	host       string
	port       int
	timeout    time.Duration
	retry      bool
	metrics    string
	debug      bool
}

func rootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salvo",
		Short: "Peer-to-peer link for a two-player naval battle",
		Long: `Salvo links two game instances directly.

One player hosts, the other joins with the host's address. Game packets
travel over raw TCP, WebSocket or a WebRTC DataChannel. Without a
subcommand salvo asks for the role and address interactively.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd, "")
			if err != nil {
				return err
			}
			if err := askInteractive(&cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Configuration file (default "+config.DefaultPath+")")
	pf.StringVarP(&f.transport, "transport", "t", string(config.TransportTCP), "Transport: tcp, ws or webrtc")
	pf.StringVarP(&f.host, "host", "H", "127.0.0.1", "Bind address (host) or host address (join)")
	pf.IntVarP(&f.port, "port", "p", config.DefaultPort, "Game port")
	pf.DurationVar(&f.timeout, "timeout", time.Second, "Per-attempt connect timeout")
	pf.BoolVar(&f.retry, "retry", false, "Keep retrying while the host is not listening yet")
	pf.StringVar(&f.metrics, "metrics", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9100")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		hostCmd(f),
		joinCmd(f),
		versionCmd(),
	)
	return cmd
}

func hostCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Wait for an opponent to join",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd, config.RoleHost)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func joinCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "join [host]",
		Short: "Join a hosted game",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd, config.RoleClient)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Host = args[0]
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("salvo %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// config loads the configuration file and applies the flags that were set
// explicitly. A non-empty role overrides the file.
func (f *flags) config(cmd *cobra.Command, role config.Role) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if role != "" {
		cfg.Role = role
	}

	set := cmd.Flags().Changed
	if set("transport") {
		cfg.Transport = config.Transport(strings.ToLower(f.transport))
	}
	if set("host") {
		cfg.Host = f.host
	}
	if set("port") {
		cfg.Port = f.port
	}
	if set("timeout") {
		cfg.ConnectTimeout = config.Duration(f.timeout)
	}
	if set("retry") {
		cfg.RetryRefused = f.retry
	}
	if set("metrics") {
		cfg.MetricsAddr = f.metrics
	}
	if set("debug") {
		cfg.Debug = f.debug
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// run opens the link, waits for the opponent and hands the session to the
// console until it is over.
func run(ctx context.Context, cfg config.Config) error {
	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Salvo v%s", version))
	pterm.Println()

	if cfg.MetricsAddr != "" {
		addr, err := util.ServeMetrics(ctx, cfg.MetricsAddr)
		if err != nil {
			return err
		}
		util.LogInfo("metrics available at http://%s/metrics", addr)
	}

	c, addr, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	waiting := fmt.Sprintf("connecting to %s over %s...", cfg.Address(), cfg.Transport)
	if addr != nil {
		waiting = fmt.Sprintf("waiting for an opponent on %s (%s)...", addr, cfg.Transport)
	}
	spinner, _ := pterm.DefaultSpinner.Start(waiting)

	select {
	case <-c.Ready():
		spinner.Success("opponent connected")
	case <-c.Done():
		if c.Closure() == link.ClosureAbrupt {
			spinner.Fail("could not connect")
			return describeFailure(c.Err())
		}
		spinner.Warning("cancelled")
		return nil
	}

	util.StartStatsReporter(ctx, statsInterval)
	pterm.Println(app.Usage)
	pterm.Println()

	result, _ := app.Console(ctx, c, os.Stdin, os.Stdout)
	if result == link.ClosureAbrupt {
		return fmt.Errorf("session lost: %w", c.Err())
	}
	util.LogSuccess("session closed")
	return nil
}

// describeFailure turns establishment errors into advice for the user.
func describeFailure(err error) error {
	switch {
	case errors.Is(err, link.ErrConnectRefused):
		return fmt.Errorf("%w (is the host running? use --retry to wait for it)", err)
	case errors.Is(err, link.ErrBind):
		return fmt.Errorf("%w (is the port already in use?)", err)
	}
	return err
}

// ---------------------------------------------------------------------------
// Interactive prompts
// ---------------------------------------------------------------------------

// askInteractive fills role, transport and address from prompts.
func askInteractive(cfg *config.Config) error {
	role, err := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host: wait for an opponent", "Join: connect to a host"}).
		WithDefaultText("Select your role").
		Show()
	if err != nil {
		return err
	}
	pterm.Println()

	tr, err := pterm.DefaultInteractiveSelect.
		WithOptions([]string{string(config.TransportTCP), string(config.TransportWS), string(config.TransportWebRTC)}).
		WithDefaultText("Select the transport").
		Show()
	if err != nil {
		return err
	}
	cfg.Transport = config.Transport(tr)
	pterm.Println()

	if strings.HasPrefix(role, "Host") {
		cfg.Role = config.RoleHost
		cfg.Port = askPort("Game port to listen on (1 ~ 65535)")
		return nil
	}

	cfg.Role = config.RoleClient
	cfg.Host = askHost()
	cfg.Port = askPort("Game port of the host (1 ~ 65535)")
	return nil
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return port
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askHost prompts the user for the host address until a non-empty one is
// entered.
func askHost() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Host address (e.g. 192.168.1.20)").
			Show()

		if host := strings.TrimSpace(raw); host != "" {
			pterm.Println()
			return host
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a host name or IP address")
	}
}
