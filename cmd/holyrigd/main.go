// Command holyrigd runs the HolyRig CAT control daemon: it compiles each
// configured rig's schema and model, starts one RigInstance per rig, and
// serves the JSON-RPC-over-UDP Dispatcher described in spec.md §4-6.
//
// Grounded on tab-fuku/internal/app/cli/commands.go's cobra wiring: a root
// command with a default action plus named subcommands. Each subcommand's
// RunE returns its error through cobra, and main prints it and exits 1.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/iarc-il/holyrig/config"
	"github.com/iarc-il/holyrig/dispatch"
	"github.com/iarc-il/holyrig/metrics"
	"github.com/iarc-il/holyrig/model"
	"github.com/iarc-il/holyrig/rpc"
	"github.com/iarc-il/holyrig/runtime"
	"github.com/iarc-il/holyrig/schema"
	"github.com/iarc-il/holyrig/subscription"
)

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "holyrigd",
		Short:         "CAT/transceiver control daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "holyrig.yaml", "path to the daemon config file")

	root.AddCommand(buildServeCommand(&configPath))
	root.AddCommand(buildValidateSchemaCommand())
	root.AddCommand(buildValidateModelCommand())

	return root
}

func buildServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*configPath)
		},
	}
}

func buildValidateSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-schema <file>",
		Short: "Compile a schema file and report errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if _, err := schema.Parse(string(src)); err != nil {
				return err
			}
			fmt.Println("schema OK")
			return nil
		},
	}
}

func buildValidateModelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-model <schema> <model>",
		Short: "Compile a model file against a schema and report errors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaSrc, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sch, err := schema.Parse(string(schemaSrc))
			if err != nil {
				return err
			}
			modelSrc, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if _, err := model.Compile(modelSrc, sch); err != nil {
				return err
			}
			fmt.Println("model OK")
			return nil
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer = os.Stdout
	if cfg.Logging.Format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg)

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	subs := subscription.NewManager(cfg.Subscriptions.QueueDepth)

	rigs := map[string]*runtime.RigInstance{}
	dispatchRigs := map[string]dispatch.Rig{}

	for _, rc := range cfg.Rigs {
		m, err := compileRig(rc)
		if err != nil {
			log.Error().Str("rig", rc.ID).Err(err).Msg("rig configuration invalid, disabling")
			continue
		}

		instance := runtime.New(runtime.Config{
			ID:              rc.ID,
			Model:           m,
			Dial:            dialSerial(rc.Port),
			Sink:            subs,
			Metrics:         reg,
			InitRetries:     rc.InitRetries,
			ReconnectEvery:  rc.ReconnectEvery,
			ExchangeTimeout: rc.ExchangeTimeout,
			TimeoutLimit:    rc.TimeoutLimit,
		}, log.With().Str("rig", rc.ID).Logger())

		rigs[rc.ID] = instance
		dispatchRigs[rc.ID] = instance
		go instance.Run()
	}

	d := dispatch.New(dispatchRigs, subs, log)

	server, err := rpc.Listen(cfg.RPC.ListenAddr, d, log)
	if err != nil {
		return fmt.Errorf("listen rpc: %w", err)
	}
	defer server.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Str("addr", cfg.RPC.ListenAddr).Int("rigs", len(rigs)).Msg("holyrigd listening")

	// The RPC server and the optional metrics server run as sibling tasks
	// under one errgroup: either one failing cancels ctx for the other, and
	// Wait reports whichever error actually caused the shutdown instead of
	// losing it in a detached goroutine.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })
	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.ListenAddr) })
	}

	err = g.Wait()
	for _, r := range rigs {
		r.Disable()
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func compileRig(rc config.RigConfig) (*model.Model, error) {
	schemaSrc, err := os.ReadFile(rc.SchemaFile)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	sch, err := schema.Parse(string(schemaSrc))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	modelSrc, err := os.ReadFile(rc.ModelFile)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	m, err := model.Compile(modelSrc, sch)
	if err != nil {
		return nil, fmt.Errorf("compile model: %w", err)
	}
	return m, nil
}

// dialSerial opens the configured port as a byte stream. No serial-port
// library appears anywhere in the example pack (see DESIGN.md), so this
// treats the port path as an already-configured character device (the
// common shape on Linux once stty has set line discipline/baud out of
// process) and opens it with stdlib os.OpenFile; read deadlines are passed
// straight to os.File.SetReadDeadline (see fileChannel).
func dialSerial(port string) runtime.Dial {
	return func() (runtime.Channel, error) {
		f, err := os.OpenFile(port, os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		return &fileChannel{f: f}, nil
	}
}

// fileChannel adapts *os.File to runtime.Channel. SetReadDeadline is
// best-effort: os.File's deadline support depends on the underlying
// descriptor type (character devices generally support it on Linux).
type fileChannel struct {
	f *os.File
}

func (c *fileChannel) Write(p []byte) (int, error) { return c.f.Write(p) }
func (c *fileChannel) Read(p []byte) (int, error)  { return c.f.Read(p) }
func (c *fileChannel) Close() error                { return c.f.Close() }
func (c *fileChannel) SetReadDeadline(t time.Time) error {
	return c.f.SetReadDeadline(t)
}

// serveMetrics runs the Prometheus /metrics endpoint until ctx is canceled.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
