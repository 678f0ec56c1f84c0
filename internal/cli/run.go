package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/notnil/cannode/canbus"
	"github.com/notnil/cannode/gpio"
	"github.com/notnil/cannode/internal/config"
	"github.com/notnil/cannode/internal/mqttbridge"
	"github.com/notnil/cannode/internal/telemetry"
	"github.com/notnil/cannode/node"
)

// RunOptions holds flags for the run command. Flags that are set override
// the loaded configuration.
type RunOptions struct {
	*RootOptions
	ConfigPath  string
	Preset      string
	Driver      string
	Interface   string
	NodeID      uint8
	MetricsAddr string
	MQTTBroker  string
	SerialPort  string
	Peer        string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a node until interrupted",
		Long: `Run a bus node built from a config file or a preset.

The node initialises the bus driver, retries bring-up until it succeeds,
starts its roles and then dispatches until interrupted. A fatal role failure
leaves the node blinking its indicator until the process is stopped.

With the loopback driver, --loopback-peer starts a second node from a preset
on the same in-memory bus.`,
		Example: `  cannode run --config node.yaml
  cannode run --preset storm --iface can1 --metrics-addr :9102
  cannode run --preset publisher --driver loopback --loopback-peer storm`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&opts.Preset, "preset", "", "start from a named preset (see 'cannode presets')")
	cmd.Flags().StringVar(&opts.Driver, "driver", "", "bus driver (socketcan|loopback)")
	cmd.Flags().StringVar(&opts.Interface, "iface", "", "SocketCAN interface name")
	cmd.Flags().Uint8Var(&opts.NodeID, "id", 0, "node id (1..127)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.MQTTBroker, "mqtt-broker", "", "mirror observed peer status to this MQTT broker")
	cmd.Flags().StringVar(&opts.SerialPort, "serial-port", "", "serial port of the indicator/trace pin controller")
	cmd.Flags().StringVar(&opts.Peer, "loopback-peer", "", "preset of a second node on the loopback bus")

	return cmd
}

func (o *RunOptions) load(cmd *cobra.Command) (*config.File, error) {
	var (
		f   *config.File
		err error
	)
	switch {
	case o.ConfigPath != "" && o.Preset != "":
		return nil, errors.New("--config and --preset are mutually exclusive")
	case o.ConfigPath != "":
		f, err = config.Load(o.ConfigPath)
	case o.Preset != "":
		f, err = config.Preset(o.Preset)
	default:
		return nil, errors.New("one of --config or --preset is required")
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		f.Bus.Driver = o.Driver
	}
	if flags.Changed("iface") {
		f.Bus.Interface = o.Interface
	}
	if flags.Changed("id") {
		f.Node.ID = o.NodeID
	}
	if flags.Changed("metrics-addr") {
		f.Metrics.Listen = o.MetricsAddr
	}
	if flags.Changed("mqtt-broker") {
		f.MQTT.Broker = o.MQTTBroker
	}
	if flags.Changed("serial-port") {
		f.Indicator.SerialPort = o.SerialPort
		if f.Indicator.Baud == 0 {
			f.Indicator.Baud = 115200
		}
	}
	if o.Peer != "" && f.Bus.Driver != "loopback" {
		return nil, errors.New("--loopback-peer requires the loopback driver")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func runNode(ctx context.Context, opts *RunOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	f, err := opts.load(cmd)
	if err != nil {
		return err
	}
	logger, flush, err := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer flush()

	cfg, err := f.NodeConfig()
	if err != nil {
		return err
	}
	if cfg.Identity.UniqueID == uuid.Nil {
		cfg.Identity.UniqueID = uuid.New()
	}

	metrics := telemetry.New()
	metrics.SetBuildInfo(Version, uint8(cfg.Identity.ID))
	if f.Metrics.Listen != "" {
		stop := serveMetrics(f.Metrics.Listen, metrics, logger)
		defer stop()
	}

	drv, loopback, err := openBus(f, logger)
	if err != nil {
		return err
	}
	defer drv.Close()

	indicator, trace, closeBank, err := openOutputs(f)
	if err != nil {
		return err
	}
	defer closeBank()

	nodeOpts := []node.Option{
		node.WithLogger(logger),
		node.WithMetrics(metrics),
		node.WithIndicator(indicator),
		node.WithTrace(trace),
	}
	if f.MQTT.Broker != "" {
		mopts := mqttbridge.Options{
			BrokerURL:   f.MQTT.Broker,
			ClientID:    f.MQTT.ClientID,
			TopicPrefix: f.MQTT.TopicPrefix,
		}
		if mopts.ClientID == "" {
			mopts.ClientID = "cannode-" + cfg.Identity.UniqueID.String()
		}
		client, err := mqttbridge.Dial(mopts)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		bridge := mqttbridge.New(client, mopts, logger)
		defer bridge.Close()
		nodeOpts = append(nodeOpts, node.WithStatusSink(bridge))
	}

	n, err := node.New(cfg, drv, nodeOpts...)
	if err != nil {
		return err
	}

	if opts.Peer != "" {
		peerCtx, cancelPeer := context.WithCancel(ctx)
		done, err := startPeer(peerCtx, opts.Peer, loopback, logger)
		if err != nil {
			cancelPeer()
			return err
		}
		defer func() {
			cancelPeer()
			<-done
		}()
	}

	logger.Info("starting node",
		"id", cfg.Identity.ID,
		"name", cfg.Identity.Name,
		"unique_id", cfg.Identity.UniqueID.String(),
		"role", cfg.Role.String(),
		"driver", f.Bus.Driver,
	)
	err = n.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func openBus(f *config.File, logger *slog.Logger) (canbus.Driver, *canbus.LoopbackBus, error) {
	var (
		drv canbus.Driver
		lb  *canbus.LoopbackBus
		err error
	)
	switch f.Bus.Driver {
	case "socketcan":
		drv, err = openSocketCAN(f.Bus)
		if err != nil {
			return nil, nil, err
		}
	default:
		lb = canbus.NewLoopbackBus()
		drv = lb.Open()
	}
	if f.Bus.LogFrames {
		drv = canbus.NewLoggedDriver(drv, logger.With("bus", f.Bus.Driver), slog.LevelDebug, canbus.LogAll, nil)
	}
	return drv, lb, nil
}

func openOutputs(f *config.File) (gpio.Pin, *gpio.Trace, func(), error) {
	var bank gpio.Bank = gpio.NewMemBank()
	closeBank := func() {}
	if f.Indicator.SerialPort != "" {
		sb, err := gpio.OpenSerialBank(f.Indicator.SerialPort, f.Indicator.Baud)
		if err != nil {
			return nil, nil, nil, err
		}
		bank = sb
		closeBank = func() { _ = sb.Close() }
	}
	led, err := bank.Pin(gpio.IndicatorLine)
	if err != nil {
		closeBank()
		return nil, nil, nil, err
	}
	if f.Indicator.ActiveLow {
		led = gpio.ActiveLow(led)
	}
	tr, err := gpio.NewTrace(bank, gpio.DefaultTraceLines)
	if err != nil {
		closeBank()
		return nil, nil, nil, err
	}
	return led, tr, closeBank, nil
}

// startPeer runs a preset node on the loopback bus until ctx is done.
func startPeer(ctx context.Context, preset string, lb *canbus.LoopbackBus, logger *slog.Logger) (<-chan error, error) {
	pf, err := config.Preset(preset)
	if err != nil {
		return nil, err
	}
	cfg, err := pf.NodeConfig()
	if err != nil {
		return nil, err
	}
	p, err := node.New(cfg, lb.Open(), node.WithLogger(logger.With("peer", preset)))
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return done, nil
}

func serveMetrics(addr string, m *telemetry.Metrics, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
