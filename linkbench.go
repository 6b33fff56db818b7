package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"
	"github.com/m-lab/go/warnonerror"

	"github.com/m-lab/linkbench/ackbench"
	"github.com/m-lab/linkbench/config"
	"github.com/m-lab/linkbench/logging"
	"github.com/m-lab/linkbench/metadata"
	"github.com/m-lab/linkbench/model"
	"github.com/m-lab/linkbench/radio"
	"github.com/m-lab/linkbench/radio/wsradio"
	"github.com/m-lab/linkbench/rate"
	"github.com/m-lab/linkbench/report"
	"github.com/m-lab/linkbench/sweep"
)

// Process exit codes.
const (
	exitSweepComplete = 1
	exitConfig        = 2
	exitFault         = 3
	exitInterrupted   = 130
)

var (
	// Flags that can be passed in on the command line or through the
	// environment, e.g. MODE=tx or TX_SWITCH_INTERVAL=64.
	mode = flagx.Enum{
		Options: []string{config.ModeTransmit, config.ModeReceive, config.ModeAck},
		Value:   config.ModeReceive,
	}
	reportFormat = flagx.Enum{
		Options: []string{config.FormatText, config.FormatJSON},
		Value:   config.FormatText,
	}
	rateDefs flagx.StringArray
	metaDefs flagx.StringArray
	logLevel = flag.String("log.level", "info", "Minimum level of the log messages to print")
	cfg      = config.Default()

	// Context for the whole program.
	ctx, cancel = context.WithCancel(context.Background())

	// osExit is replaced in tests.
	osExit = os.Exit
)

func init() {
	flag.Var(&mode, "mode", "Benchmark to run: tx sweeps rates, rx reports a sweep, ack measures acknowledged sends")
	flag.Var(&reportFormat, "report.format", "Format of the rx report: text or json")
	flag.Var(&rateDefs, "rate", "A NAME=CODE rate definition, in sweep order; repeat or separate with commas. Defaults to the ESP-NOW rate table")
	flag.Var(&metaDefs, "metadata", "A NAME=VALUE pair describing the run, added to the rx report; repeatable")
	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "Address the local radio accepts connections on")
	flag.StringVar(&cfg.Peer, "peer", cfg.Peer, "Address (host:port or ws:// URL) of the remote radio")
	flag.StringVar(&cfg.ReportFile, "report.file", cfg.ReportFile, "Write the rx report to this file instead of stdout")

	flag.IntVar(&cfg.Transmit.PacketSize, "packet.size", cfg.Transmit.PacketSize, "Length of every sweep packet")
	flag.Int64Var(&cfg.Transmit.SwitchInterval, "tx.switch-interval", cfg.Transmit.SwitchInterval, "Packets sent at each rate")
	flag.DurationVar(&cfg.Transmit.SettleDelay, "tx.settle", cfg.Transmit.SettleDelay, "Pause after every rate change")
	flag.BoolVar(&cfg.Transmit.Sync, "tx.sync", cfg.Transmit.Sync, "Request an acknowledgement for every sweep packet")
	flag.DurationVar(&cfg.Transmit.PacketGap, "tx.gap", cfg.Transmit.PacketGap, "Pause after every sweep packet")
	flag.DurationVar(&cfg.Transmit.SendTimeout, "tx.send-timeout", cfg.Transmit.SendTimeout, "How long a synchronous send waits for its acknowledgement")

	flag.DurationVar(&cfg.Receive.Timeout, "rx.timeout", cfg.Receive.Timeout, "How long a single receive waits")
	flag.IntVar(&cfg.Receive.SilenceTimeouts, "rx.silence-timeouts", cfg.Receive.SilenceTimeouts, "Consecutive receive timeouts that end a stream")
	flag.IntVar(&cfg.Receive.RxBuffer, "rx.buffer", cfg.Receive.RxBuffer, "Receive buffer size in bytes")

	flag.IntVar(&cfg.Ack.PacketSize, "ack.packet-size", cfg.Ack.PacketSize, "Length of every acknowledged payload")
	flag.Int64Var(&cfg.Ack.SampleInterval, "ack.sample-interval", cfg.Ack.SampleInterval, "Attempts between two progress samples")
	flag.Int64Var(&cfg.Ack.Packets, "ack.packets", cfg.Ack.Packets, "Stop after this many acknowledged packets; 0 runs until interrupted")
	flag.DurationVar(&cfg.Ack.SendTimeout, "ack.timeout", cfg.Ack.SendTimeout, "How long each attempt waits for its acknowledgement")
	flag.DurationVar(&cfg.Ack.DiagTimeout, "ack.diag-timeout", cfg.Ack.DiagTimeout, "How long the diagnostic read after each success waits")
}

// catchSignals cancels the global context on SIGINT or SIGTERM.
func catchSignals() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case s := <-c:
		logging.Logger.WithField("signal", s).Info("Received signal")
		cancel()
	case <-ctx.Done():
	}
}

// loadConfig assembles the configuration from the parsed flags.
func loadConfig() (config.Config, error) {
	c := cfg
	c.Mode = mode.Value
	c.ReportFormat = reportFormat.Value
	md, err := metadata.Parse(metaDefs)
	if err != nil {
		return c, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	c.Metadata = md
	if len(rateDefs) > 0 {
		t, err := rate.Parse(rateDefs)
		if err != nil {
			return c, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		c.Rates = t
	}
	return c, c.Validate()
}

// exitCode maps the error that ended a benchmark loop to a process exit code.
func exitCode(err error) int {
	if errors.Is(err, context.Canceled) {
		logging.Logger.Info("Interrupted")
		return exitInterrupted
	}
	logging.Logger.WithError(err).Error("Benchmark failed")
	return exitFault
}

func banner(c config.Config, r *wsradio.Radio, rxbuf int) {
	logging.Logger.WithFields(log.Fields{
		"mode":  c.Mode,
		"addr":  r.Addr(),
		"peer":  c.Peer,
		"rxbuf": rxbuf,
		"rates": c.Rates.Len(),
	}).Info("linkbench: radio ready")
}

// openRadio configures and activates a websocket radio. The returned closer
// deactivates it.
func openRadio(listen string, rc radio.Config) (*wsradio.Radio, io.Closer, error) {
	r := &wsradio.Radio{Listen: listen}
	if err := r.Configure(rc); err != nil {
		return nil, nil, err
	}
	closer, err := radio.Open(r)
	if err != nil {
		return nil, nil, err
	}
	return r, closer, nil
}

func runTransmit(ctx context.Context, c config.Config, t radio.Transport) int {
	tx := &sweep.Transmitter{
		Transport: t,
		Peer:      radio.PeerID(c.Peer),
		Rates:     c.Rates,
		Config:    c.Transmit,
	}
	res, err := tx.Run(ctx)
	if err != nil {
		return exitCode(err)
	}
	logging.Logger.WithFields(log.Fields{
		"packets_sent":  res.PacketsSent,
		"packets_acked": res.PacketsAcked,
		"rates":         res.RatesSwept,
	}).Info("Sweep complete")
	if res.Complete {
		return exitSweepComplete
	}
	return 0
}

func runReceive(ctx context.Context, c config.Config, t radio.Transport) int {
	rx := &sweep.Receiver{
		Transport: t,
		Rates:     c.Rates,
		Config:    c.Receive,
	}
	stats, err := rx.Run(ctx)
	if err != nil {
		return exitCode(err)
	}
	summary, err := report.Summarize(uuid.NewString(), stats)
	if errors.Is(err, report.ErrNoData) {
		logging.Logger.Info("Nothing to report")
		return 0
	}
	if err != nil {
		return exitCode(err)
	}
	if err := writeReport(c, summary); err != nil {
		return exitCode(err)
	}
	return 0
}

func writeReport(c config.Config, summary *model.Summary) error {
	summary.Metadata = c.Metadata
	if c.ReportFile == "" {
		return render(os.Stdout, c.ReportFormat, summary)
	}
	f, err := report.Create(c.ReportFile)
	if err != nil {
		return err
	}
	if err := render(f, c.ReportFormat, summary); err != nil {
		warnonerror.Close(f, "Could not close report file")
		return err
	}
	return f.Close()
}

func render(w io.Writer, format string, summary *model.Summary) error {
	if format == config.FormatJSON {
		return report.WriteJSON(w, summary)
	}
	return report.WriteText(w, summary)
}

func runAck(ctx context.Context, c config.Config, t radio.Transport, peer radio.PeerID, diag radio.Transport) int {
	b := &ackbench.Benchmark{
		Transport: t,
		Peer:      peer,
		Config:    c.Ack,
		Diag:      diag,
	}
	counters, err := b.Run(ctx)
	logging.Logger.WithFields(log.Fields{
		"packets_sent":  counters.PacketsSent,
		"packets_acked": counters.PacketsAcked,
		"retries":       counters.Retries,
	}).Info("Acknowledged benchmark done")
	// An unbounded run only ends when interrupted.
	if errors.Is(err, context.Canceled) && c.Ack.Packets == 0 {
		return 0
	}
	if err != nil {
		return exitCode(err)
	}
	return 0
}

// run starts the radios that c.Mode needs and runs the benchmark.
func run(ctx context.Context, c config.Config) int {
	switch c.Mode {
	case config.ModeTransmit:
		r, closer, err := openRadio("", radio.Config{RxBuffer: c.Transmit.RxBuffer, Timeout: c.Transmit.SendTimeout})
		if err != nil {
			return exitCode(err)
		}
		defer warnonerror.Close(closer, "Could not deactivate radio")
		banner(c, r, c.Transmit.RxBuffer)
		return runTransmit(ctx, c, r)

	case config.ModeReceive:
		r, closer, err := openRadio(c.Listen, radio.Config{RxBuffer: c.Receive.RxBuffer, Timeout: c.Receive.Timeout})
		if err != nil {
			return exitCode(err)
		}
		defer warnonerror.Close(closer, "Could not deactivate radio")
		banner(c, r, c.Receive.RxBuffer)
		return runReceive(ctx, c, r)

	case config.ModeAck:
		peer := radio.PeerID(c.Peer)
		var diag radio.Transport
		if c.Peer == "" {
			// Without a remote radio, the receiving radio runs in this process
			// and doubles as the diagnostic channel.
			local, closer, err := openRadio(c.Listen, radio.Config{RxBuffer: c.Receive.RxBuffer, Timeout: c.Receive.Timeout})
			if err != nil {
				return exitCode(err)
			}
			defer warnonerror.Close(closer, "Could not deactivate local radio")
			peer = radio.PeerID(local.Addr())
			diag = local
		}
		r, closer, err := openRadio("", radio.Config{Timeout: c.Ack.SendTimeout})
		if err != nil {
			return exitCode(err)
		}
		defer warnonerror.Close(closer, "Could not deactivate radio")
		banner(c, r, 0)
		return runAck(ctx, c, r, peer, diag)
	}
	return exitConfig
}

func main() {
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not parse env args")
	rtx.Must(logging.SetLevel(*logLevel), "Could not set log level")

	c, err := loadConfig()
	if err != nil {
		logging.Logger.WithError(err).Error("Invalid configuration")
		cancel()
		osExit(exitConfig)
		return
	}

	promSrv := prometheusx.MustServeMetrics()
	go catchSignals()

	code := run(ctx, c)
	cancel()
	warnonerror.Close(promSrv, "Could not close metrics server")
	if code != 0 {
		osExit(code)
	}
}
