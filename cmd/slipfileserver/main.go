// Command slipfileserver wires the engine, the httpfs application layer,
// and a real serial port into a process: a SLIP/IPv4/TCP file server over
// a single serial link, per spec.md §9's CLI deployment shape.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/leocurrie/httpofo"
	"github.com/leocurrie/httpofo/engine"
	"github.com/leocurrie/httpofo/httpfs"
	"github.com/leocurrie/httpofo/serial"
)

var (
	localAddr   string
	baudRate    uint32
	writable    bool
	logLevel    string
	metricsAddr string
)

// idleBackoff matches engine.Run's loop cadence; this command drives its
// own loop instead of engine.Context.Run, since the application layer
// needs a third per-iteration action (httpfs.Server.Poll) that Run's
// single shutdown probe was never shaped to carry.
const idleBackoff = 2 * time.Millisecond

func main() {
	root := &cobra.Command{
		Use:   "slipfileserver <device> <root-dir>",
		Short: "Serve a file hierarchy over a SLIP/IPv4/TCP link",
		Long: `slipfileserver exposes a directory over HTTP, reachable only through
a SLIP-framed serial link running the stack's single-connection-slot TCP
engine. It is the reference application for the engine and httpfs packages.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1])
		},
	}
	root.Flags().StringVar(&localAddr, "addr", "10.0.0.1", "local IPv4 address of this host on the SLIP link")
	root.Flags().Uint32Var(&baudRate, "baud", 9600, "serial baud rate")
	root.Flags().BoolVarP(&writable, "writable", "w", false, "allow PUT to create/overwrite files under root-dir")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "loopback address to serve Prometheus metrics on (disabled if empty)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(device, rootDir string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(logLevel)}))

	addr, err := parseIPv4(localAddr)
	if err != nil {
		return fmt.Errorf("slipfileserver: %w", err)
	}

	port := serial.NewUARTPort(device, baudRate)
	if err := openWithBackoff(log, port); err != nil {
		return fmt.Errorf("slipfileserver: %w", err)
	}
	defer port.Shutdown()

	srv := httpfs.NewServer(rootDir, writable)
	srv.SetLogger(log)

	clock := engine.NewRealClock()
	ctx := engine.New(addr, port, srv, clock)
	ctx.SetLogger(log)
	srv.BindSlot(ctx.Slot())

	ctx.Slot().Listen(80)

	if metricsAddr != "" {
		startMetricsServer(log, metricsAddr)
	}

	log.Info("slipfileserver: listening",
		slog.String("device", device),
		slog.String("addr", localAddr),
		slog.String("root", rootDir),
		slog.Bool("writable", writable))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return loop(ctx, srv, stop)
}

// loop runs the same three-step sequence engine.Context.Run drives
// (poll, tick, ...) plus the application layer's own Poll, since the
// application needs to run every iteration alongside the engine rather
// than from within a boolean shutdown probe.
func loop(ctx *engine.Context, srv *httpfs.Server, stop <-chan os.Signal) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		progressed, err := ctx.PollOne()
		if err != nil && errors.Is(err, httpofo.ErrPacketDrop) {
			ctx.Trace("slipfileserver: dropped inbound datagram")
		} else if err != nil {
			ctx.Warn("slipfileserver: poll error", slog.String("err", err.Error()))
		}
		if tickErr := ctx.Tick(); tickErr != nil {
			ctx.Warn("slipfileserver: tick error", slog.String("err", tickErr.Error()))
		}
		if pollErr := srv.Poll(ctx.Now()); pollErr != nil {
			ctx.Warn("slipfileserver: httpfs poll error", slog.String("err", pollErr.Error()))
		}
		if !progressed {
			time.Sleep(idleBackoff)
		}
	}
}

func startMetricsServer(log *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("slipfileserver: metrics server exited", slog.String("err", err.Error()))
		}
	}()
	log.Info("slipfileserver: metrics listening", slog.String("addr", addr))
}

// openWithBackoff retries Init with exponential backoff since the serial
// device may not be present yet when the process starts (e.g. a USB-serial
// adapter enumerating after boot).
func openWithBackoff(log *slog.Logger, port *serial.UARTPort) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	return backoff.RetryNotify(port.Init, b, func(err error, wait time.Duration) {
		log.Warn("slipfileserver: serial open failed, retrying",
			slog.String("err", err.Error()), slog.Duration("wait", wait))
	})
}

func parseIPv4(s string) ([4]byte, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return [4]byte{}, fmt.Errorf("invalid IPv4 address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return [4]byte{}, fmt.Errorf("not an IPv4 address: %q", s)
	}
	return [4]byte{v4[0], v4[1], v4[2], v4[3]}, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return slog.LevelDebug - 2
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

