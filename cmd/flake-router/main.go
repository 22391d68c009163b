// Command flake-router runs a flake router.
//
// Usage:
//
//	flake-router [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-port int             TCP port when the configuration names no listener (default 9986)
//	-name string          Router name, overrides the configuration
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-protocol-log string  File path for protocol event logging (CBOR format)
//	-metrics string       Listen address of the Prometheus endpoint, e.g. ":9100"
//	-advertise            Announce the router over mDNS
//	-protocol-trace       Also write protocol events to the log at debug level
//
// Examples:
//
//	# Plain TCP router on the default port
//	flake-router
//
//	# Router with TLS, MQTT and a snapshot, announced on the LAN
//	flake-router -config /etc/flake/router.yaml -advertise
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coldwave/flake-go/pkg/discovery"
	flakelog "github.com/coldwave/flake-go/pkg/log"
	"github.com/coldwave/flake-go/pkg/router"
	"github.com/coldwave/flake-go/pkg/transport"
)

var (
	configFile  = flag.String("config", "", "YAML configuration file")
	port        = flag.Int("port", transport.DefaultPort, "TCP port when the configuration names no listener")
	name        = flag.String("name", "", "Router name, overrides the configuration")
	logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	protocolLog = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
	metricsAddr = flag.String("metrics", "", "Listen address of the Prometheus endpoint")
	advertise   = flag.Bool("advertise", false, "Announce the router over mDNS")

	protocolTrace = flag.Bool("protocol-trace", false, "Also write protocol events to the log at debug level")
)

func main() {
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("router failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

// loadFileConfig reads the configuration file and applies the flags that
// override it.
func loadFileConfig() (*router.FileConfig, error) {
	fc := &router.FileConfig{}
	if *configFile != "" {
		var err error
		if fc, err = router.LoadConfigFile(*configFile); err != nil {
			return nil, err
		}
	}
	if len(fc.Listen) == 0 {
		fc.Listen = []router.ListenFileConfig{{Type: router.ListenTCP, Port: *port}}
	}
	if *name != "" {
		fc.Name = *name
	}
	if *protocolLog != "" {
		fc.ProtocolLog = *protocolLog
	}
	if *metricsAddr != "" {
		fc.Metrics = *metricsAddr
	}
	if *advertise {
		fc.Advertise = true
	}
	return fc, nil
}

func run(logger *slog.Logger) error {
	fc, err := loadFileConfig()
	if err != nil {
		return err
	}

	cfg, err := fc.Config(router.DefaultConfig())
	if err != nil {
		return err
	}
	cfg.Logger = logger

	pl, closeLog, err := protocolLogger(fc, logger, *protocolTrace)
	if err != nil {
		return err
	}
	defer closeLog()
	cfg.ProtocolLogger = pl

	r, err := router.New(cfg)
	if err != nil {
		return err
	}
	if err := fc.Apply(r); err != nil {
		r.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := r.Start(ctx); err != nil {
		return err
	}

	if fc.Metrics != "" {
		srv := serveMetrics(fc.Metrics, r, logger)
		defer srv.Close()
	}

	if fc.Advertise {
		if info := advertiseInfo(fc, cfg); info != nil {
			adv := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
			if err := adv.AdvertiseRouter(ctx, info); err != nil {
				logger.Warn("mDNS advertising failed", "error", err)
			} else {
				defer adv.StopRouter()
				logger.Info("advertising", "service", discovery.ServiceType, "port", info.Port)
			}
		} else {
			logger.Warn("mDNS advertising needs a tcp listener")
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	return r.Close()
}

func serveMetrics(addr string, r *router.Router, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

// advertiseInfo describes the router for mDNS. The first plain TCP
// listener is announced; nil means there is none.
func advertiseInfo(fc *router.FileConfig, cfg router.Config) *discovery.RouterInfo {
	info := &discovery.RouterInfo{Name: cfg.Name}
	for _, l := range fc.Listen {
		p := l.Port
		if p == 0 {
			p = transport.DefaultPort
		}
		switch {
		case l.Type == router.ListenTCP && info.Port == 0:
			info.Port = uint16(p)
		case l.Type == router.ListenWebSocket:
			info.Wires = append(info.Wires, fmt.Sprintf("%s:%d", l.Type, p))
			info.Path = l.Path
			if info.Path == "" {
				info.Path = transport.DefaultWebSocketPath
			}
		case l.Type == router.ListenTLS, l.Type == router.ListenUDP, l.Type == router.ListenDTLS:
			info.Wires = append(info.Wires, fmt.Sprintf("%s:%d", l.Type, p))
		}
	}
	if info.Port == 0 {
		return nil
	}
	if cfg.Authenticator != nil {
		info.Auth = strings.ToLower(cfg.Authenticator.AuthenticationType().String())
	}
	return info
}

// protocolLogger builds the protocol event sink: the rotating CBOR file of
// the configuration and, when tracing, the process log. The result is nil
// when neither is enabled.
func protocolLogger(fc *router.FileConfig, logger *slog.Logger, trace bool) (flakelog.Logger, func(), error) {
	var sinks []flakelog.Logger
	closeFn := func() {}

	if fc.ProtocolLog != "" {
		fl, err := flakelog.OpenFileLogger(fc.ProtocolLog, flakelog.FileOptions{
			MaxSize: fc.ProtocolLogMaxSize,
			Keep:    fc.ProtocolLogKeep,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create protocol logger: %w", err)
		}
		closeFn = func() { fl.Close() }
		sinks = append(sinks, fl)
		logger.Info("protocol logging", "path", fc.ProtocolLog, "max_size", fc.ProtocolLogMaxSize)
	}
	if trace {
		sinks = append(sinks, flakelog.NewSlogAdapter(logger))
	}
	return flakelog.Combine(sinks...), closeFn, nil
}
