package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Flowgraph-Apps/internal/agents"
	"Flowgraph-Apps/internal/core/flow"
	"Flowgraph-Apps/internal/core/network"
	"Flowgraph-Apps/internal/eventbus"
	"Flowgraph-Apps/internal/flowapi"
	"Flowgraph-Apps/internal/flowconfig"
	"Flowgraph-Apps/internal/logging"
	"Flowgraph-Apps/internal/settings"
	"Flowgraph-Apps/internal/telemetry"
	"Flowgraph-Apps/internal/webui"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "flowgraph-web: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout io.Writer) error {
	cfg, err := settings.Load(args, getenv)
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Fprintf(stdout, "flowgraph-web %s\n", version)
		return nil
	}

	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: stdout, Component: "flowgraph-web"})
	if err != nil {
		return err
	}
	exporter := telemetry.ExporterNone
	if cfg.Trace {
		exporter = telemetry.ExporterStdout
	}
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceVersion: version,
		Exporter:       exporter,
		Output:         stdout,
		SampleRatio:    cfg.TraceRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{Addr: cfg.Addr, Handler: a.handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("flowgraph-web listening", "addr", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Streaming clients hold their requests open; Shutdown gives up on them
	// after the timeout.
	if err := server.Shutdown(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

type app struct {
	handler http.Handler
	api     *flowapi.Server
	relay   *eventbus.Relay
	p2p     *network.Libp2pPubSub
	log     logging.Logger
}

func newApp(ctx context.Context, cfg settings.Config, log logging.Logger) (*app, error) {
	reg := flow.NewRegistry()
	bus := eventbus.New(eventbus.WithCapacity(cfg.EventCapacity), eventbus.WithLogger(log))
	if cfg.AgentEvents {
		reg.SetListener(eventbus.NewAgentPublishListener(bus))
	}

	a := &app{log: log}
	catalog := agents.Builtin()
	loaderOpts := []flowconfig.Option{
		flowconfig.WithMailboxCapacity(cfg.MailboxCapacity),
		flowconfig.WithCloseGrace(cfg.CloseGrace),
		flowconfig.WithLogger(log),
	}
	apiOpts := []flowapi.Option{
		flowapi.WithLogger(log),
		flowapi.WithLoaderOptions(loaderOpts...),
	}
	if cfg.P2P.Enabled {
		p2p, err := network.NewLibp2pPubSub(ctx, network.Libp2pOptions{
			ListenAddrs:     cfg.P2P.Listen,
			Bootstrap:       cfg.P2P.Bootstrap,
			Rendezvous:      cfg.P2P.Rendezvous,
			EnableMDNS:      cfg.P2P.MDNS,
			IdentityKeyFile: cfg.P2P.IdentityKey,
			Logger:          log,
		})
		if err != nil {
			return nil, fmt.Errorf("start p2p: %w", err)
		}
		a.p2p = p2p
		a.relay = eventbus.NewRelay(bus, p2p, eventbus.WithRelayTopic(cfg.P2P.Topic), eventbus.WithRelayLogger(log))
		if err := a.relay.Start(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("start relay: %w", err)
		}
		apiOpts = append(apiOpts, flowapi.WithRelay(a.relay.NodeID(), p2p))
		node := p2p.Peers()
		log.Info("event relay started", "peer_id", node.PeerID, "addrs", node.ListenAddrs, "topic", cfg.P2P.Topic)
	}

	api, err := flowapi.NewServer(reg, catalog, bus, apiOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.api = api

	switch {
	case cfg.ConfigFile != "":
		gc, err := flowconfig.LoadFile(cfg.ConfigFile, reg, catalog, loaderOpts...)
		if err != nil {
			a.Close()
			return nil, err
		}
		if _, err := api.Install(ctx, gc); err != nil {
			a.Close()
			return nil, fmt.Errorf("load %s: %w", cfg.ConfigFile, err)
		}
	case cfg.Example == "math":
		if _, err := api.Install(ctx, flowconfig.NewMathExample(reg)); err != nil {
			a.Close()
			return nil, err
		}
	}

	h := api.Handler()
	mux := http.NewServeMux()
	mux.Handle("/api/", h)
	mux.Handle("/healthz", h)
	if cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	} else {
		mux.Handle("/", webui.Handler())
	}
	a.handler = mux
	return a, nil
}

func (a *app) Close() {
	if a.api != nil {
		a.api.Unload()
	}
	if a.relay != nil {
		a.relay.Stop()
	}
	if a.p2p != nil {
		if err := a.p2p.Close(); err != nil {
			a.log.Warn("close p2p failed", "error", err)
		}
	}
}
