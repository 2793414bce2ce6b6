// Command mistveild wires the tunnel state machine, account controller,
// gateway directory client, and the Linux OS integration backends into one
// running process. The IPC transport that normally fronts this engine (§1
// Non-goals: "the IPC transport (local-socket RPC server)") is out of
// scope; this binary instead reacts to OS signals: SIGUSR1 connects,
// SIGUSR2 disconnects, SIGINT/SIGTERM shuts the whole process down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"mistveil-core/internal/account"
	"mistveil-core/internal/account/storage"
	"mistveil-core/internal/corelog"
	"mistveil-core/internal/credstore"
	dnsresolver "mistveil-core/internal/platform/dns"
	"mistveil-core/internal/gatewaydir"
	"mistveil-core/internal/mixnet"
	"mistveil-core/internal/model"
	"mistveil-core/internal/platform"
	"mistveil-core/internal/platform/linux"
	"mistveil-core/internal/statemachine"
	"mistveil-core/internal/wireguard"
)

func main() {
	configPath := flag.String("config", "/etc/mistveild/config.yaml", "path to the daemon's YAML config file")
	flag.Parse()

	cfg := DefaultConfig()
	if loaded, err := LoadConfig(*configPath); err == nil {
		cfg = loaded
	} else if !os.IsNotExist(err) {
		log.Fatalf("mistveild: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("mistveild: %v", err)
	}
}

func run(ctx context.Context, cfg Config) error {
	corelog.Log = corelog.New(cfg.Logging)
	logger := corelog.Log
	events := corelog.NewEventBus()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := credstore.Open(ctx, filepath.Join(cfg.DataDir, "pending_credential_requests.db"))
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	mnemonicStore := storage.NewMnemonicStore(cfg.DataDir)
	deviceKeys := storage.NewDeviceKeyStore(cfg.DataDir)

	vpnAPI := newHTTPVpnApi(cfg.VpnApiURL)
	ctrl := account.New(store, mnemonicStore, deviceKeys, vpnAPI, logger, events)
	commander := account.NewCommander(ctrl)

	shared := &statemachine.SharedState{
		Account:  commander,
		Gateways: gatewaydir.New(newHTTPGatewaySource(cfg.GatewayDirURL)),
		Events:   events,
		Log:      logger,
	}

	tracker := newConnectionTracker(events)
	ctrl.SetConnectedChecker(tracker.isConnected)
	shared.SetTunnelSettings(model.TunnelSettings{AllowLAN: cfg.AllowLAN})

	shared.MixnetConstructor = &mixnet.Constructor{Log: logger, Events: events}
	credSource := newCommanderCredentialSource(commander)
	shared.WireguardConstructor = &wireguard.Constructor{Log: logger, Events: events, Credential: credSource}

	if cfg.DNSModule == "systemd" {
		dnsMon, err := linux.NewDNSMonitor()
		if err != nil {
			logger.Warnf("daemon", "systemd-resolved unavailable, DNS backend disabled: %v", err)
		} else {
			shared.DNSMonitor = dnsMon
		}
	}

	if cfg.FilteringResolverAddr != "" {
		resolver, err := dnsresolver.NewFilteringResolver(cfg.FilteringResolverAddr, nil, nil, logger)
		if err != nil {
			logger.Warnf("daemon", "filtering resolver disabled: %v", err)
		} else {
			defer resolver.Close(context.Background())
		}
	}

	shared.RouteHandler = linux.NewRouteHandler()

	firewall, err := linux.NewFirewall()
	if err != nil {
		logger.Warnf("daemon", "nftables firewall unavailable: %v", err)
	} else {
		shared.Firewall = firewall
	}

	offline, err := linux.NewOfflineMonitor(ctx)
	if err != nil {
		logger.Warnf("daemon", "offline monitor unavailable: %v", err)
	} else {
		shared.OfflineMonitor = offline
	}

	cmds := make(chan statemachine.Command)
	machine := statemachine.NewMachine(shared, cmds)

	logger.Infof("daemon", "starting, data dir %s", cfg.DataDir)
	go ctrl.Run(ctx)

	done := make(chan struct{})
	go func() {
		machine.Run(ctx)
		close(done)
	}()

	sigCmds := make(chan os.Signal, 4)
	signal.Notify(sigCmds, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCmds)

	for {
		select {
		case <-ctx.Done():
			<-done
			return nil
		case <-done:
			return nil
		case sig := <-sigCmds:
			dispatchSignal(ctx, sig, cmds, logger)
		}
	}
}

func dispatchSignal(ctx context.Context, sig os.Signal, cmds chan<- statemachine.Command, logger *corelog.Logger) {
	reply := make(chan error, 1)
	var cmd statemachine.Command
	switch sig {
	case syscall.SIGUSR1:
		cmd = statemachine.ConnectCommand{Reply: reply}
	case syscall.SIGUSR2:
		cmd = statemachine.DisconnectCommand{Reply: reply}
	default:
		return
	}
	select {
	case cmds <- cmd:
	case <-ctx.Done():
		return
	}
	select {
	case err := <-reply:
		if err != nil {
			logger.Warnf("daemon", "command from signal %v failed: %v", sig, err)
		}
	case <-ctx.Done():
	}
}

var _ platform.RouteHandler = (*linux.RouteHandler)(nil)
