package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinyland-inc/relayclaw/cmd/relayclaw/internal"
	"github.com/tinyland-inc/relayclaw/pkg/auth"
	"github.com/tinyland-inc/relayclaw/pkg/bus"
	"github.com/tinyland-inc/relayclaw/pkg/channels"
	"github.com/tinyland-inc/relayclaw/pkg/gateway"
	"github.com/tinyland-inc/relayclaw/pkg/logger"
	"github.com/tinyland-inc/relayclaw/pkg/relay"
	"github.com/tinyland-inc/relayclaw/pkg/server"
	"github.com/tinyland-inc/relayclaw/pkg/store"
	"github.com/tinyland-inc/relayclaw/pkg/store/dynamo"
	"github.com/tinyland-inc/relayclaw/pkg/tailscale"
)

func serveCmd(debug bool, addrOverride string) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	addr := cfg.Relay.Addr()
	if addrOverride != "" {
		addr = addrOverride
	}

	broker := relay.NewBroker(relay.Config{
		MaxMessagesPerSession: cfg.Session.MaxMessagesPerSession,
		MessageTTL:            cfg.Session.MessageTTL(),
		AckTTL:                cfg.Session.AckTTL(),
		DefaultBatch:          cfg.Relay.DefaultBatch,
		MaxBatch:              cfg.Relay.MaxBatch,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := relay.NewSweeper(broker, cfg.Session.SweepInterval(), cfg.Session.Timeout())
	sweeper.Start(ctx)
	fmt.Printf("✓ Expiry sweeper started (every %s, session timeout %s)\n",
		cfg.Session.SweepInterval(), cfg.Session.Timeout())

	eventBus := bus.NewEventBus()
	control := gateway.NewControl(broker)

	channelManager, err := channels.NewManager(cfg, eventBus, control)
	if err != nil {
		return fmt.Errorf("error creating channel manager: %w", err)
	}

	enabledChannels := channelManager.GetEnabledChannels()
	if enabledChannels != "" {
		fmt.Printf("✓ Channels enabled: %s\n", enabledChannels)
	} else {
		fmt.Println("⚠ Warning: no channels enabled, only the inbound webhook will feed the relay")
	}

	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("error starting channels: %w", err)
	}

	loop := gateway.NewLoop(eventBus, broker, channelManager)
	go loop.Run(ctx)

	var archiver store.Archiver
	var asyncArchiver *store.Async
	if cfg.Archive.Enabled {
		backend, err := dynamo.NewFromEnv(ctx, cfg.Archive.Region, cfg.Archive.TableName, cfg.Archive.TTLDays)
		if err != nil {
			fmt.Printf("⚠ Warning: archive disabled, DynamoDB init failed: %v\n", err)
		} else {
			asyncArchiver = store.NewAsync(backend)
			asyncArchiver.Start(ctx)
			archiver = asyncArchiver
			fmt.Printf("✓ Archive enabled (table %s)\n", cfg.Archive.TableName)
		}
	}

	var tsServer *tailscale.Server
	if cfg.Tailscale.Enabled {
		tsServer = tailscale.NewServer(tailscale.Config{
			Enabled:  cfg.Tailscale.Enabled,
			Hostname: cfg.Tailscale.Hostname,
			StateDir: cfg.Tailscale.StateDir,
			AuthKey:  cfg.Tailscale.AuthKey,
		})
		if err := tsServer.Start(ctx); err != nil {
			fmt.Printf("⚠ Warning: Tailscale tsnet failed to start: %v\n", err)
			tsServer = nil
		} else {
			fmt.Println("✓ Tailscale tsnet node started")
		}
	}

	if cfg.Relay.APIToken == "" && cfg.Tailscale.Setec.Enabled {
		setec := tailscale.NewSetecClient(tailscale.SetecConfig{
			Enabled: cfg.Tailscale.Setec.Enabled,
			BaseURL: cfg.Tailscale.Setec.BaseURL,
			Prefix:  cfg.Tailscale.Setec.Prefix,
		})
		if token, err := setec.Get(ctx, "api_token"); err != nil {
			fmt.Printf("⚠ Warning: Setec api_token lookup failed: %v\n", err)
		} else {
			cfg.Relay.APIToken = token
		}
	}

	if cfg.Relay.APIToken == "" {
		fmt.Println("⚠ Warning: no API token configured, consumer endpoints are disabled")
		fmt.Println("  Run `relayclaw auth generate` to create one")
	} else {
		logger.InfoCF("serve", "Consumer auth configured", map[string]any{
			"token": auth.Redact(cfg.Relay.APIToken),
		})
	}

	srv := server.New(broker, archiver, server.Options{
		Addr:         addr,
		APIToken:     cfg.Relay.APIToken,
		WebhookKey:   cfg.Relay.WebhookKey,
		DefaultBatch: cfg.Relay.DefaultBatch,
		MaxBatch:     cfg.Relay.MaxBatch,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Printf("✓ Relay listening on %s\n", addr)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigChan:
	}

	fmt.Println("\nShutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.WarnCF("serve", "Server shutdown error", map[string]any{"error": err.Error()})
	}

	channelManager.StopAll(shutdownCtx)
	if tsServer != nil {
		tsServer.Stop()
	}
	sweeper.Stop()
	eventBus.Close()
	cancel()
	if asyncArchiver != nil {
		asyncArchiver.Stop()
	}

	fmt.Println("Goodbye!")
	return nil
}
