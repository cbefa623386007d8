// Command nameledgerd is the node driver (§6 "CLI surface"): it wires
// config, keystore, chain store, validator, locker, miner, event bus and
// DNS server together and runs them until an interrupt or ActionQuit.
// Grounded on the teacher's cmd/empower1d/main.go (a runNode() component
// wiring function plus a signal.Notify-based graceful shutdown in main()),
// generalized from the teacher's dummy-validator consensus wiring into the
// naming chain's own components, and from bare log.Printf to zap, and from
// a flag-free binary to a github.com/urfave/cli/v2 surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"nameledger.dev/nameledger/internal/chainstore"
	"nameledger.dev/nameledger/internal/config"
	"nameledger.dev/nameledger/internal/dnsserver"
	"nameledger.dev/nameledger/internal/events"
	"nameledger.dev/nameledger/internal/keystore"
	"nameledger.dev/nameledger/internal/miner"
)

const shutdownGrace = 5 * time.Second

func main() {
	app := &cli.App{
		Name:  "nameledgerd",
		Usage: "a proof-of-work naming blockchain node",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "nogui", Aliases: []string{"n"}, Usage: "run headless (no front-end)"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "enable info-level logging"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "enable debug-level logging"},
			&cli.BoolFlag{Name: "list", Aliases: []string{"l"}, Usage: "print every block and exit"},
			&cli.BoolFlag{Name: "generate", Aliases: []string{"g"}, Usage: "print default config and exit"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "nameledger.toml", Usage: "config file path"},
			&cli.StringFlag{Name: "upgrade", Aliases: []string{"u"}, Usage: "print config at PATH upgraded to the current shape and exit"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Bool("generate") {
		text, err := config.Marshal(config.Default())
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	if path := c.String("upgrade"); path != "" {
		upgraded, err := config.Upgrade(path)
		if err != nil {
			return err
		}
		text, err := config.Marshal(upgraded)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	}

	log, err := buildLogger(c.Bool("debug"), c.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := loadOrDefaultConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := chainstore.Open(cfg.DBPath, log)
	if err != nil {
		return fmt.Errorf("open chain store: %w", err)
	}
	defer store.Close()

	if c.Bool("list") {
		return listBlocks(store)
	}

	bus := events.NewBus(log)

	kp, err := keystore.LoadOrGenerate(context.Background(), cfg.KeyFile, 24, bus, log)
	if err != nil {
		return fmt.Errorf("load or generate key: %w", err)
	}
	log.Info("node identity ready", zap.Binary("public_key", kp.Public))

	m := miner.New(store, bus, cfg.Mining.Threads, cfg.Mining.Lower, log)
	m.Start()
	defer m.Stop()

	dns := dnsserver.New(cfg.ListenAddr, store, nil, log)
	go func() {
		if err := dns.ListenAndServe(); err != nil {
			log.Error("dns server exited", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	handle := bus.Subscribe(events.ActionQuit, func(events.Event) bool {
		quit <- os.Interrupt
		return false
	})
	defer bus.Unsubscribe(events.ActionQuit, handle)

	log.Info("nameledgerd running", zap.String("listen_addr", cfg.ListenAddr))
	sig := <-quit
	log.Info("caught signal, shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := dns.Shutdown(shutdownCtx); err != nil {
		log.Warn("dns server shutdown error", zap.Error(err))
	}

	return nil
}

func loadOrDefaultConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return config.Default(), nil
	}
	return config.Load(path)
}

func listBlocks(store *chainstore.Store) error {
	height, err := store.Height()
	if err != nil {
		return err
	}
	for i := height; i >= 1; i-- {
		b, err := store.GetBlock(i)
		if err != nil {
			return err
		}
		kind := "locker"
		if b.IsFull() {
			kind = "full"
		}
		fmt.Printf("%d\t%s\t%x\t%x\n", b.Index, kind, b.Hash, b.PubKey)
	}
	return nil
}

func buildLogger(debug, verbose bool) (*zap.Logger, error) {
	switch {
	case debug:
		return zap.NewDevelopment()
	case verbose:
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		return cfg.Build()
	default:
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		return cfg.Build()
	}
}
