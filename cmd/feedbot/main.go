package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/tbernard/feedbot/internal/archive"
	"github.com/tbernard/feedbot/internal/config"
	"github.com/tbernard/feedbot/internal/dispatch"
	"github.com/tbernard/feedbot/internal/feed"
	"github.com/tbernard/feedbot/internal/irc"
	"github.com/tbernard/feedbot/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/feedbot.yaml", "configuration file path")
	flag.Parse()

	// Initial config load is the only fatal failure.
	mgr, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Snapshot()

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] feedbot starting (server=%s:%d nick=%s channels=%d)",
		cfg.IRC.Server, cfg.IRC.Port, cfg.IRC.Nick, len(cfg.IRC.Channels))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] received %v, shutting down", sig)
		cancel()
	}()

	store, err := feed.NewSeenStore(cfg.Feeds.StateFile, cfg.Feeds.RingSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open seen store: %v\n", err)
		os.Exit(1)
	}

	arch, err := archive.Open(cfg.Feeds.ArchiveFile, cfg.Feeds.RingSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open archive: %v\n", err)
		os.Exit(1)
	}
	defer arch.Close()

	session := irc.NewSession(irc.Options{
		Server:   cfg.IRC.Server,
		Port:     cfg.IRC.Port,
		Nick:     cfg.IRC.Nick,
		Password: cfg.IRC.Password,
		Channels: cfg.ChannelNames(),
		Delay:    cfg.IRC.Delay.Std(),
	})
	poller := feed.NewPoller(mgr, store)
	disp := dispatch.New(mgr, session, poller, arch, cancel)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && err != context.Canceled {
				logger.Errorf("[main] %s stopped: %v", name, err)
				cancel()
			}
		}()
	}

	run("config watcher", mgr.Watch)
	run("irc session", session.Run)
	run("feed poller", poller.Run)
	run("dispatcher", disp.Run)

	wg.Wait()
	logger.Info("[main] feedbot stopped")
}
