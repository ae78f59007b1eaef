package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/fzft/go-kami/cmd"
	"github.com/fzft/go-kami/daemon"
	"github.com/fzft/go-kami/log"
	"github.com/fzft/go-kami/node"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func parseFlags(args []string) (cfg node.Config, client, version bool, err error) {
	cfg = node.DefaultConfig()
	fs := flag.NewFlagSet("kami", flag.ContinueOnError)

	fs.StringVar(&cfg.Network, "network", envOr("KAMI_NETWORK", cfg.Network), "listen network: unix or tcp")
	fs.StringVar(&cfg.Addr, "addr", envOr("KAMI_ADDR", cfg.Addr), "listen address or socket path")
	fs.StringVar(&cfg.Backend, "backend", envOr("KAMI_BACKEND", cfg.Backend), "reactor backend: indexset or slottable")
	fs.IntVar(&cfg.Capacity, "capacity", envIntOr("KAMI_CAPACITY", cfg.Capacity), "slot-table capacity")
	fs.StringVar(&cfg.LogFile, "log", envOr("KAMI_LOG", cfg.LogFile), "log file (stderr when empty)")
	fs.StringVar(&cfg.LogLevel, "level", envOr("KAMI_LOG_LEVEL", cfg.LogLevel), "log level")
	fs.BoolVar(&cfg.Daemon, "daemon", os.Getenv("KAMI_DAEMON") == "1", "detach into a new session, logging to -log")
	fs.BoolVar(&client, "client", false, "connect to a running node instead of serving")
	fs.BoolVar(&version, "version", false, "print version and exit")

	err = fs.Parse(args)
	return
}

func run(args []string) int {
	cfg, client, version, err := parseFlags(args)
	if err != nil {
		return 2
	}
	if version {
		fmt.Println(Version())
		return 0
	}
	if client {
		if err := cmd.NewClient(cfg.Network, cfg.Addr).Run(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 2
	}

	if cfg.Daemon && !daemon.IsDetached() {
		pid, err := daemon.Detach()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("started in background (pid %d)\n", pid)
		return 0
	}

	logPath := cfg.LogFile
	if cfg.Daemon {
		if err := daemon.RedirectOutput(cfg.LogFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		logPath = ""
	}
	if err := log.InitLogger(cfg.LogLevel, logPath); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		return 1
	}
	defer log.Sync()

	log.Logger.Info("starting", zap.String("version", Version()), zap.Int("pid", os.Getpid()))
	if err := serve(cfg); err != nil {
		log.Logger.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func serve(cfg node.Config) error {
	s, err := node.NewServer(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Logger.Warn("close", zap.Error(err))
		}
	}()

	if err := s.Listen(); err != nil {
		return err
	}
	return s.Run(context.Background())
}
