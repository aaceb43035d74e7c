package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"tsnetmon/internal/agent"
	"tsnetmon/internal/logger"
	"tsnetmon/internal/shared"
)

func main() {
	configPath := flag.String("config", "/etc/tsnetmon/agent.yaml", "path to agent config yaml")
	flag.Parse()

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	mon, err := agent.NewMonitor(cfg.Monitoring.Interface)
	if err != nil {
		// fatal-startup: monitoring cannot proceed without the interface
		log.Fatal().Err(err).Msg("failed to initialize monitor")
	}

	client := agent.NewClient(cfg.Collector.URL, cfg.Collector.APIKey, time.Duration(cfg.Collector.TimeoutSeconds)*time.Second)
	client.Attempts = cfg.Collector.RetryAttempts

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Health(ctx); err != nil {
		log.Warn().Err(err).Msg("collector not reachable yet, continuing anyway")
	}

	if cfg.Collector.APIKey == "" {
		registerAgent(ctx, *configPath, mon, client)
	} else {
		log.Info().Msg("using existing api key")
	}

	if err := agent.Run(ctx, cfg, mon, client); err != nil {
		log.Fatal().Err(err).Msg("agent loop aborted")
	}
	log.Info().Msg("agent stopped cleanly")
}

func registerAgent(ctx context.Context, configPath string, mon *agent.Monitor, client *agent.Client) {
	log.Info().Msg("no api key configured, registering agent")

	resp, err := client.Register(ctx, shared.RegisterRequest{
		Hostname:    mon.Hostname,
		TailscaleIP: mon.TailscaleIP,
		OSType:      mon.OSType,
	})
	if errors.Is(err, agent.ErrConflict) {
		log.Error().Err(err).Msg("this ip is already registered; restore the existing api key in the config instead of re-registering")
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("registration failed")
	}

	if err := agent.SaveAPIKey(configPath, resp.APIKey); err != nil {
		log.Fatal().Err(err).Msg("could not persist api key")
	}
	log.Info().Str("agent_id", resp.AgentID).Msg("agent registered, api key saved")
}
