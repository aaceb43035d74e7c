package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Run drives the single cooperative loop: one measurement plus one
// submission per interval. Submission retries block the loop, which is
// fine since ticks are not expected to overlap. After maxFailures
// consecutive bad ticks Run returns an error so the process can exit
// instead of degrading silently.
func Run(ctx context.Context, cfg *Config, mon *Monitor, client *Client) error {
	interval := time.Duration(cfg.Monitoring.IntervalSeconds) * time.Second
	maxFailures := cfg.Monitoring.MaxFailures

	log.Info().Dur("interval", interval).Msg("starting metric collection")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := tick(ctx, mon, client); err != nil {
			failures++
			log.Warn().Err(err).Int("consecutive_failures", failures).Msg("tick failed")
		} else {
			failures = 0
		}

		if failures >= maxFailures {
			return fmt.Errorf("%d consecutive failures, giving up", failures)
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("stop requested, agent loop exiting")
			return nil
		case <-ticker.C:
		}
	}
}

func tick(ctx context.Context, mon *Monitor, client *Client) error {
	metrics, err := mon.Collect(ctx)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			log.Warn().Err(err).Msg("skipping submission this tick")
		}
		return err
	}

	if err := client.Submit(ctx, mon.Submission(metrics)); err != nil {
		return err
	}

	log.Info().
		Float64("upload_mbps", metrics.CurrentUploadMbps).
		Float64("download_mbps", metrics.CurrentDownloadMbps).
		Int("peers", len(metrics.ActiveConnections)).
		Msg("metrics submitted")
	return nil
}
