package docker

import (
	"context"
	"time"

	"github.com/sudankdk/codejudge/internal/metrics"
)

// Reap periodically removes managed containers that exited or outlived
// maxAge. Normal executions remove their own container; this only catches
// what a crash or a failed remove left behind.
func (c *Client) Reap(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("zombie cleanup stopped")
			return

		case <-ticker.C:
			if _, err := c.ReapOnce(ctx, maxAge); err != nil {
				c.logger.Error().Err(err).Msg("zombie cleanup failed")
			}
		}
	}
}

// ReapOnce runs a single sweep and reports how many containers it removed.
func (c *Client) ReapOnce(ctx context.Context, maxAge time.Duration) (int, error) {
	containers, err := c.ListManaged(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	now := time.Now()
	for _, ctr := range containers {
		age := now.Sub(time.Unix(ctr.Created, 0))
		if ctr.State != "exited" && ctr.State != "dead" && age < maxAge {
			continue
		}
		c.Remove(ctx, ctr.ID)
		removed++
		metrics.ReapedContainers.Inc()
		c.logger.Info().Str("container", shortID(ctr.ID)).Str("state", string(ctr.State)).Dur("age", age).Msg("removed zombie container")
	}
	return removed, nil
}
