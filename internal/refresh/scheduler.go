package refresh

import (
	"context"
	"time"
)

// Run drives scheduled full refreshes until ctx is canceled. Families that
// failed on one pass are retried on the next one automatically, since every
// pass crawls all of them.
func (c *Coordinator) Run(ctx context.Context) {
	if c.interval <= 0 {
		c.logger.Info("scheduled refresh disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("refresh scheduler started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("refresh scheduler stopped")
			return
		case <-ticker.C:
			if _, err := c.TriggerRefresh(ctx, false); err != nil {
				c.logger.Error("scheduled refresh failed to start", "error", err)
			}
		}
	}
}
