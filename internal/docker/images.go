package docker

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"golang.org/x/sync/errgroup"
)

// EnsureImage pulls ref unless the daemon already has it.
func (c *Client) EnsureImage(ctx context.Context, ref string) error {
	resp, err := c.d.ImageInspect(ctx, ref)
	if err == nil {
		c.logger.Debug().Str("image", ref).Str("id", shortID(resp.ID)).Msg("image found")
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspect image %s: %w", ref, err)
	}

	c.logger.Info().Str("image", ref).Msg("pulling docker image")
	out, err := c.d.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer out.Close()

	// the pull only completes once the progress stream is consumed
	if _, err := io.Copy(io.Discard, out); err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	c.logger.Info().Str("image", ref).Msg("successfully pulled docker image")
	return nil
}

// EnsureImages pulls every missing image, two at a time.
func (c *Client) EnsureImages(ctx context.Context, refs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	for _, ref := range refs {
		g.Go(func() error {
			return c.EnsureImage(ctx, ref)
		})
	}
	return g.Wait()
}
