package sandbox

import (
	"context"
	"fmt"
	"os"

	"github.com/cabinetrun/cabinet/internal/blocks"
	"github.com/cabinetrun/cabinet/internal/logger"
)

// ImageResolver maps an Architecture to the image used to run its agent
// binary, and ensures that image is present before a sandbox is created.
type ImageResolver struct {
	images   map[blocks.Architecture]string
	provider Provider
}

// NewImageResolver builds a resolver from architecture -> image name.
func NewImageResolver(images map[blocks.Architecture]string, provider Provider) *ImageResolver {
	return &ImageResolver{images: images, provider: provider}
}

// ImageFor returns the image name configured for architecture.
func (r *ImageResolver) ImageFor(arch blocks.Architecture) (string, error) {
	image, ok := r.images[arch]
	if !ok {
		return "", fmt.Errorf("sandbox: no image configured for architecture %q", arch)
	}
	return image, nil
}

// EnsureImageExists checks whether architecture's image is present
// locally, pulling it if not. In dev mode (CABINET_DEV=1) it instead
// returns an error, requiring the operator to build local images.
func (r *ImageResolver) EnsureImageExists(ctx context.Context, arch blocks.Architecture) error {
	image, err := r.ImageFor(arch)
	if err != nil {
		return err
	}

	exists, err := r.provider.ImageExists(ctx, image)
	if err != nil {
		return fmt.Errorf("sandbox: check image %s: %w", image, err)
	}
	if exists {
		return nil
	}

	if os.Getenv("CABINET_DEV") == "1" {
		return fmt.Errorf("sandbox: image %s not found locally (dev mode, build local images first)", image)
	}

	logger.Info("sandbox: pulling image %s", image)
	if err := r.provider.Pull(ctx, image); err != nil {
		return fmt.Errorf("sandbox: pull image %s: %w", image, err)
	}
	return nil
}
