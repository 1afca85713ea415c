package bootstrap

import (
	"context"
	stderrors "errors"

	"ally/internal/config"
	"ally/internal/logger"
)

// Base carries the two dependencies every application component needs.
// Service apps embed it and add their own wiring on top.
type Base struct {
	Config *config.Config
	Logger logger.Logger
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{Config: cfg, Logger: log}
}

// Shutdown runs the closers in order and joins their failures. A failed
// closer never prevents the remaining ones from running.
func (b *Base) Shutdown(ctx context.Context, closers ...func(ctx context.Context) error) error {
	b.Logger.InfowCtx(ctx, "Shutting down")

	var errs []error
	for _, closer := range closers {
		if closer == nil {
			continue
		}
		if err := closer(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := stderrors.Join(errs...); err != nil {
		return err
	}
	b.Logger.InfowCtx(ctx, "Shutdown complete")
	return nil
}
