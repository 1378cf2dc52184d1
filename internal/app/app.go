package app

import (
	"context"
	"fmt"

	"courier/internal/domain"
	providersvc "courier/internal/services/provider"
)

// App is a Wire whose transport façade has been initialized against the
// local identity and device. Commands that only bootstrap state use Wire
// directly; everything else goes through here.
type App struct {
	*Wire
}

// Open builds the wiring for cfg and performs the one-time transport
// initialization. It fails with domain.ErrNoOwnedIdentity on a store that
// was never bootstrapped.
func Open(ctx context.Context, cfg Config) (*App, error) {
	w, err := NewWire(cfg)
	if err != nil {
		return nil, err
	}

	svc, ok := w.Transport.(*providersvc.Service)
	if !ok {
		w.Close()
		return nil, fmt.Errorf("open app: unexpected transport type %T", w.Transport)
	}
	if err := svc.Initialize(ctx, cfg.DeviceName); err != nil {
		w.Close()
		return nil, err
	}
	return &App{Wire: w}, nil
}

// LocalIdentity returns the owned identity the transport runs as.
func (a *App) LocalIdentity() domain.Identity { return a.Transport.LocalIdentity() }

// LocalDevice returns the local endpoint handle.
func (a *App) LocalDevice() domain.Device { return a.Transport.LocalDevice() }
