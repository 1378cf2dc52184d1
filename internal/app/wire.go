package app

import (
	"fmt"
	"os"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/ibe"
	"courier/internal/keyclock"
	capabilitysvc "courier/internal/services/capability"
	providersvc "courier/internal/services/provider"
	"courier/internal/store"
)

// Wire bundles all stores and services for the CLI.
type Wire struct {
	Log   *zap.Logger
	Store *store.Store
	Clock *keyclock.Clock

	Identities domain.IdentityStore
	Devices    domain.DeviceStore
	UserKeys   domain.UserKeyStore
	Secrets    domain.SecretStore
	Sequences  domain.SequenceStore
	Encoded    domain.EncodedMessageStore
	Objects    domain.ObjectStore
	Feeds      domain.FeedStore

	Capabilities domain.CapabilityResolver
	Transport    domain.TransportData
}

// NewWire constructs the dependency graph from cfg. The caller owns the
// returned Wire and must Close it.
func NewWire(cfg Config) (*Wire, error) {
	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}

	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}

	st, err := store.Open(cfg.DBPath, log)
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}

	master, err := cfg.MasterSecretBytes()
	if err != nil {
		return nil, multierr.Append(err, st.Close())
	}
	scheme, err := ibe.NewDevScheme(master)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("wire: %w", err), st.Close())
	}

	kc := keyclock.New(cfg.Rotation(), clock.New())

	identities := store.NewIdentityStore(st)
	devices := store.NewDeviceStore(st)
	userKeys := store.NewUserKeyStore(st)
	secrets := store.NewSecretStore(st)
	sequences := store.NewSequenceStore(st)
	encoded := store.NewEncodedMessageStore(st)
	objects := store.NewObjectStore(st)
	feeds := store.NewFeedStore(st)

	capabilities := capabilitysvc.New(st, feeds, identities)
	transport := providersvc.New(providersvc.Deps{
		Scheme:     scheme,
		Clock:      kc,
		Log:        log,
		Closer:     st,
		Tx:         st,
		Identities: identities,
		Devices:    devices,
		UserKeys:   userKeys,
		Secrets:    secrets,
		Sequences:  sequences,
		Encoded:    encoded,
	})

	return &Wire{
		Log:          log,
		Store:        st,
		Clock:        kc,
		Identities:   identities,
		Devices:      devices,
		UserKeys:     userKeys,
		Secrets:      secrets,
		Sequences:    sequences,
		Encoded:      encoded,
		Objects:      objects,
		Feeds:        feeds,
		Capabilities: capabilities,
		Transport:    transport,
	}, nil
}

// Close releases everything NewWire opened.
func (w *Wire) Close() error {
	err := w.Store.Close()
	_ = w.Log.Sync()
	return err
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}
