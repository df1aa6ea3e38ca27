// Package storeconfig builds the Store named by an encryptedir.Config.
// It is separate from encryptedir because the backends import that package.
package storeconfig

import (
	"fmt"

	"github.com/ai8future/encryptedir"
	"github.com/ai8future/encryptedir/gormstore"
	"github.com/ai8future/encryptedir/pebblestore"
)

// OpenStore opens the backend selected by cfg.Store.
func OpenStore(cfg *encryptedir.Config) (encryptedir.Store, error) {
	switch cfg.Store.Backend {
	case "", encryptedir.StoreBackendMemory:
		return encryptedir.NewMemoryStore(), nil
	case encryptedir.StoreBackendPebble:
		return pebblestore.Open(cfg.Store.Path)
	case encryptedir.StoreBackendSQLite:
		return gormstore.Open(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", encryptedir.ErrInvalidConfig, cfg.Store.Backend)
	}
}

// NewManager builds a Manager from cfg, including its store. Extra options are applied
// after the config, so they win.
func NewManager(cfg *encryptedir.Config, opts ...encryptedir.ManagerOption) (*encryptedir.Manager, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	cfgOpts, err := cfg.ManagerOptions()
	if err != nil {
		store.Close()
		return nil, err
	}
	all := append(append(cfgOpts, encryptedir.WithStore(store)), opts...)
	m, err := encryptedir.NewManager(all...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return m, nil
}
