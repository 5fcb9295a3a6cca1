package config

import "sync/atomic"

// Holder keeps the current config, swapped as a whole on reload
type Holder struct {
	current atomic.Pointer[Config]
}

func NewHolder(cfg Config) *Holder {
	h := &Holder{}
	h.current.Store(&cfg)
	return h
}

// Load returns the current config
func (h *Holder) Load() Config {
	return *h.current.Load()
}

func (h *Holder) Store(cfg Config) {
	h.current.Store(&cfg)
}
