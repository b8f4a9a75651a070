package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// providerOrder is the fixed precedence used when more than one provider is
// enabled. Exactly one provider is active at a time.
var providerOrder = []ProviderName{ProviderStripe, ProviderPayPal}

// Active returns the first provider from the fixed order that cfg enables.
func (c Config) Active() (ProviderName, error) {
	for _, name := range providerOrder {
		if c.Enabled(name) {
			return name, nil
		}
	}

	var unknown []string
	for _, p := range c.EnabledProviders {
		if p = strings.TrimSpace(p); p != "" {
			unknown = append(unknown, p)
		}
	}
	if len(unknown) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownProvider, strings.Join(unknown, ", "))
	}
	return "", ErrNoProviderEnabled
}

// New builds the adapter for the active provider in cfg.
func New(cfg Config, opts ...Option) (Provider, error) {
	name, err := cfg.Active()
	if err != nil {
		return nil, err
	}

	switch name {
	case ProviderStripe:
		p, err := NewStripe(cfg.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderPayPal:
		p, err := NewPayPal(cfg.APIKey, cfg.ClientSecret, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
}

// Selector hands out the adapter for the current configuration and reuses
// it while the configuration is unchanged, so the wallet adapter keeps its
// cached OAuth token between requests.
type Selector struct {
	opts []Option

	mu          sync.Mutex
	fingerprint string
	current     Provider
}

func NewSelector(opts ...Option) *Selector {
	return &Selector{opts: opts}
}

// Provider returns the adapter for cfg, rebuilding it when the active
// provider or its credentials changed since the last call.
func (s *Selector) Provider(cfg Config) (Provider, error) {
	name, err := cfg.Active()
	if err != nil {
		return nil, err
	}
	fp := fingerprint(name, cfg)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.fingerprint == fp {
		return s.current, nil
	}
	p, err := New(cfg, s.opts...)
	if err != nil {
		return nil, err
	}
	s.current, s.fingerprint = p, fp
	return p, nil
}

func fingerprint(name ProviderName, cfg Config) string {
	sum := sha256.Sum256([]byte(string(name) + "\x00" + cfg.APIKey + "\x00" + cfg.ClientSecret))
	return hex.EncodeToString(sum[:])
}
