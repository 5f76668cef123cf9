package parser

import (
	"fmt"
	"sort"

	"bankparse/internal/config"
	"bankparse/internal/domain"
	"bankparse/internal/port"
)

// ProviderFactory creates an LLMProvider from a provider config.
type ProviderFactory func(cfg *config.ParserProviderConfig) (port.LLMProvider, error)

// Capabilities describes what a registered provider can do.
type Capabilities struct {
	Text     bool `json:"text"`
	Vision   bool `json:"vision"`
	JSONMode bool `json:"json_mode"`
}

type registration struct {
	factory ProviderFactory
	caps    Capabilities
}

// registry of provider factories, populated by init() in each provider package
// or explicitly via RegisterProvider.
var providers = map[string]registration{}

// RegisterProvider registers a provider factory by name.
func RegisterProvider(name string, caps Capabilities, factory ProviderFactory) {
	providers[name] = registration{factory: factory, caps: caps}
}

// NewProvider creates an LLMProvider from a provider config using the registered factory.
func NewProvider(cfg *config.ParserProviderConfig) (port.LLMProvider, error) {
	reg, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, cfg.Provider)
	}
	return reg.factory(cfg)
}

// ProviderCapabilities returns the capabilities of every registered provider.
func ProviderCapabilities() map[string]Capabilities {
	out := make(map[string]Capabilities, len(providers))
	for name, reg := range providers {
		out[name] = reg.caps
	}
	return out
}

// RegisteredProviders returns registered provider names in sorted order.
func RegisteredProviders() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
