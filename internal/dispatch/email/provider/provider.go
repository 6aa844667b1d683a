// Package provider defines the email provider interface and registry.
// Multiple backends (SES, Resend) register here and the registry picks the
// first configured one, with ordered fallback on delivery failure.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// EmailRequest represents an email to be sent.
type EmailRequest struct {
	From    string
	To      []string
	Subject string
	Body    string // plain text body
	HTML    string // HTML body, optional
}

// Provider is the interface that all email providers must implement.
type Provider interface {
	// Name returns the provider name (e.g., "ses", "resend")
	Name() string

	// Send sends an email using this provider.
	Send(ctx context.Context, req *EmailRequest) error

	// IsConfigured returns true if the provider is properly configured.
	IsConfigured() bool
}

// Registry holds the registered providers and a preference order.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string // preference order, primary first
}

// NewRegistry creates an empty email provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. Registration order becomes the preference order
// unless SetOrder is called.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; !exists {
		r.order = append(r.order, p.Name())
	}
	r.providers[p.Name()] = p
	slog.Info("Registered email provider", "name", p.Name(), "configured", p.IsConfigured())
}

// SetOrder replaces the preference order. Every name must be registered.
func (r *Registry) SetOrder(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.providers[name]; !ok {
			return fmt.Errorf("provider %q not registered", name)
		}
	}
	r.order = names
	return nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// candidates returns the configured providers in preference order.
func (r *Registry) candidates() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		if p, ok := r.providers[name]; ok && p.IsConfigured() {
			out = append(out, p)
		}
	}
	return out
}

// Send sends an email through the first configured provider, falling through
// the preference order on failure. Returns the first provider's error when
// every candidate fails.
func (r *Registry) Send(ctx context.Context, req *EmailRequest) error {
	candidates := r.candidates()
	if len(candidates) == 0 {
		return fmt.Errorf("no configured email provider available")
	}

	var firstErr error
	for i, p := range candidates {
		err := p.Send(ctx, req)
		if err == nil {
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if i < len(candidates)-1 {
			slog.Warn("Email provider failed, trying fallback",
				"provider", p.Name(),
				"fallback", candidates[i+1].Name(),
				"error", err,
			)
		}
	}
	return firstErr
}

// List returns all registered provider names in preference order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
