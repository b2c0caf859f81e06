// Package provider holds the third-party identity provider capabilities the
// sign-in pathways depend on: the Google identity-token widget and the GitHub
// authorization-code redirect.
package provider

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrWidgetNotInitialized is returned when a button is rendered before Initialize
	ErrWidgetNotInitialized = errors.New("widget is not initialized")

	// ErrNoCredential is returned when a widget has no credential to deliver
	ErrNoCredential = errors.New("no identity credential available")
)

// WidgetConfig configures the identity-token widget
type WidgetConfig struct {
	ClientID string
	// Callback receives the identity token once the user signs in
	Callback           func(credential string)
	AutoSelect         bool
	CancelOnTapOutside bool
}

// GoogleWidgetConfig returns the widget settings the storefront uses
func GoogleWidgetConfig(clientID string, callback func(credential string)) WidgetConfig {
	return WidgetConfig{
		ClientID:           clientID,
		Callback:           callback,
		AutoSelect:         false,
		CancelOnTapOutside: true,
	}
}

// Widget is the provider-hosted sign-in button
type Widget interface {
	Initialize(cfg WidgetConfig) error
	RenderButton(target string) error
}

// StaticWidget delivers a credential obtained out of band (flag or environment)
// to the callback when its button is rendered
type StaticWidget struct {
	Credential string

	mu  sync.Mutex
	cfg *WidgetConfig
}

// NewStaticWidget creates a widget that hands out credential
func NewStaticWidget(credential string) *StaticWidget {
	return &StaticWidget{Credential: credential}
}

func (w *StaticWidget) Initialize(cfg WidgetConfig) error {
	if cfg.Callback == nil {
		return fmt.Errorf("widget callback is required")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = &cfg
	return nil
}

func (w *StaticWidget) RenderButton(string) error {
	w.mu.Lock()
	cfg := w.cfg
	w.mu.Unlock()

	if cfg == nil {
		return ErrWidgetNotInitialized
	}
	if w.Credential == "" {
		return ErrNoCredential
	}
	cfg.Callback(w.Credential)
	return nil
}

// FakeWidget records how it was set up and lets tests deliver credentials
type FakeWidget struct {
	mu       sync.Mutex
	config   *WidgetConfig
	rendered []string
}

func (w *FakeWidget) Initialize(cfg WidgetConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = &cfg
	return nil
}

func (w *FakeWidget) RenderButton(target string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.config == nil {
		return ErrWidgetNotInitialized
	}
	w.rendered = append(w.rendered, target)
	return nil
}

// Config returns the configuration passed to Initialize
func (w *FakeWidget) Config() (WidgetConfig, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.config == nil {
		return WidgetConfig{}, false
	}
	return *w.config, true
}

// Rendered returns every render target in order
func (w *FakeWidget) Rendered() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.rendered...)
}

// Deliver simulates the user completing the provider sign-in
func (w *FakeWidget) Deliver(credential string) error {
	cfg, ok := w.Config()
	if !ok {
		return ErrWidgetNotInitialized
	}
	cfg.Callback(credential)
	return nil
}
