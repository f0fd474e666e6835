// Package adapter implements the ProviderAdapter contract: encoding a
// CanonicalRequest into a backend's wire format, invoking it over HTTP, and
// decoding the response (or error) back into a CanonicalResponse. Each
// types.ProviderKind gets exactly one Adapter implementation, shared across
// every descriptor of that kind the way the teacher's openaicompat.Provider
// is embedded and reused by DeepSeek, Qwen, GLM, Grok, and friends.
package adapter

import (
	"context"

	"github.com/jeffersonwarrior/aimux-sub001/types"
)

// Adapter encodes, invokes, and decodes a single chat-completion call against
// one backend kind.
type Adapter interface {
	// Invoke sends req to the backend described by descriptor and returns a
	// normalized CanonicalResponse, or a *types.Error describing why it
	// could not. The returned error's Kind drives FailoverEngine's
	// classification, so adapters must map transport/HTTP failures onto the
	// shared types.ErrorKind taxonomy rather than returning bare errors.
	Invoke(ctx context.Context, descriptor types.ProviderDescriptor, req *types.CanonicalRequest) (*types.CanonicalResponse, error)
}

// Registry resolves a types.ProviderKind to the Adapter that speaks it.
// GatewayCore holds one Registry, built once at startup with an adapter bound
// to every known kind, whether or not a configured descriptor uses it.
type Registry struct {
	adapters map[types.ProviderKind]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[types.ProviderKind]Adapter)}
}

// Register binds kind to a, overwriting any previous binding.
func (r *Registry) Register(kind types.ProviderKind, a Adapter) {
	r.adapters[kind] = a
}

// For returns the Adapter bound to kind, or false if none is registered.
func (r *Registry) For(kind types.ProviderKind) (Adapter, bool) {
	a, ok := r.adapters[kind]
	return a, ok
}

// Invoke resolves descriptor.Kind and dispatches to its Adapter. It returns
// ErrConfigurationInvalid if no adapter is registered for that kind, since
// that represents a descriptor that was loaded with a kind the gateway
// doesn't know how to speak rather than a runtime provider failure.
func (r *Registry) Invoke(ctx context.Context, descriptor types.ProviderDescriptor, req *types.CanonicalRequest) (*types.CanonicalResponse, error) {
	a, ok := r.For(descriptor.Kind)
	if !ok {
		return nil, types.NewError(types.ErrConfigurationInvalid, "no adapter registered for provider kind "+string(descriptor.Kind)).
			WithProvider(descriptor.ID).
			WithRetryable(false)
	}
	return a.Invoke(ctx, descriptor, req)
}
