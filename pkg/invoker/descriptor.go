package invoker

import (
	"context"
	"sync"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
)

// MethodHandler is the user-supplied implementation bound to one method:
// NewArgs allocates a fresh, concrete argument value for the codec to
// decode into; Handler runs the business logic against the decoded args
// and returns the reply value the Codec will encode back to the wire.
type MethodHandler struct {
	NewArgs func() any
	Handler func(ctx context.Context, args any) (any, error)
}

// Descriptor is the interface descriptor (spec §3 "interface name +
// method-name -> signature map ..., built once per interface class; cached
// process-wide"): an Exporter's table of registered aliases and, within
// each, registered methods. Registration happens once at bootstrap;
// Lookup is read-only and safe for concurrent dispatch.
type Descriptor struct {
	Interface string

	mu      sync.RWMutex
	aliases map[string]map[string]MethodHandler
}

// NewDescriptor creates an empty Descriptor for the given interface name.
func NewDescriptor(iface string) *Descriptor {
	return &Descriptor{Interface: iface, aliases: make(map[string]map[string]MethodHandler)}
}

// Register binds method under alias (the empty string is the default,
// unaliased group) to h.
func (d *Descriptor) Register(alias, method string, h MethodHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	methods, ok := d.aliases[alias]
	if !ok {
		methods = make(map[string]MethodHandler)
		d.aliases[alias] = methods
	}
	methods[method] = h
}

// Lookup resolves (alias, method) to its registered handler, failing with
// a distinct error per spec §4.9: NoSuchAlias if the alias was never
// registered, NoSuchMethod if the alias exists but the method doesn't.
func (d *Descriptor) Lookup(alias, method string) (MethodHandler, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	methods, ok := d.aliases[alias]
	if !ok {
		return MethodHandler{}, joyerr.New(joyerr.CodeRemote, "no such alias: "+alias)
	}
	h, ok := methods[method]
	if !ok {
		return MethodHandler{}, joyerr.New(joyerr.CodeRemote, "no such method: "+method)
	}
	return h, nil
}
