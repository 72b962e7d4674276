// Package auth provides the authentication collaborators the reconciliation
// engine needs: plugin resolution, password strength policy, one-way password
// hashing and the set of installed interface languages.
package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrPluginUnavailable is returned when an auth method has no installed plugin.
var ErrPluginUnavailable = errors.New("auth plugin unavailable")

// Well-known methods.
const (
	MethodManual  = "manual"
	MethodNoLogin = "nologin"
	MethodEmail   = "email"
)

// Plugin describes an installed authentication method.
type Plugin struct {
	Name string
	// Internal plugins keep a password hash in the directory. External ones
	// delegate authentication and store a "not cached" marker instead.
	Internal bool
}

// IsInternal reports whether the plugin stores passwords locally.
func (p Plugin) IsInternal() bool { return p.Internal }

// installed lists the plugins shipped with the directory.
var installed = map[string]Plugin{
	MethodManual:  {Name: MethodManual, Internal: true},
	MethodNoLogin: {Name: MethodNoLogin, Internal: true},
	MethodEmail:   {Name: MethodEmail, Internal: true},
	"ldap":        {Name: "ldap"},
	"cas":         {Name: "cas"},
	"oauth2":      {Name: "oauth2"},
	"shibboleth":  {Name: "shibboleth"},
	"db":          {Name: "db"},
}

// Registry resolves auth methods and knows which of them are enabled.
type Registry struct {
	plugins map[string]Plugin
	enabled map[string]bool
}

// NewRegistry creates a registry over the installed plugins. Enabled methods
// that are not installed are an error. manual and nologin are always enabled.
func NewRegistry(enabled []string) (*Registry, error) {
	r := &Registry{
		plugins: installed,
		enabled: map[string]bool{MethodManual: true, MethodNoLogin: true},
	}

	var unknown []string
	for _, name := range enabled {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, ok := r.plugins[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		r.enabled[name] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown auth methods: %s", strings.Join(unknown, ", "))
	}
	return r, nil
}

// Resolve returns the plugin for an auth method.
func (r *Registry) Resolve(method string) (Plugin, error) {
	p, ok := r.plugins[strings.ToLower(method)]
	if !ok {
		return Plugin{}, fmt.Errorf("%w: %q", ErrPluginUnavailable, method)
	}
	return p, nil
}

// Supported reports whether a method is enabled for uploaded users.
func (r *Registry) Supported(method string) bool {
	return r.enabled[strings.ToLower(method)]
}

// Enabled returns the enabled method names, sorted.
func (r *Registry) Enabled() []string {
	out := make([]string, 0, len(r.enabled))
	for name := range r.enabled {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
