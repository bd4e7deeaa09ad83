package auth

import (
	"encoding/base64"
	"fmt"
	"sync"
)

// Scheme identifies how a credential is presented to the server.
type Scheme int

const (
	// SchemeNone sends no auth headers.
	SchemeNone Scheme = iota
	// SchemeBearer sends "Authorization: Bearer <value>".
	SchemeBearer
	// SchemeBasic sends "Authorization: Basic <base64(value)>".
	SchemeBasic
	// SchemeAPIKey sends "X-API-Key: <value>".
	SchemeAPIKey
)

// String returns the scheme name.
func (s Scheme) String() string {
	switch s {
	case SchemeNone:
		return "none"
	case SchemeBearer:
		return "bearer"
	case SchemeBasic:
		return "basic"
	case SchemeAPIKey:
		return "api_key"
	default:
		return fmt.Sprintf("scheme(%d)", int(s))
	}
}

// ParseScheme parses a scheme name as used in configuration.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "", "none":
		return SchemeNone, nil
	case "bearer":
		return SchemeBearer, nil
	case "basic":
		return SchemeBasic, nil
	case "api_key", "apikey":
		return SchemeAPIKey, nil
	default:
		return SchemeNone, fmt.Errorf("unknown auth scheme %q", s)
	}
}

// Credential holds an auth scheme and its raw value. The transmitted
// form of a basic credential is derived lazily and cached; updating the
// value invalidates the cache. Safe for concurrent use.
type Credential struct {
	scheme Scheme

	mu      sync.Mutex
	raw     string
	encoded string
	cached  bool
}

// NewCredential creates a credential for the given scheme.
func NewCredential(scheme Scheme, value string) *Credential {
	return &Credential{scheme: scheme, raw: value}
}

// Scheme returns the credential's scheme.
func (c *Credential) Scheme() Scheme {
	return c.scheme
}

// SetValue replaces the raw credential value and invalidates any cached
// encoding.
func (c *Credential) SetValue(value string) {
	c.mu.Lock()
	c.raw = value
	c.encoded = ""
	c.cached = false
	c.mu.Unlock()
}

// transmitted returns the value as sent on the wire: the raw value for
// most schemes, the cached base64 form for basic auth. The raw value of
// a basic credential is expected to be "user:password"; a value without
// a colon is encoded unchanged.
func (c *Credential) transmitted() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheme != SchemeBasic {
		return c.raw
	}
	if !c.cached {
		c.encoded = base64.StdEncoding.EncodeToString([]byte(c.raw))
		c.cached = true
	}
	return c.encoded
}

// Headers returns the header set derived from the credential. A nil
// credential, SchemeNone, or an empty value all yield an empty map.
// Safe to call repeatedly.
func (c *Credential) Headers() map[string]string {
	if c == nil {
		return map[string]string{}
	}

	c.mu.Lock()
	empty := c.raw == ""
	c.mu.Unlock()
	if empty || c.scheme == SchemeNone {
		return map[string]string{}
	}

	switch c.scheme {
	case SchemeBearer:
		return map[string]string{"Authorization": "Bearer " + c.transmitted()}
	case SchemeBasic:
		return map[string]string{"Authorization": "Basic " + c.transmitted()}
	case SchemeAPIKey:
		return map[string]string{"X-API-Key": c.transmitted()}
	default:
		return map[string]string{}
	}
}
