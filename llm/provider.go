package llm

import (
	"maps"
	"net/http"
	"slices"
	"sync"
)

// Provider translates between the client and one backend's wire format.
// Implementations register themselves from init() in package providers.
type Provider interface {
	Name() string
	BuildURL(baseURL string) string
	// SetHeaders adds credentials, read from the environment.
	SetHeaders(req *http.Request)
	// BuildRequestBody encodes a chat call. A nil temperature leaves the
	// backend default in place.
	BuildRequestBody(model string, messages []Message, temperature *float64, maxTokens int) ([]byte, error)
	ParseResponse(body []byte, model string) (*Response, error)
}

var providers = struct {
	sync.RWMutex
	byName map[string]Provider
}{byName: make(map[string]Provider)}

// RegisterProvider makes p available to endpoints naming it. A later
// registration under the same name replaces the earlier one.
func RegisterProvider(p Provider) {
	providers.Lock()
	providers.byName[p.Name()] = p
	providers.Unlock()
}

// GetProvider returns the provider registered as name, or nil.
func GetProvider(name string) Provider {
	providers.RLock()
	defer providers.RUnlock()
	return providers.byName[name]
}

// ListProviders returns the registered provider names in sorted order.
func ListProviders() []string {
	providers.RLock()
	defer providers.RUnlock()
	return slices.Sorted(maps.Keys(providers.byName))
}
