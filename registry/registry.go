package registry

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rediwo/redi-collection/types"
)

// DriverFactory opens a database/sql handle from a scheme-stripped DSN
type DriverFactory func(dsn string) (*sql.DB, error)

var (
	mu           sync.RWMutex
	factories    = make(map[string]DriverFactory)
	capabilities = make(map[string]types.DriverCapabilities)
)

// Register makes a driver available under the given URI schemes. Called
// from driver package init functions.
func Register(factory DriverFactory, caps types.DriverCapabilities) {
	mu.Lock()
	defer mu.Unlock()
	for _, scheme := range caps.GetSupportedSchemes() {
		factories[scheme] = factory
		capabilities[scheme] = caps
	}
}

// Get returns the factory registered for a scheme
func Get(scheme string) (DriverFactory, error) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := factories[scheme]
	if !ok {
		return nil, fmt.Errorf("no driver registered for scheme '%s'", scheme)
	}
	return factory, nil
}

// GetCapabilities returns the capabilities registered for a scheme
func GetCapabilities(scheme string) (types.DriverCapabilities, error) {
	mu.RLock()
	defer mu.RUnlock()
	caps, ok := capabilities[scheme]
	if !ok {
		return nil, fmt.Errorf("no driver registered for scheme '%s'", scheme)
	}
	return caps, nil
}

// Schemes lists all registered URI schemes
func Schemes() []string {
	mu.RLock()
	defer mu.RUnlock()
	schemes := make([]string, 0, len(factories))
	for scheme := range factories {
		schemes = append(schemes, scheme)
	}
	return schemes
}
