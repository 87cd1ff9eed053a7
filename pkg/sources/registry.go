package sources

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Provider bundles the three source implementations for one content
// provider.
type Provider struct {
	Meta    ChannelMetadataSource
	List    ItemListSource
	Content ItemContentSource
}

// Factory builds a provider from its YAML settings blob.
type Factory func(settings map[string]any, log *logrus.Entry) (Provider, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Factory)
)

// Register makes a provider available by name, usually from an adapter
// package's init. Registering the same name twice panics, like
// database/sql drivers.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("sources: Register called twice for provider %q", name))
	}
	registry[name] = factory
}

// Open builds the named provider.
func Open(name string, settings map[string]any, log *logrus.Entry) (Provider, error) {
	registryMu.Lock()
	factory, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return Provider{}, fmt.Errorf("unknown provider %q (registered: %v)", name, Names())
	}
	return factory(settings, log)
}

// Names returns the registered provider names, sorted.
func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
