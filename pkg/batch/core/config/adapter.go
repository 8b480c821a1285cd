package config

import (
	"fmt"

	"github.com/tigerroll/notepipe/pkg/batch/support/util/configbinder"
)

// AdapterConfig returns the raw settings of adapter.<kind>.<name>.
func (n *NotepipeConfig) AdapterConfig(kind, name string) (map[string]interface{}, bool) {
	kinds, ok := n.AdapterConfigs[kind].(map[string]interface{})
	if !ok {
		return nil, false
	}
	raw, ok := kinds[name].(map[string]interface{})
	return raw, ok
}

// AdapterNames returns the connection names declared under adapter.<kind>.
func (n *NotepipeConfig) AdapterNames(kind string) []string {
	kinds, ok := n.AdapterConfigs[kind].(map[string]interface{})
	if !ok {
		return nil
	}
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	return names
}

// DecodeAdapterConfig decodes adapter.<kind>.<name> into out using the yaml field tags.
func (n *NotepipeConfig) DecodeAdapterConfig(kind, name string, out interface{}) error {
	raw, ok := n.AdapterConfig(kind, name)
	if !ok {
		return fmt.Errorf("adapter.%s.%s is not configured", kind, name)
	}
	if err := configbinder.BindProperties(raw, out); err != nil {
		return fmt.Errorf("adapter.%s.%s: %w", kind, name, err)
	}
	return nil
}
