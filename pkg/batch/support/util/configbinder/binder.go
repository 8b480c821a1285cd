// Package configbinder decodes loosely typed property maps into configuration structs.
package configbinder

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// BindProperties binds a map of properties to a target struct using mapstructure.
// Fields are matched by their "yaml" tag. Weakly typed input is accepted, so a value that
// arrived as a string after ${VAR} expansion ("5432") still binds to a numeric field, and
// duration strings ("30s") bind to time.Duration fields.
//
// Parameters:
//
//	properties: The map of properties to bind.
//	target: A pointer to the struct to fill.
//
// Returns:
//
//	An error naming the target type if binding fails.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(properties); err != nil {
		targetType := reflect.TypeOf(target)
		if targetType != nil && targetType.Kind() == reflect.Ptr {
			targetType = targetType.Elem()
		}
		return fmt.Errorf("failed to bind properties to %v: %w", targetType, err)
	}
	return nil
}
