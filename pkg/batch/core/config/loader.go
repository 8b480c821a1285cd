package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig      // EmbeddedConfig contains the raw bytes of the configuration file.
	Expander       EnvironmentExpander `optional:"true"`                   // Expander resolves ${VAR} placeholders before parsing.
	EnvFilePath    string              `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
}

// loadConfig builds the configuration in four layers: defaults, YAML (after placeholder
// expansion), environment variable overrides, and validation.
//
// Parameters:
//
//	envFilePath: The path to the .env file. Empty loads ./.env when present.
//	configBytes: The YAML configuration.
//	expander: Resolves ${VAR} placeholders in configBytes.
//
// Returns:
//
//	A pointer to the loaded Config, or a ConfigurationError.
func loadConfig(envFilePath string, configBytes []byte, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()

	expanded, err := expander.Expand(configBytes)
	if err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to expand environment placeholders", err)
	}

	// Decoding straight into the defaults keeps every key the YAML omits, including
	// booleans whose default is true.
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to unmarshal config", err)
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "failed to load config from environment variables", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, exception.NewConfigurationError(moduleName, "invalid configuration", err)
	}
	return cfg, nil
}

// LoadConfig loads configuration from YAML bytes, a .env file and environment variables.
//
// Parameters:
//
//	envFilePath: The path to the .env file.
//	configBytes: The YAML configuration.
//
// Returns:
//
//	A pointer to the loaded Config and an error if loading or validation fails.
func LoadConfig(envFilePath string, configBytes []byte) (*Config, error) {
	return loadConfig(envFilePath, configBytes, NewOsEnvironmentExpander())
}

// NewConfigProvider is an Fx provider that loads and provides *Config.
// It also applies the configured log level.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	expander := params.Expander
	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, expander)
	if err != nil {
		return nil, err
	}

	logger.SetLogLevel(cfg.Notepipe.System.Logging.Level)
	logger.Infof("Log level set to: %s", logger.GetLogLevel())
	return cfg, nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// The variable name is the upper-cased path of yaml tags joined by "_", e.g.
// NOTEPIPE_PIPELINE_BATCH_SIZE.
//
// Parameters:
//
//	val: The reflect.Value of the struct to populate.
//	prefix: The prefix for environment variable names (e.g., "NOTEPIPE_PIPELINE_").
//
// Returns: An error if any field cannot be set.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		if field.Kind() == reflect.Map {
			if field.Type().Key().Kind() == reflect.String && field.Type().Elem().Kind() == reflect.Struct {
				if err := loadMapOfStructsFromEnv(field, envVarName+"_"); err != nil {
					return err
				}
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadMapOfStructsFromEnv loads fields of type map[string]struct from environment variables.
// The struct field is matched as the longest yaml tag suffix, so map keys may contain
// underscores: NOTEPIPE_PIPELINE_STAGES_RAW_EXPORT_BATCH_SIZE sets Stages["raw_export"].BatchSize.
func loadMapOfStructsFromEnv(mapField reflect.Value, prefix string) error {
	if mapField.IsNil() {
		mapField.Set(reflect.MakeMap(mapField.Type()))
	}
	elemType := mapField.Type().Elem()

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(env, prefix), "=", 2)
		if len(parts) != 2 {
			continue
		}
		keyAndField, envValue := parts[0], parts[1]

		fieldIndex, mapKey := matchFieldSuffix(elemType, keyAndField)
		if fieldIndex < 0 || mapKey == "" {
			continue
		}

		// Map values are not addressable; work on a copy and store it back.
		structVal := reflect.New(elemType).Elem()
		if existing := mapField.MapIndex(reflect.ValueOf(mapKey)); existing.IsValid() {
			structVal.Set(existing)
		}
		if err := setField(structVal.Field(fieldIndex), envValue); err != nil {
			return fmt.Errorf("failed to set '%s' from env var '%s%s': %w", elemType.Field(fieldIndex).Name, prefix, keyAndField, err)
		}
		mapField.SetMapIndex(reflect.ValueOf(mapKey), structVal)
	}
	return nil
}

// matchFieldSuffix finds the struct field whose yaml tag is the longest suffix of keyAndField.
// It returns the field index and the lower-cased remaining map key, or -1.
func matchFieldSuffix(elemType reflect.Type, keyAndField string) (int, string) {
	best, bestLen := -1, 0
	for i := 0; i < elemType.NumField(); i++ {
		tag := elemType.Field(i).Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		suffix := "_" + strings.ToUpper(tag)
		if strings.HasSuffix(keyAndField, suffix) && len(suffix) > bestLen {
			best, bestLen = i, len(suffix)
		}
	}
	if best < 0 {
		return -1, ""
	}
	return best, strings.ToLower(keyAndField[:len(keyAndField)-bestLen])
}

// setField sets the value of a reflect.Value field based on its kind.
// It handles string, int, float, bool and comma separated string slices.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return nil
		}
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	}
	return nil
}
