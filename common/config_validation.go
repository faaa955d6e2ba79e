package common

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonschema_generator "github.com/invopop/jsonschema"
	jsonschema_validator "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/sirupsen/logrus"
)

const configSchemaURL = "config_schema.json"

var configSchema *jsonschema_validator.Schema

func init() {
	defer func() {
		if r := recover(); r != nil {
			// Config validation is best-effort
			logrus.Warningf("Something went wrong creating config schema: %v", r)
		}
	}()

	schema, err := ConfigSchema()
	if err != nil {
		panic(err)
	}

	doc, err := jsonschema_validator.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		panic(err)
	}

	compiler := jsonschema_validator.NewCompiler()
	if err := compiler.AddResource(configSchemaURL, doc); err != nil {
		panic(err)
	}

	configSchema, err = compiler.Compile(configSchemaURL)
	if err != nil {
		panic(err)
	}
}

// ConfigSchema returns the JSON schema reflected from Config.
func ConfigSchema() ([]byte, error) {
	r := &jsonschema_generator.Reflector{
		RequiredFromJSONSchemaTags: true,
	}

	return json.MarshalIndent(r.Reflect(&Config{}), "", "  ")
}

// ValidateSchema checks the config against the reflected schema. Problems
// are reported but, unlike Config.Validate, are not meant to stop startup.
func ValidateSchema(config *Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// Config validation is best-effort
			logrus.Warningf("Something went wrong validating config: %v", r)
		}
	}()

	if configSchema == nil {
		return nil
	}

	// Validation must be done on generic types so we re-unmarshal the config into an interface{}
	configString, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	jsonValue, err := jsonschema_validator.UnmarshalJSON(bytes.NewReader(configString))
	if err != nil {
		return fmt.Errorf("unmarshalling config: %w", err)
	}

	return configSchema.Validate(jsonValue)
}
