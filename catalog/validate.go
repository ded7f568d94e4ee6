package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed manifest.schema.json
var manifestSchemaData []byte

var (
	manifestSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func compileManifestSchema() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(manifestSchemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal manifest schema: %w", err)
			return
		}
		if err := compiler.AddResource("manifest.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add manifest schema resource: %w", err)
			return
		}
		manifestSchema, err = compiler.Compile("manifest.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile manifest schema: %w", err)
			return
		}
	})
	return compileErr
}

// validateManifest checks manifest YAML against the embedded schema before it
// is decoded into typed structures. The YAML document is re-encoded through
// JSON so the validator sees the value forms it expects.
func validateManifest(data []byte) error {
	if err := compileManifestSchema(); err != nil {
		return err
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid YAML in test manifest: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("test manifest is not JSON-representable: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(jsonData, &v); err != nil {
		return err
	}

	if err := manifestSchema.Validate(v); err != nil {
		return fmt.Errorf("test manifest validation failed: %w", err)
	}
	return nil
}
