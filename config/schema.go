package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/quilross/aquil-symbolic-engine-sub003/errors"
)

//go:embed schema.json
var schemaJSON []byte

// validateDocument checks the raw config document against the embedded
// schema, so typos and type mismatches fail at startup with field paths
// instead of surfacing as zero values later.
func validateDocument(document []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return errors.WrapInvalid(err, "config", "validateDocument", "run schema validation")
	}

	if !result.Valid() {
		var sb strings.Builder
		sb.WriteString("config document invalid:")
		for _, desc := range result.Errors() {
			sb.WriteString(fmt.Sprintf("\n  - %s: %s", desc.Field(), desc.Description()))
		}
		return errors.WrapInvalid(
			fmt.Errorf("%s", sb.String()), "config", "validateDocument", "check config document")
	}

	return nil
}
