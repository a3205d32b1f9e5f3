package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemaErr  error
	helloSch   *jsonschema.Schema
	actSch     *jsonschema.Schema
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	for _, name := range []string{"hello.schema.json", "act.schema.json"} {
		raw, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource(name, bytes.NewReader(raw)); err != nil {
			schemaErr = fmt.Errorf("%s: %w", name, err)
			return
		}
	}
	if helloSch, schemaErr = c.Compile("hello.schema.json"); schemaErr != nil {
		return
	}
	actSch, schemaErr = c.Compile("act.schema.json")
}

// ValidateHello checks a raw HELLO message against the embedded schema.
func ValidateHello(raw []byte) error {
	return validate(raw, func() *jsonschema.Schema { return helloSch })
}

// ValidateAct checks a raw ACT message against the embedded schema.
func ValidateAct(raw []byte) error {
	return validate(raw, func() *jsonschema.Schema { return actSch })
}

func validate(raw []byte, pick func() *jsonschema.Schema) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return pick().Validate(v)
}
