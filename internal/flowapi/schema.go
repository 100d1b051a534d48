package flowapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const maxBodyBytes = 1 << 20

var errInvalidJSON = errors.New("invalid json")

const loadSchema = `{
	"type": "object",
	"required": ["configText"],
	"properties": {
		"configText": {"type": "string"}
	}
}`

const publishSchema = `{
	"type": "object",
	"required": ["type", "value"],
	"properties": {
		"type": {"enum": ["double", "text"]},
		"value": {"type": "string"}
	}
}`

type schemas struct {
	load    *jsonschema.Schema
	publish *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	c := jsonschema.NewCompiler()
	load, err := compile(c, "mem://load.json", loadSchema)
	if err != nil {
		return nil, err
	}
	publish, err := compile(c, "mem://publish.json", publishSchema)
	if err != nil {
		return nil, err
	}
	return &schemas{load: load, publish: publish}, nil
}

func compile(c *jsonschema.Compiler, url, src string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		return nil, err
	}
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", url, err)
	}
	return sch, nil
}

// decodeValid reads a JSON body, checks it against sch and decodes it into
// dst.
func decodeValid(body io.Reader, sch *jsonschema.Schema, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return errInvalidJSON
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errInvalidJSON
	}
	if err := sch.Validate(doc); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errInvalidJSON
	}
	return nil
}
