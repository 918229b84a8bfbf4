package xmlmap

import (
	"github.com/antchfx/xmlquery"
)

// Validator is the schema-validation collaborator boundary. The engine
// never loads or interprets schemas itself; a caller-supplied validator
// receives the instance node and the model type's schema identifier.
type Validator interface {
	Validate(node *xmlquery.Node, schemaID string) (bool, []error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(node *xmlquery.Node, schemaID string) (bool, []error)

func (f ValidatorFunc) Validate(node *xmlquery.Node, schemaID string) (bool, []error) {
	return f(node, schemaID)
}

// SchemaCache memoizes collaborator-built schema artifacts by identifier,
// so repeated validation against one schema loads it once. First
// population is not synchronized; concurrent first loads may both run,
// with the last write kept.
type SchemaCache struct {
	load    func(schemaID string) (any, error)
	entries map[string]any
}

func NewSchemaCache(load func(schemaID string) (any, error)) *SchemaCache {
	return &SchemaCache{load: load, entries: map[string]any{}}
}

func (c *SchemaCache) Get(schemaID string) (any, error) {
	if entry, ok := c.entries[schemaID]; ok {
		return entry, nil
	}
	entry, err := c.load(schemaID)
	if err != nil {
		return nil, err
	}
	c.entries[schemaID] = entry
	return entry, nil
}
