package dynconfig

import (
	"fmt"
	"sort"
	"strconv"
)

// PropertyType constrains the values accepted for a dynamic property.
type PropertyType string

const (
	TypeString  PropertyType = "string"
	TypeBoolean PropertyType = "boolean"
	TypeInteger PropertyType = "integer"
	TypeLong    PropertyType = "long"
)

// PropertyDef declares a property as dynamic.
type PropertyDef struct {
	Name        string       `yaml:"name" json:"name"`
	Type        PropertyType `yaml:"type" json:"type"`
	Description string       `yaml:"description" json:"description,omitempty"`
}

// Validate checks value against the declared type. An empty type accepts
// any string.
func (d PropertyDef) Validate(value string) error {
	var err error
	switch d.Type {
	case TypeString, "":
	case TypeBoolean:
		_, err = strconv.ParseBool(value)
	case TypeInteger:
		_, err = strconv.ParseInt(value, 10, 32)
	case TypeLong:
		_, err = strconv.ParseInt(value, 10, 64)
	default:
		return fmt.Errorf("property %q has unknown type %q", d.Name, d.Type)
	}
	if err != nil {
		return fmt.Errorf("invalid %s value for property %q: %q", d.Type, d.Name, value)
	}
	return nil
}

// PropertyIndex is the set of property names a DynamicSource claims.
// Names are case-sensitive and stored in canonical (unprefixed) form.
// An index is immutable once built and safe for concurrent reads.
type PropertyIndex struct {
	defs map[string]PropertyDef
}

// NewPropertyIndex builds an index of untyped string properties.
func NewPropertyIndex(names ...string) *PropertyIndex {
	defs := make([]PropertyDef, len(names))
	for i, n := range names {
		defs[i] = PropertyDef{Name: n, Type: TypeString}
	}
	return NewPropertyIndexFromDefs(defs...)
}

// NewPropertyIndexFromDefs builds an index from property definitions.
// A later definition with the same name replaces an earlier one.
func NewPropertyIndexFromDefs(defs ...PropertyDef) *PropertyIndex {
	idx := &PropertyIndex{defs: make(map[string]PropertyDef, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		idx.defs[d.Name] = d
	}
	return idx
}

// HasProperty reports whether name is registered. A nil index has no
// properties.
func (i *PropertyIndex) HasProperty(name string) bool {
	if i == nil {
		return false
	}
	_, ok := i.defs[name]
	return ok
}

// Definition returns the definition registered for name.
func (i *PropertyIndex) Definition(name string) (PropertyDef, bool) {
	if i == nil {
		return PropertyDef{}, false
	}
	d, ok := i.defs[name]
	return d, ok
}

// Names returns the registered names in sorted order.
func (i *PropertyIndex) Names() []string {
	if i == nil {
		return nil
	}
	names := make([]string, 0, len(i.defs))
	for n := range i.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered properties.
func (i *PropertyIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.defs)
}
