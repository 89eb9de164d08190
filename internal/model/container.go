package model

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// Shape tells which JSON encoding a stored container field uses.
type Shape uint8

const (
	// ShapeAbsent means the field is missing or null.
	ShapeAbsent Shape = iota
	// ShapeObject is a JSON object of named flags.
	ShapeObject
	// ShapeList is a JSON array.
	ShapeList
	// ShapeOther is any scalar; kept verbatim.
	ShapeOther
)

// Container is a profile field whose encoding drifted between schema versions:
// "roles" and "permissions" have been stored both as objects and as arrays.
type Container struct {
	Shape Shape
	Flags map[string]any  // ShapeObject
	Items []any           // ShapeList
	Raw   json.RawMessage // ShapeOther
}

// ObjectOf builds an object-shaped container.
func ObjectOf(flags map[string]any) Container {
	if flags == nil {
		flags = map[string]any{}
	}
	return Container{Shape: ShapeObject, Flags: flags}
}

// ListOf builds a list-shaped container.
func ListOf(items ...any) Container {
	if items == nil {
		items = []any{}
	}
	return Container{Shape: ShapeList, Items: items}
}

// Flag reports the value stored under name when the container is an object.
func (c Container) Flag(name string) (any, bool) {
	if c.Shape != ShapeObject {
		return nil, false
	}
	v, ok := c.Flags[name]
	return v, ok
}

// FlagTrue reports whether the object holds the JSON boolean true under name.
func (c Container) FlagTrue(name string) bool {
	v, ok := c.Flag(name)
	b, isBool := v.(bool)
	return ok && isBool && b
}

// Strings returns the lower-cased string items of a list-shaped container.
func (c Container) Strings() []string {
	if c.Shape != ShapeList {
		return nil
	}
	out := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		if s, ok := it.(string); ok {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

// WithFlag returns an object-shaped copy with name set to v. Non-object
// encodings are replaced by a fresh object.
func (c Container) WithFlag(name string, v any) Container {
	flags := map[string]any{}
	if c.Shape == ShapeObject {
		maps.Copy(flags, c.Flags)
	}
	flags[name] = v
	return ObjectOf(flags)
}

// Clone returns a deep-enough copy for independent mutation of the top level.
func (c Container) Clone() Container {
	out := Container{Shape: c.Shape}
	if c.Flags != nil {
		out.Flags = maps.Clone(c.Flags)
	}
	if c.Items != nil {
		out.Items = slices.Clone(c.Items)
	}
	if c.Raw != nil {
		out.Raw = slices.Clone(c.Raw)
	}
	return out
}

// MarshalJSON encodes the container in its recorded shape.
func (c Container) MarshalJSON() ([]byte, error) {
	switch c.Shape {
	case ShapeObject:
		if c.Flags == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(c.Flags)
	case ShapeList:
		if c.Items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Items)
	case ShapeOther:
		return c.Raw, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON records both the value and the shape it was stored in.
func (c *Container) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*c = Container{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '{':
		var flags map[string]any
		if err := json.Unmarshal(b, &flags); err != nil {
			return err
		}
		*c = ObjectOf(flags)
	case '[':
		var items []any
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		*c = ListOf(items...)
	default:
		c.Shape = ShapeOther
		c.Raw = slices.Clone(b)
	}
	return nil
}
