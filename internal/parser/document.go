// Package parser reads OpenAPI specification files incrementally, preserving
// property order, and classifies parse faults with recovery strategies.
package parser

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Object is a JSON object that retains property insertion order. Values are
// *Object, []interface{}, string, json.Number, bool, or nil.
type Object struct {
	keys   []string
	values map[string]interface{}
}

// NewObject creates an empty ordered object.
func NewObject() *Object {
	return &Object{values: map[string]interface{}{}}
}

// Set stores a key, appending to the order on first insert.
func (o *Object) Set(key string, value interface{}) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Get returns the value for key.
func (o *Object) Get(key string) (interface{}, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Keys returns the keys in insertion order. Callers must not mutate.
func (o *Object) Keys() []string { return o.keys }

// Len returns the number of properties.
func (o *Object) Len() int { return len(o.keys) }

// GetObject returns the value for key when it is an object.
func (o *Object) GetObject(key string) (*Object, bool) {
	v, ok := o.values[key]
	if !ok {
		return nil, false
	}
	obj, ok := v.(*Object)
	return obj, ok
}

// GetString returns the value for key when it is a string.
func (o *Object) GetString(key string) (string, bool) {
	v, ok := o.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetBool returns the value for key when it is a boolean.
func (o *Object) GetBool(key string) (bool, bool) {
	v, ok := o.values[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetArray returns the value for key when it is an array.
func (o *Object) GetArray(key string) ([]interface{}, bool) {
	v, ok := o.values[key]
	if !ok {
		return nil, false
	}
	arr, ok := v.([]interface{})
	return arr, ok
}

// MarshalJSON serializes the object with keys in insertion order, so a
// round trip through the parser hashes stably.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Plain converts the ordered structure to plain maps and slices, losing
// order. Used where order does not matter (extension payloads, examples).
func Plain(v interface{}) interface{} {
	switch val := v.(type) {
	case *Object:
		out := make(map[string]interface{}, val.Len())
		for _, k := range val.keys {
			out[k] = Plain(val.values[k])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}

// CountExtensions counts keys beginning with "x-" recursively.
func CountExtensions(v interface{}) int {
	count := 0
	switch val := v.(type) {
	case *Object:
		for _, k := range val.keys {
			if strings.HasPrefix(k, "x-") {
				count++
			}
			count += CountExtensions(val.values[k])
		}
	case []interface{}:
		for _, item := range val {
			count += CountExtensions(item)
		}
	}
	return count
}
