// Package maybe provides a tri-state optional for update payloads.
//
// An update request must distinguish "field not provided" from "field
// explicitly set" (including explicitly set to an empty value). A plain
// pointer conflates the two, so edit bodies carry Maybe fields instead.
package maybe

import "encoding/json"

// Maybe holds an optional value of type T. The zero value is Unset.
//
// When used in JSON bodies, tag the field with `json:",omitzero"` so that
// unset fields are omitted entirely on output; absent fields decode as
// Unset, present fields (even null or empty) decode as Set.
type Maybe[T any] struct {
	value T
	set   bool
}

// Set returns a Maybe holding value.
func Set[T any](value T) Maybe[T] {
	return Maybe[T]{value: value, set: true}
}

// Unset returns an empty Maybe. Equivalent to the zero value.
func Unset[T any]() Maybe[T] {
	return Maybe[T]{}
}

// IsSet reports whether a value is present.
func (m Maybe[T]) IsSet() bool {
	return m.set
}

// IsZero reports whether the value is absent. It exists so that
// encoding/json's omitzero option skips unset fields.
func (m Maybe[T]) IsZero() bool {
	return !m.set
}

// Get returns the contained value and whether it was set.
func (m Maybe[T]) Get() (T, bool) {
	return m.value, m.set
}

// Value returns the contained value, or the zero value of T if unset.
func (m Maybe[T]) Value() T {
	return m.value
}

// Or returns the contained value if set, otherwise fallback.
func (m Maybe[T]) Or(fallback T) T {
	if m.set {
		return m.value
	}
	return fallback
}

func (m Maybe[T]) MarshalJSON() ([]byte, error) {
	if !m.set {
		return []byte("null"), nil
	}
	return json.Marshal(m.value)
}

func (m *Maybe[T]) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &m.value); err != nil {
		return err
	}
	m.set = true
	return nil
}
