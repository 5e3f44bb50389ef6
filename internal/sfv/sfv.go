// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package sfv implements the subset of RFC 8941 (Structured Field Values)
// needed to parse Signature-Input, Signature, and Signature-Agent: the
// dictionary type, inner lists, strings, byte sequences, integers, tokens,
// and parameters.
package sfv

import "fmt"

// Kind identifies the shape of a parsed Item.
type Kind int

const (
	KindString Kind = iota
	KindToken
	KindInteger
	KindBytes
	KindInnerList
)

// Item is a parsed RFC 8941 bare item or inner list, with its parameters.
// A Dictionary member and each element of an inner list are both Items.
type Item struct {
	Kind   Kind
	Str    string // KindString, KindToken
	Int    int64  // KindInteger
	Bytes  []byte // KindBytes (decoded)
	List   []Item // KindInnerList members
	Params *Dictionary
}

// ParamString returns the string value of parameter key, if present and
// string/token-shaped.
func (it Item) ParamString(key string) (string, bool) {
	if it.Params == nil {
		return "", false
	}
	p, ok := it.Params.Get(key)
	if !ok || (p.Kind != KindString && p.Kind != KindToken) {
		return "", false
	}
	return p.Str, true
}

// ParamInt returns the integer value of parameter key, if present.
func (it Item) ParamInt(key string) (int64, bool) {
	if it.Params == nil {
		return 0, false
	}
	p, ok := it.Params.Get(key)
	if !ok || p.Kind != KindInteger {
		return 0, false
	}
	return p.Int, true
}

// Dictionary is an ordered mapping of labels to Items, per RFC 8941 §3.2.
type Dictionary struct {
	order  []string
	values map[string]Item
}

// Labels returns the dictionary's member labels in declaration order.
func (d *Dictionary) Labels() []string {
	if d == nil {
		return nil
	}
	return d.order
}

// Get returns the member for label, if present.
func (d *Dictionary) Get(label string) (Item, bool) {
	if d == nil {
		return Item{}, false
	}
	it, ok := d.values[label]
	return it, ok
}

// Len reports the number of members.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}

// ErrInvalidStructuredField is returned for any malformed field; callers
// map it to the "invalid_structured_field" verdict reason.
type ErrInvalidStructuredField struct {
	Detail string
}

func (e *ErrInvalidStructuredField) Error() string {
	return fmt.Sprintf("invalid structured field: %s", e.Detail)
}

func errInvalid(format string, args ...interface{}) error {
	return &ErrInvalidStructuredField{Detail: fmt.Sprintf(format, args...)}
}
