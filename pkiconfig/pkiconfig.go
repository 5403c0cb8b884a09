// Package pkiconfig implements the Configuration surface from spec §6: a
// set of enumerated options addressed by a stable integer index rather
// than by name, persisted as `SEQUENCE OF { INTEGER index, value }` where
// value is BOOLEAN, INTEGER, or UTF8String. Unknown indices encountered on
// read are skipped, not rejected, so a newer persisted table can be read
// by an older binary without failing. A small set of ephemeral options
// (config-changed flag, self-test trigger) are recognised but never
// persisted.
//
// Grounded on asn1io's field-by-field stream primitives (ReadShortInteger,
// ReadBoolean, ReadRawObject) for the persisted SEQUENCE OF form, and on
// boulder's wider cmd/ tree convention of a YAML-authored config struct
// for the surface an operator actually edits (pkiconfig's Document).
package pkiconfig

import (
	"sort"

	"github.com/aox/pkicore/asn1io"
	"github.com/aox/pkicore/berrors"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// OptionIndex is the stable integer address of one configuration option.
type OptionIndex int

// ValueKind discriminates OptionValue's CHOICE, per spec §6.
type ValueKind int

const (
	KindBool ValueKind = iota
	KindInt
	KindString
)

// OptionValue is one entry's value, a hand-rolled CHOICE since
// encoding/asn1 has no native support for one.
type OptionValue struct {
	Kind ValueKind
	Bool bool
	Int  int64
	Str  string
}

func BoolValue(b bool) OptionValue   { return OptionValue{Kind: KindBool, Bool: b} }
func IntValue(v int64) OptionValue   { return OptionValue{Kind: KindInt, Int: v} }
func StringValue(s string) OptionValue { return OptionValue{Kind: KindString, Str: s} }

// Table is the persisted configuration surface: a map from OptionIndex to
// OptionValue, exactly as wide as the options actually set.
type Table struct {
	values map[OptionIndex]OptionValue
}

// NewTable builds an empty Table.
func NewTable() *Table {
	return &Table{values: make(map[OptionIndex]OptionValue)}
}

// Set stores value under index, replacing any prior value.
func (t *Table) Set(index OptionIndex, value OptionValue) {
	t.values[index] = value
}

// Get returns index's value and whether it was present.
func (t *Table) Get(index OptionIndex) (OptionValue, bool) {
	v, ok := t.values[index]
	return v, ok
}

// ephemeralIndices are recognised but never persisted, per spec §6.
var ephemeralIndices = map[OptionIndex]bool{
	OptionConfigChanged:   true,
	OptionSelfTestTrigger: true,
}

// MarshalDER encodes the table as `SEQUENCE OF { INTEGER index, value }`,
// in ascending index order for a deterministic encoding, skipping
// ephemeral indices.
func (t *Table) MarshalDER() ([]byte, error) {
	indices := make([]OptionIndex, 0, len(t.values))
	for idx := range t.values {
		if ephemeralIndices[idx] {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	w := asn1io.NewWriter()
	for _, idx := range indices {
		entry, err := marshalEntry(idx, t.values[idx])
		if err != nil {
			return nil, err
		}
		if _, err := w.WriteRaw(entry); err != nil {
			return nil, err
		}
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return asn1io.WrapSequence(w.Bytes()), nil
}

func marshalEntry(idx OptionIndex, val OptionValue) ([]byte, error) {
	w := asn1io.NewWriter()
	if err := w.WriteShortInteger(int64(idx)); err != nil {
		return nil, err
	}
	switch val.Kind {
	case KindBool:
		if err := w.WriteBoolean(val.Bool); err != nil {
			return nil, err
		}
	case KindInt:
		if err := w.WriteShortInteger(val.Int); err != nil {
			return nil, err
		}
	case KindString:
		if err := writeUTF8String(w, val.Str); err != nil {
			return nil, err
		}
	default:
		return nil, berrors.New(berrors.BadData, "pkiconfig: option %d has unrecognised value kind %d", idx, val.Kind)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	return asn1io.WrapSequence(w.Bytes()), nil
}

func writeUTF8String(w *asn1io.ByteStream, s string) error {
	content := []byte(s)
	header := append([]byte{byte(cryptobyte_asn1.UTF8String)}, asn1io.EncodeLength(len(content))...)
	_, err := w.WriteRaw(append(header, content...))
	return err
}

// UnmarshalDER parses a persisted option table. An entry whose value tag
// this package does not recognise is rejected outright (it indicates a
// corrupt or unsupported encoding, not a merely-newer option); an index
// this package's Document schema doesn't know about is still accepted
// here -- the skip-unknown-index forward-compatibility rule applies at
// Document.FromTable, not at this raw level.
func UnmarshalDER(der []byte) (*Table, error) {
	outer := asn1io.NewReader(der)
	if _, err := outer.ReadSequenceHeader(); err != nil {
		return nil, err
	}
	t := NewTable()
	for outer.Remaining() > 0 {
		_, entryContent, err := outer.ReadRawObject(0)
		if err != nil {
			return nil, err
		}
		inner := asn1io.NewReader(entryContent)
		idx, err := inner.ReadShortInteger()
		if err != nil {
			return nil, err
		}
		val, err := readValue(inner)
		if err != nil {
			return nil, err
		}
		t.Set(OptionIndex(idx), val)
	}
	return t, nil
}

func readValue(r *asn1io.ByteStream) (OptionValue, error) {
	tag, err := r.PeekTag()
	if err != nil {
		return OptionValue{}, err
	}
	switch tag {
	case cryptobyte_asn1.BOOLEAN:
		b, err := r.ReadBoolean()
		if err != nil {
			return OptionValue{}, err
		}
		return BoolValue(b), nil
	case cryptobyte_asn1.INTEGER:
		v, err := r.ReadShortInteger()
		if err != nil {
			return OptionValue{}, err
		}
		return IntValue(v), nil
	case cryptobyte_asn1.UTF8String:
		_, content, err := r.ReadRawObject(0)
		if err != nil {
			return OptionValue{}, err
		}
		return StringValue(string(content)), nil
	default:
		return OptionValue{}, berrors.New(berrors.BadData, "pkiconfig: option value has unsupported tag %d", tag)
	}
}
