// Package session implements the SessionDispatcher component from spec
// §4.8: one message in, one message out per transaction, attribute-supply
// ordering enforcement, and the redis-backed session scoreboard named in
// spec §9's Global State discussion.
//
// Grounded on web/context.go's request-scoped state handling for the
// session/transport half, generalized from boulder's single ACME-HTTP
// session shape to spec §4.8's protocol-agnostic transport+timeouts model,
// and on the SessionAttributeList description in spec §3 for the paired-
// attribute cursor, a new primitive this tree's other packages don't need.
package session

import (
	"github.com/aox/pkicore/berrors"
)

// AttributeID names an entry in a SessionAttributeList. Protocol engines
// define their own small sets of these (e.g. username/password,
// authResponse) rather than sharing one global enum.
type AttributeID int

// attributeEntry is one ordered entry in the list; a given AttributeID may
// repeat (the list is a multi-map), so entries are held in a slice rather
// than a map keyed by AttributeID.
type attributeEntry struct {
	id    AttributeID
	value []byte
}

// PairSpec declares that adding `First` arms a cursor that only `Second`
// may complete -- spec §3's "username-then-password" example. A zero-value
// PairSpec{} (First == Second == 0) arms on ID 0 like any other pair; give
// real sentinel IDs nonzero values.
type PairSpec struct {
	First  AttributeID
	Second AttributeID
}

// AttributeList is the ordered multi-map from spec §3's SessionAttributeList:
// adding any attribute other than the expected pair-completion while the
// cursor is armed is rejected, and deleting the first half of a still-open
// pair resets the cursor (spec §4.8's "deleting the first half... resets
// the pairing cursor").
type AttributeList struct {
	pairs   []PairSpec
	entries []attributeEntry
	armedBy AttributeID // 0 when no cursor is armed
	armed   bool
}

// NewAttributeList builds an empty list enforcing the given pairing rules.
func NewAttributeList(pairs ...PairSpec) *AttributeList {
	return &AttributeList{pairs: pairs}
}

func (l *AttributeList) pairFor(id AttributeID) (PairSpec, bool) {
	for _, p := range l.pairs {
		if p.First == id {
			return p, true
		}
	}
	return PairSpec{}, false
}

// Add appends id/value to the list, honouring any pairing cursor. If a
// cursor is armed (a First was added but its Second has not yet arrived),
// only that Second is accepted; anything else is rejected with Permission.
func (l *AttributeList) Add(id AttributeID, value []byte) error {
	if l.armed && id != l.armedBy {
		return berrors.WithLocus(
			berrors.New(berrors.Permission, "attribute %d expected before any other write", l.armedBy),
			"pairingCursor", berrors.AttrPresent,
		)
	}

	l.entries = append(l.entries, attributeEntry{id: id, value: value})

	if l.armed && id == l.armedBy {
		l.armed = false
		l.armedBy = 0
		return nil
	}
	if pair, ok := l.pairFor(id); ok {
		l.armed = true
		l.armedBy = pair.Second
	}
	return nil
}

// Get returns the most recently added value for id, or NotFound.
func (l *AttributeList) Get(id AttributeID) ([]byte, error) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].id == id {
			return l.entries[i].value, nil
		}
	}
	return nil, berrors.New(berrors.NotFound, "attribute %d not present", id)
}

// Has reports whether id has been added at least once.
func (l *AttributeList) Has(id AttributeID) bool {
	_, err := l.Get(id)
	return err == nil
}

// Delete removes every entry for id. If id is the First half of a pair
// whose cursor is still armed, the cursor resets (spec §4.8).
func (l *AttributeList) Delete(id AttributeID) {
	out := l.entries[:0]
	for _, e := range l.entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	l.entries = out

	if l.armed {
		if pair, ok := l.pairFor(id); ok && pair.Second == l.armedBy {
			l.armed = false
			l.armedBy = 0
		}
	}
}

// Zeroise overwrites every stored value's backing bytes, for the secret
// zeroisation discipline spec §5 requires of password-bearing attributes.
func (l *AttributeList) Zeroise() {
	for i := range l.entries {
		for j := range l.entries[i].value {
			l.entries[i].value[j] = 0
		}
	}
	l.entries = nil
	l.armed = false
	l.armedBy = 0
}

// Len reports the number of entries currently held.
func (l *AttributeList) Len() int { return len(l.entries) }

// Armed reports whether a pairing cursor is currently waiting for a
// specific AttributeID to complete a pair.
func (l *AttributeList) Armed() (AttributeID, bool) { return l.armedBy, l.armed }
