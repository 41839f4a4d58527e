// Package metadata holds the ordered key/value batches exchanged at
// the edges of a call.
package metadata

import "golang.org/x/net/http2/hpack"

type pair struct {
	key   string
	value string
}

// Batch is an ordered mapping of metadata keys to values for one
// direction of a call. It is not safe for concurrent use: the call
// pipeline serializes access by construction, a batch is mutated only
// until the point it is considered sent.
type Batch struct {
	pairs []pair
}

func New() *Batch {
	return &Batch{}
}

// Pairs builds a batch from a flat key, value, key, value... list.
func Pairs(kv ...string) *Batch {
	if len(kv)%2 != 0 {
		panic("assertion error: odd number of metadata strings")
	}
	b := &Batch{pairs: make([]pair, 0, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		b.pairs = append(b.pairs, pair{kv[i], kv[i+1]})
	}
	return b
}

func (b *Batch) Len() int { return len(b.pairs) }

// Get returns the first value stored under key.
func (b *Batch) Get(key string) (string, bool) {
	for _, p := range b.pairs {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

// Set replaces the value under key, appending when absent.
func (b *Batch) Set(key, value string) {
	for i, p := range b.pairs {
		if p.key == key {
			b.pairs[i].value = value
			return
		}
	}
	b.pairs = append(b.pairs, pair{key, value})
}

// Append adds a value without touching existing ones.
func (b *Batch) Append(key, value string) {
	b.pairs = append(b.pairs, pair{key, value})
}

// Take removes the first value stored under key and returns it.
// Read-once keys (such as the per-call encoding override) must not
// survive into the batch that goes on the wire.
func (b *Batch) Take(key string) (string, bool) {
	for i, p := range b.pairs {
		if p.key == key {
			b.pairs = append(b.pairs[:i], b.pairs[i+1:]...)
			return p.value, true
		}
	}
	return "", false
}

// Delete removes every value stored under key.
func (b *Batch) Delete(key string) {
	kept := b.pairs[:0]
	for _, p := range b.pairs {
		if p.key != key {
			kept = append(kept, p)
		}
	}
	b.pairs = kept
}

// Range visits pairs in order until f returns false.
func (b *Batch) Range(f func(key, value string) bool) {
	for _, p := range b.pairs {
		if !f(p.key, p.value) {
			return
		}
	}
}

// EncodeTo writes the batch, in order, as hpack header fields. This
// is the hand-off point to the wire-writing stage of the transport.
func (b *Batch) EncodeTo(enc *hpack.Encoder) error {
	for _, p := range b.pairs {
		if err := enc.WriteField(hpack.HeaderField{Name: p.key, Value: p.value}); err != nil {
			return err
		}
	}
	return nil
}

// FromFields rebuilds a batch from decoded hpack header fields,
// preserving their order.
func FromFields(fields []hpack.HeaderField) *Batch {
	b := &Batch{pairs: make([]pair, 0, len(fields))}
	for _, f := range fields {
		b.pairs = append(b.pairs, pair{f.Name, f.Value})
	}
	return b
}
