package compression

import "strings"

// Algorithm identifies a message compression scheme. The zero value
// is None (wire name "identity"), meaning no compression.
type Algorithm uint8

const (
	None Algorithm = iota
	Deflate
	Gzip
	Zstd
	Lz4

	algorithmCount
)

var names = [algorithmCount]string{"identity", "deflate", "gzip", "zstd", "lz4"}

func (a Algorithm) String() string {
	if a >= algorithmCount {
		return "<unknown>"
	}
	return names[a]
}

// Parse maps a wire name to an Algorithm.
func Parse(s string) (Algorithm, bool) {
	for i, name := range names {
		if name == s {
			return Algorithm(i), true
		}
	}
	return None, false
}

// AlgorithmSet is a bit-set of algorithms. None is always a member:
// a peer can never refuse uncompressed messages.
type AlgorithmSet uint32

func NewSet(algs ...Algorithm) AlgorithmSet {
	var s AlgorithmSet
	for _, a := range algs {
		s = s.With(a)
	}
	return s
}

// AllSet returns the set of every supported algorithm.
func AllSet() AlgorithmSet {
	return NewSet(Deflate, Gzip, Zstd, Lz4)
}

func (s AlgorithmSet) With(a Algorithm) AlgorithmSet {
	if a >= algorithmCount {
		return s
	}
	return s | 1<<a
}

func (s AlgorithmSet) Has(a Algorithm) bool {
	if a == None {
		return true
	}
	if a >= algorithmCount {
		return false
	}
	return s&(1<<a) != 0
}

// String renders the set in accept-encoding form: a comma-joined list
// of wire names, always starting with "identity".
func (s AlgorithmSet) String() string {
	var b strings.Builder
	b.WriteString(names[None])
	for a := None + 1; a < algorithmCount; a++ {
		if s.Has(a) {
			b.WriteByte(',')
			b.WriteString(names[a])
		}
	}
	return b.String()
}

// ParseSet parses an accept-encoding list. Unknown names are skipped:
// a newer peer may advertise algorithms this side has never heard of.
func ParseSet(s string) AlgorithmSet {
	var set AlgorithmSet
	for len(s) > 0 {
		name := s
		if i := strings.IndexByte(s, ','); i >= 0 {
			name, s = s[:i], s[i+1:]
		} else {
			s = ""
		}
		if a, ok := Parse(strings.TrimSpace(name)); ok {
			set = set.With(a)
		}
	}
	return set
}
