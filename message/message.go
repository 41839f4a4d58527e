package message

// Flags annotate a message as it moves through the call pipeline.
type Flags uint32

const (
	// FlagNoCompress marks a message the application refuses to have
	// compressed (e.g. to avoid CRIME/BEAST-style leaks).
	FlagNoCompress Flags = 1 << iota
	// FlagCompressed means the payload bytes currently held by the
	// message are the compressed form.
	FlagCompressed
	// FlagWasCompressed records that the payload arrived compressed
	// and was decompressed in the pipeline. Diagnostic only.
	FlagWasCompressed
)

// Message is one unit of payload flowing through a call. It has
// exactly one owner at any instant: whoever holds it may mutate the
// payload and flags in place.
type Message struct {
	payload []byte
	flags   Flags
}

func New(payload []byte, flags Flags) *Message {
	return &Message{payload, flags}
}

func (m *Message) Payload() []byte     { return m.payload }
func (m *Message) SetPayload(p []byte) { m.payload = p }
func (m *Message) Len() int            { return len(m.payload) }

func (m *Message) Flags() Flags     { return m.flags }
func (m *Message) SetFlags(f Flags) { m.flags = f }
