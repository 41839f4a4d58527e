package consts

const (
	// EncodingKey announces the algorithm the sender chose for its
	// message payloads.
	EncodingKey = "grpc-encoding"
	// AcceptEncodingKey advertises the set of algorithms the sender
	// is able to decode.
	AcceptEncodingKey = "grpc-accept-encoding"
	// InternalEncodingRequestKey carries a per-call algorithm override
	// from the application. It is consumed by the compression filter
	// and never reaches the wire.
	InternalEncodingRequestKey = "grpc-internal-encoding-request"
)
