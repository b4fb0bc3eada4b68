package vw

// Transport carries example lines to a vw engine and response lines back.
// Implementations are not safe for concurrent use.
type Transport interface {
	// SendLine writes line followed by a single newline.
	SendLine(line string) error

	// ReadLine blocks until a full line is available and returns it without
	// the newline. If the engine closes the stream first, the partial line
	// is returned with io.EOF. There is no timeout: a hung engine blocks
	// the caller.
	ReadLine() (string, error)

	// Close releases the stream and any process the transport started.
	Close() error
}
