package http1

// Tx is the transmit-side context of the current exchange. The outbound
// response pipeline itself lives outside this core; the state machine only
// records what the handler will need and observes the completion flags the
// pipeline sets.
type Tx struct {
	// Status and StatusMessage of the response being produced. The core sets
	// these itself when a parse or limit failure aborts the request.
	Status        int
	StatusMessage string

	// Ext is the URI extension, copied from the parsed request so content
	// negotiation does not re-derive it.
	Ext string

	// SuppressBody is set for HEAD, OPTIONS and TRACE: headers are emitted,
	// the body is not.
	SuppressBody bool

	// Headers staged for emission.
	Headers HeaderMap
}

// NewTx returns an empty transmit context.
func NewTx() *Tx {
	return &Tx{}
}

// SetStatus records the response status unless one is already latched.
func (tx *Tx) SetStatus(status int, message string) {
	if tx.Status == 0 {
		tx.Status = status
		tx.StatusMessage = message
	}
}

// reset clears the context for reuse.
func (tx *Tx) reset() {
	*tx = Tx{Headers: tx.Headers}
	tx.Headers.Reset()
}
