package protocol

// Response represents a decoded Hot Rod response.
// This is a low-level container; which fields are set depends on the
// response opcode.
type Response struct {
	Header ResponseHeader

	// Outcome is the status mapped for the response shape.
	Outcome Outcome

	// Value is the entry value of get and getWithVersion. It is nil when
	// the key is absent and empty (not nil) for a stored empty value.
	Value []byte

	// Version is the entry version of getWithVersion, 0 when absent.
	Version uint64

	// Previous is the value replaced or removed by a write when the return
	// previous flag was set. Nil when there was none.
	Previous []byte

	// Stats holds the server statistics of a stats response.
	Stats map[string]string

	// Entries holds the entries of a bulk get response.
	Entries map[string][]byte
}

// Status returns the status byte of the response header.
func (r *Response) Status() Status {
	return r.Header.Status
}

// IsSuccess returns true if the response mapped to OutcomeSuccess.
func (r *Response) IsSuccess() bool {
	return r.Outcome == OutcomeSuccess
}

// IsKeyAbsent returns true if the server reported the key missing.
func (r *Response) IsKeyAbsent() bool {
	return r.Outcome == OutcomeKeyAbsent
}

// HasValue returns true if the response carries an entry value.
func (r *Response) HasValue() bool {
	return r.Value != nil
}
