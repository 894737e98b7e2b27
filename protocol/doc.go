// Package protocol implements the Hot Rod binary wire format (version 10).
//
// This package provides low-level primitives for building request frames and
// decoding response frames. It performs no connection management: callers
// hand it an io.Writer for requests and a *bufio.Reader for responses.
//
// # Frames
//
// A request is a fixed preamble followed by an operation payload:
//
//	0xA0 VARINT(msg id) 0x0A OPCODE CACHE_NAME FLAGS 0x01 0x00 0x00 PAYLOAD
//
// A response is a 5-byte header followed by a body whose shape depends on the
// response opcode and the status byte:
//
//	0xA1 MSG_ID OPCODE STATUS TOPOLOGY_MARK BODY
//
// Variable length integers use 7 bits per byte with a continuation bit.
// Byte strings are a varint length followed by the bytes. Entry versions are
// 8-byte big-endian tokens.
//
// # Dispatch
//
// Each request opcode has a send strategy and each response opcode a receive
// strategy, held in static tables indexed by opcode. Response bodies are only
// read for the ok statuses (StatusSuccess, StatusNotExecuted,
// StatusKeyDoesNotExist). Any other status, or the error opcode, carries a
// length-prefixed message and is returned as a *ProtocolError.
//
// # Outcomes
//
// Conditional operations map their status to an Outcome:
//
//	                    Success   NotExecuted        KeyDoesNotExist
//	putIfAbsent/replace success   not-applied        not-applied
//	replaceIfVersion,
//	remove,
//	removeIfVersion     success   version-mismatch   key-absent
//
// # Error Handling
//
// Every error type implements ErrorWithConnectionState. Use
// ShouldCloseConnection to decide whether the connection can carry another
// request:
//
//	resp, err := protocol.ReadResponse(r, req.WantsPrevious())
//	if err != nil {
//		if protocol.ShouldCloseConnection(err) {
//			conn.Close()
//		}
//		return err
//	}
//
// # Server Side
//
// ReadRequest, WriteResponse and WriteErrorResponse run the same tables in the
// other direction. They exist for in-process test servers.
package protocol
