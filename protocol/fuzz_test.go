package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
)

// FuzzReadResponse fuzzes the response decoder to find crashes and panics.
// Run with: go test -fuzz='^FuzzReadResponse$' -fuzztime=60s ./protocol
func FuzzReadResponse(f *testing.F) {
	for _, op := range RequestOpcodes {
		var buf bytes.Buffer
		_ = WriteResponse(&buf, sampleResponse(op.Response(), StatusSuccess), true)
		f.Add(buf.Bytes(), true)
		f.Add(buf.Bytes(), false)
	}

	f.Add([]byte{0xA1, 0x00, 0x50, 0x85, 0x00, 0x03, 'b', 'a', 'd'}, false) // Error frame
	f.Add([]byte{0xA1, 0x00, 0x1A, 0x00, 0x00, 0x07}, false)                // Bad bulk marker
	f.Add([]byte{0xA1, 0x00, 0x04, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, false)
	f.Add([]byte{0xA0, 0x00, 0x04, 0x00, 0x00}, false) // Wrong magic
	f.Add([]byte{}, false)

	f.Fuzz(func(t *testing.T, data []byte, wantPrevious bool) {
		resp, err := ReadResponse(bufio.NewReader(bytes.NewReader(data)), wantPrevious)
		if err != nil {
			if resp != nil {
				t.Errorf("ReadResponse returned both response and error: %v", err)
			}

			var state ErrorWithConnectionState
			if !errors.As(err, &state) {
				t.Errorf("ReadResponse returned an untyped error: %v", err)
			}
			return
		}

		if resp.Header.Magic != MagicResponse {
			t.Errorf("accepted magic 0x%02x", uint8(resp.Header.Magic))
		}
		if !resp.Header.Status.IsOK() {
			t.Errorf("decoded a body for error status %s", resp.Header.Status)
		}
	})
}

// FuzzReadVarint checks that decoding never over-reads and that every value
// it accepts re-encodes to a prefix of the input.
func FuzzReadVarint(f *testing.F) {
	f.Add([]byte{0x00})
	f.Add([]byte{0x80, 0x01})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F})
	f.Add(bytes.Repeat([]byte{0xFF}, 11))

	f.Fuzz(func(t *testing.T, data []byte) {
		r := bytes.NewReader(data)
		v, err := ReadVarint(r)
		if err != nil {
			return
		}

		consumed := len(data) - r.Len()
		if consumed > 10 {
			t.Fatalf("consumed %d bytes", consumed)
		}
		if data[consumed-1]&0x80 != 0 {
			t.Fatalf("stopped on a continuation byte")
		}
		if VarintLen(v) > consumed {
			t.Fatalf("value %d needs %d bytes, consumed %d", v, VarintLen(v), consumed)
		}
	})
}

// FuzzReadRequest fuzzes the server side request decoder.
func FuzzReadRequest(f *testing.F) {
	for _, op := range RequestOpcodes {
		var buf bytes.Buffer
		_ = WriteRequest(&buf, NewRequest(op, []byte("key")).AddValue([]byte("value")).AddCount(3))
		f.Add(buf.Bytes())
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		req, err := ReadRequest(bufio.NewReader(bytes.NewReader(data)))
		if err != nil {
			return
		}
		if !req.Opcode.IsRequest() {
			t.Errorf("accepted opcode %s", req.Opcode)
		}
	})
}
