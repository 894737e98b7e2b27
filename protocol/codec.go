package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Buffer pool for building request and response frames
var bufferPool = sync.Pool{
	New: func() any {
		// Typical frame is well under 256 bytes
		b := make([]byte, 0, 256)
		return &b
	},
}

// maxPooledBuffer keeps frames carrying large values out of the pool.
const maxPooledBuffer = 64 << 10

func getBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

func putBuffer(b *[]byte) {
	if cap(*b) > maxPooledBuffer {
		return
	}
	*b = (*b)[:0]
	bufferPool.Put(b)
}

// requestCodec is the send strategy of a request opcode.
// encode appends the operation payload after the header; decode is the
// server side parser of the same payload.
type requestCodec struct {
	encode func(dst []byte, req *Request) []byte
	decode func(r *bufio.Reader, req *Request) error
}

// responseCodec is the receive strategy of a response opcode.
// decode reads the body for an ok status; encode is the server side writer.
type responseCodec struct {
	decode func(r *bufio.Reader, resp *Response, wantPrevious bool) error
	encode func(dst []byte, resp *Response, wantPrevious bool) []byte
}

var (
	keyLessRequest = &requestCodec{
		encode: func(dst []byte, _ *Request) []byte { return dst },
		decode: func(*bufio.Reader, *Request) error { return nil },
	}

	keyOnlyRequest = &requestCodec{
		encode: func(dst []byte, req *Request) []byte {
			return appendBytes(dst, req.Key)
		},
		decode: func(r *bufio.Reader, req *Request) (err error) {
			req.Key, err = readBytes(r)
			return err
		},
	}

	keyValueRequest = &requestCodec{
		encode: func(dst []byte, req *Request) []byte {
			dst = appendBytes(dst, req.Key)
			dst = AppendVarint(dst, req.Lifespan)
			dst = AppendVarint(dst, req.MaxIdle)
			return appendBytes(dst, req.Value)
		},
		decode: func(r *bufio.Reader, req *Request) error {
			return readFields(r,
				bytesField(&req.Key),
				varintField(&req.Lifespan),
				varintField(&req.MaxIdle),
				bytesField(&req.Value))
		},
	}

	keyValueIfVersionRequest = &requestCodec{
		encode: func(dst []byte, req *Request) []byte {
			dst = appendBytes(dst, req.Key)
			dst = AppendVarint(dst, req.Lifespan)
			dst = AppendVarint(dst, req.MaxIdle)
			dst = binary.BigEndian.AppendUint64(dst, req.Version)
			return appendBytes(dst, req.Value)
		},
		decode: func(r *bufio.Reader, req *Request) error {
			return readFields(r,
				bytesField(&req.Key),
				varintField(&req.Lifespan),
				varintField(&req.MaxIdle),
				versionField(&req.Version),
				bytesField(&req.Value))
		},
	}

	keyIfVersionRequest = &requestCodec{
		encode: func(dst []byte, req *Request) []byte {
			dst = appendBytes(dst, req.Key)
			return binary.BigEndian.AppendUint64(dst, req.Version)
		},
		decode: func(r *bufio.Reader, req *Request) error {
			return readFields(r,
				bytesField(&req.Key),
				versionField(&req.Version))
		},
	}

	bulkCountRequest = &requestCodec{
		encode: func(dst []byte, req *Request) []byte {
			return AppendVarint(dst, req.Count)
		},
		decode: func(r *bufio.Reader, req *Request) error {
			return readFields(r, varintField(&req.Count))
		},
	}
)

// requestCodecs is indexed by request opcode.
var requestCodecs = [256]*requestCodec{
	OpcodeClear:            keyLessRequest,
	OpcodeStats:            keyLessRequest,
	OpcodePing:             keyLessRequest,
	OpcodeGet:              keyOnlyRequest,
	OpcodeGetWithVersion:   keyOnlyRequest,
	OpcodeRemove:           keyOnlyRequest,
	OpcodeContainsKey:      keyOnlyRequest,
	OpcodePut:              keyValueRequest,
	OpcodePutIfAbsent:      keyValueRequest,
	OpcodeReplace:          keyValueRequest,
	OpcodeReplaceIfVersion: keyValueIfVersionRequest,
	OpcodeRemoveIfVersion:  keyIfVersionRequest,
	OpcodeBulkGet:          bulkCountRequest,
}

var (
	// clear, ping, containsKey: no body.
	keyLessResponse = &responseCodec{
		decode: func(_ *bufio.Reader, resp *Response, _ bool) error {
			resp.Outcome = keyLessOutcome(resp.Header.Status)
			return nil
		},
		encode: func(dst []byte, _ *Response, _ bool) []byte { return dst },
	}

	// get: a value unless the key is absent.
	keyOnlyResponse = &responseCodec{
		decode: func(r *bufio.Reader, resp *Response, _ bool) (err error) {
			if resp.Header.Status == StatusKeyDoesNotExist {
				resp.Outcome = OutcomeKeyAbsent
				return nil
			}
			resp.Outcome = OutcomeSuccess
			resp.Value, err = readBytes(r)
			return err
		},
		encode: func(dst []byte, resp *Response, _ bool) []byte {
			if resp.Header.Status == StatusKeyDoesNotExist {
				return dst
			}
			return appendBytes(dst, resp.Value)
		},
	}

	getWithVersionResponse = &responseCodec{
		decode: func(r *bufio.Reader, resp *Response, _ bool) error {
			if resp.Header.Status == StatusKeyDoesNotExist {
				resp.Outcome = OutcomeKeyAbsent
				return nil
			}
			resp.Outcome = OutcomeSuccess
			return readFields(r,
				versionField(&resp.Version),
				bytesField(&resp.Value))
		},
		encode: func(dst []byte, resp *Response, _ bool) []byte {
			if resp.Header.Status == StatusKeyDoesNotExist {
				return dst
			}
			dst = binary.BigEndian.AppendUint64(dst, resp.Version)
			return appendBytes(dst, resp.Value)
		},
	}

	// put: the previous value follows when requested, or when the status
	// is not a plain success.
	putResponse = &responseCodec{
		decode: func(r *bufio.Reader, resp *Response, wantPrevious bool) (err error) {
			resp.Outcome = twoWayOutcome(resp.Header.Status)
			if !putHasBody(resp.Header.Status, wantPrevious) {
				return nil
			}
			resp.Previous, err = readPrevious(r)
			return err
		},
		encode: func(dst []byte, resp *Response, wantPrevious bool) []byte {
			if !putHasBody(resp.Header.Status, wantPrevious) {
				return dst
			}
			return appendBytes(dst, resp.Previous)
		},
	}

	twoWayResponse   = conditionalResponse(twoWayOutcome)
	threeWayResponse = conditionalResponse(threeWayOutcome)

	// stats: a varint count of name/value pairs.
	statsResponse = &responseCodec{
		decode: func(r *bufio.Reader, resp *Response, _ bool) error {
			n, err := ReadVarintLength(r)
			if err != nil {
				return err
			}

			resp.Outcome = OutcomeSuccess
			resp.Stats = make(map[string]string, min(n, 64))
			for range n {
				name, err := readBytes(r)
				if err != nil {
					return err
				}
				value, err := readBytes(r)
				if err != nil {
					return err
				}
				resp.Stats[string(name)] = string(value)
			}
			return nil
		},
		encode: func(dst []byte, resp *Response, _ bool) []byte {
			dst = AppendVarint(dst, uint64(len(resp.Stats)))
			for name, value := range resp.Stats {
				dst = appendString(dst, name)
				dst = appendString(dst, value)
			}
			return dst
		},
	}

	// bulkGet: entries each preceded by a marker byte, 1 for another entry
	// and 0 for the end.
	bulkGetResponse = &responseCodec{
		decode: func(r *bufio.Reader, resp *Response, _ bool) error {
			resp.Outcome = OutcomeSuccess
			resp.Entries = make(map[string][]byte)
			for {
				more, err := r.ReadByte()
				if err != nil {
					return readError(err)
				}

				switch more {
				case bulkEnd:
					return nil
				case bulkMore:
				default:
					return &DecodeError{Message: fmt.Sprintf("invalid bulk entry marker 0x%02x", more)}
				}

				key, err := readBytes(r)
				if err != nil {
					return err
				}
				value, err := readBytes(r)
				if err != nil {
					return err
				}
				resp.Entries[string(key)] = value
			}
		},
		encode: func(dst []byte, resp *Response, _ bool) []byte {
			for key, value := range resp.Entries {
				dst = append(dst, bulkMore)
				dst = appendString(dst, key)
				dst = appendBytes(dst, value)
			}
			return append(dst, bulkEnd)
		},
	}
)

// responseCodecs is indexed by response opcode. The error opcode has no
// entry: error frames are handled before dispatch.
var responseCodecs = [256]*responseCodec{
	OpcodeClearResponse:            keyLessResponse,
	OpcodePingResponse:             keyLessResponse,
	OpcodeContainsKeyResponse:      keyLessResponse,
	OpcodeGetResponse:              keyOnlyResponse,
	OpcodeGetWithVersionResponse:   getWithVersionResponse,
	OpcodePutResponse:              putResponse,
	OpcodePutIfAbsentResponse:      twoWayResponse,
	OpcodeReplaceResponse:          twoWayResponse,
	OpcodeReplaceIfVersionResponse: threeWayResponse,
	OpcodeRemoveResponse:           threeWayResponse,
	OpcodeRemoveIfVersionResponse:  threeWayResponse,
	OpcodeStatsResponse:            statsResponse,
	OpcodeBulkGetResponse:          bulkGetResponse,
}

func conditionalResponse(outcome func(Status) Outcome) *responseCodec {
	return &responseCodec{
		decode: func(r *bufio.Reader, resp *Response, wantPrevious bool) (err error) {
			resp.Outcome = outcome(resp.Header.Status)
			if !wantPrevious {
				return nil
			}
			resp.Previous, err = readPrevious(r)
			return err
		},
		encode: func(dst []byte, resp *Response, wantPrevious bool) []byte {
			if !wantPrevious {
				return dst
			}
			return appendBytes(dst, resp.Previous)
		},
	}
}

func putHasBody(status Status, wantPrevious bool) bool {
	return wantPrevious || status != StatusSuccess
}

// Validate checks every length and bounded numeric field of req against
// MaxVInt. It returns an EncodeError naming the first field out of range.
func (r *Request) Validate() error {
	if err := checkBound("cache name length", uint64(len(r.CacheName))); err != nil {
		return err
	}
	if err := checkBound("key length", uint64(len(r.Key))); err != nil {
		return err
	}
	if err := checkBound("value length", uint64(len(r.Value))); err != nil {
		return err
	}
	if err := checkBound("lifespan", r.Lifespan); err != nil {
		return err
	}
	if err := checkBound("max idle", r.MaxIdle); err != nil {
		return err
	}
	if err := checkBound("count", r.Count); err != nil {
		return err
	}
	if r.MessageID > MaxVLong {
		return &EncodeError{Field: "message id", Value: r.MessageID}
	}
	return nil
}

// ValidateCacheName checks a cache name length before a connection is used.
func ValidateCacheName(name string) error {
	return checkBound("cache name length", uint64(len(name)))
}

func checkBound(field string, value uint64) error {
	if value > MaxVInt {
		return &EncodeError{Field: field, Value: value}
	}
	return nil
}

// AppendRequest validates req and appends its complete frame to dst.
// Nothing is appended when validation fails.
func AppendRequest(dst []byte, req *Request) ([]byte, error) {
	codec := requestCodecs[req.Opcode]
	if codec == nil {
		return dst, fmt.Errorf("unknown request opcode 0x%02x", uint8(req.Opcode))
	}
	if err := req.Validate(); err != nil {
		return dst, err
	}

	dst = req.Header().AppendTo(dst)
	return codec.encode(dst, req), nil
}

// WriteRequest serializes req and writes it to w with a single Write call.
//
// Validation failures return an EncodeError and nothing is written.
// Write failures return a ConnectionError.
func WriteRequest(w io.Writer, req *Request) error {
	buf := getBuffer()
	defer putBuffer(buf)

	frame, err := AppendRequest(*buf, req)
	if err != nil {
		return err
	}
	*buf = frame

	if _, err := w.Write(frame); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// ReadResponse reads and decodes a single response from r.
//
// wantPrevious must match the return previous flag of the request, since it
// decides whether write responses carry a previous value.
//
// Errors:
//   - ProtocolError: the server answered with the error opcode or an error
//     status; the frame was fully consumed and the connection can be reused
//   - InvalidMagicError, DecodeError: the stream is out of sync, close it
//   - ConnectionError: I/O failure or peer closed, close it
func ReadResponse(r *bufio.Reader, wantPrevious bool) (*Response, error) {
	header, err := ReadResponseHeader(r)
	if err != nil {
		return nil, err
	}

	if header.Opcode == OpcodeError || !header.Status.IsOK() {
		msg, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return nil, &ProtocolError{Status: header.Status, Message: string(msg)}
	}

	codec := responseCodecs[header.Opcode]
	if codec == nil {
		return nil, &DecodeError{Message: fmt.Sprintf("response opcode 0x%02x", uint8(header.Opcode)), Err: ErrUnknownOpcode}
	}

	resp := &Response{Header: header}
	if err := codec.decode(r, resp, wantPrevious); err != nil {
		return nil, err
	}
	return resp, nil
}

// ReadRequest reads and decodes a single request from r. It is the server
// side counterpart of WriteRequest.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	header, err := ReadRequestHeader(r)
	if err != nil {
		return nil, err
	}

	codec := requestCodecs[header.Opcode]
	if codec == nil {
		return nil, &DecodeError{Message: fmt.Sprintf("request opcode 0x%02x", uint8(header.Opcode)), Err: ErrUnknownOpcode}
	}

	req := &Request{
		Opcode:    header.Opcode,
		MessageID: header.MessageID,
		CacheName: header.CacheName,
		Flags:     header.Flags,
	}
	if err := codec.decode(r, req); err != nil {
		return nil, err
	}
	return req, nil
}

// WriteResponse writes resp, body included, with a single Write call. Header
// magic is forced to MagicResponse. It is the server side counterpart of
// ReadResponse.
func WriteResponse(w io.Writer, resp *Response, wantPrevious bool) error {
	codec := responseCodecs[resp.Header.Opcode]
	if codec == nil {
		return fmt.Errorf("unknown response opcode 0x%02x", uint8(resp.Header.Opcode))
	}

	buf := getBuffer()
	defer putBuffer(buf)

	header := resp.Header
	header.Magic = MagicResponse
	frame := header.AppendTo(*buf)
	if header.Status.IsOK() {
		frame = codec.encode(frame, resp, wantPrevious)
	}
	*buf = frame

	if _, err := w.Write(frame); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

// WriteErrorResponse writes an error frame: the error opcode, status and a
// length-prefixed message.
func WriteErrorResponse(w io.Writer, messageID byte, status Status, message string) error {
	buf := getBuffer()
	defer putBuffer(buf)

	header := ResponseHeader{
		Magic:     MagicResponse,
		MessageID: messageID,
		Opcode:    OpcodeError,
		Status:    status,
	}
	frame := appendString(header.AppendTo(*buf), message)
	*buf = frame

	if _, err := w.Write(frame); err != nil {
		return &ConnectionError{Op: "write", Err: err}
	}
	return nil
}

func appendBytes(dst, b []byte) []byte {
	dst = AppendVarint(dst, uint64(len(b)))
	return append(dst, b...)
}

func appendString(dst []byte, s string) []byte {
	dst = AppendVarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// readBytes reads a varint length followed by that many bytes. A zero length
// returns an empty, non-nil slice.
func readBytes(r *bufio.Reader) ([]byte, error) {
	n, err := ReadVarintLength(r)
	if err != nil {
		return nil, err
	}

	// Lengths come from the peer: only trust them up front for small values.
	if n <= maxPooledBuffer {
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, readError(err)
		}
		return b, nil
	}

	var buf bytes.Buffer
	buf.Grow(maxPooledBuffer)
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		return nil, readError(err)
	}
	return buf.Bytes(), nil
}

// readPrevious reads a previous value. Zero length means there was none.
func readPrevious(r *bufio.Reader) ([]byte, error) {
	b, err := readBytes(r)
	if err != nil || len(b) == 0 {
		return nil, err
	}
	return b, nil
}

type fieldReader func(r *bufio.Reader) error

func readFields(r *bufio.Reader, fields ...fieldReader) error {
	for _, f := range fields {
		if err := f(r); err != nil {
			return err
		}
	}
	return nil
}

func bytesField(dst *[]byte) fieldReader {
	return func(r *bufio.Reader) (err error) {
		*dst, err = readBytes(r)
		return err
	}
}

func varintField(dst *uint64) fieldReader {
	return func(r *bufio.Reader) (err error) {
		*dst, err = ReadVarint(r)
		return err
	}
}

func versionField(dst *uint64) fieldReader {
	return func(r *bufio.Reader) error {
		var b [VersionLen]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return readError(err)
		}
		*dst = binary.BigEndian.Uint64(b[:])
		return nil
	}
}
