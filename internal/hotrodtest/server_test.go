package hotrodtest

import (
	"bufio"
	"net"
	"testing"

	"github.com/pior/hotrod/protocol"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, req *protocol.Request) (*protocol.Response, error) {
	t.Helper()

	require.NoError(t, protocol.WriteRequest(conn, req))
	return protocol.ReadResponse(r, req.WantsPrevious())
}

func dial(t *testing.T, s *Server) (net.Conn, *bufio.Reader) {
	t.Helper()

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func TestServer_EchoesMessageID(t *testing.T) {
	s := NewServer(t)
	conn, r := dial(t, s)

	resp, err := roundTrip(t, conn, r, protocol.NewRequest(protocol.OpcodePing, nil).AddMessageID(300))
	require.NoError(t, err)
	require.Equal(t, protocol.OpcodePingResponse, resp.Header.Opcode)
	require.Equal(t, byte(300&0xFF), resp.Header.MessageID)
	require.Equal(t, uint64(1), s.Requests())
}

func TestServer_UnknownCache(t *testing.T) {
	s := NewServer(t, "a")
	conn, r := dial(t, s)

	_, err := roundTrip(t, conn, r, protocol.NewRequest(protocol.OpcodePing, nil).AddCacheName("b"))
	var protoErr *protocol.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, protocol.StatusServerError, protoErr.Status)
	require.Contains(t, protoErr.Message, "Cache with name 'b' not found")

	resp, err := roundTrip(t, conn, r, protocol.NewRequest(protocol.OpcodePing, nil).AddCacheName("a"))
	require.NoError(t, err)
	require.True(t, resp.IsSuccess())
}

func TestServer_UnknownOpcode(t *testing.T) {
	s := NewServer(t)
	conn, r := dial(t, s)

	frame := protocol.RequestHeader{Opcode: protocol.Opcode(0x30)}.AppendTo(nil)
	_, err := conn.Write(frame)
	require.NoError(t, err)

	_, err = protocol.ReadResponse(r, false)
	var protoErr *protocol.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, protocol.StatusUnknownCommand, protoErr.Status)
	require.Contains(t, protoErr.Message, "request opcode 0x30")

	// The server hangs up after an unparsable request.
	_, err = r.ReadByte()
	require.Error(t, err)
}

func TestServer_BadMagic(t *testing.T) {
	s := NewServer(t)
	conn, r := dial(t, s)

	_, err := conn.Write([]byte{0x42})
	require.NoError(t, err)

	_, err = protocol.ReadResponse(r, false)
	var protoErr *protocol.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, protocol.StatusParseError, protoErr.Status)
}

func TestStatusForDecodeError(t *testing.T) {
	unknown := &protocol.DecodeError{Message: "opcode 0x30", Err: protocol.ErrUnknownOpcode}
	require.Equal(t, protocol.StatusUnknownCommand, statusForDecodeError(unknown))

	// The message text plays no part in the choice.
	malformed := &protocol.DecodeError{Message: "unknown marker"}
	require.Equal(t, protocol.StatusParseError, statusForDecodeError(malformed))
}

func TestServer_BulkGetCount(t *testing.T) {
	s := NewServer(t)
	conn, r := dial(t, s)

	for _, key := range []string{"a", "b", "c"} {
		_, err := roundTrip(t, conn, r, protocol.NewRequest(protocol.OpcodePut, []byte(key)).AddValue([]byte(key)))
		require.NoError(t, err)
	}

	resp, err := roundTrip(t, conn, r, protocol.NewRequest(protocol.OpcodeBulkGet, nil).AddCount(2))
	require.NoError(t, err)
	require.Len(t, resp.Entries, 2)

	resp, err = roundTrip(t, conn, r, protocol.NewRequest(protocol.OpcodeBulkGet, nil))
	require.NoError(t, err)
	require.Len(t, resp.Entries, 3)
	require.Equal(t, 3, s.Len(DefaultCache))
}

func TestServer_CloseWithOpenConnections(t *testing.T) {
	s, err := Start()
	require.NoError(t, err)

	conn, r := dial(t, s)
	_, err = roundTrip(t, conn, r, protocol.NewRequest(protocol.OpcodePing, nil))
	require.NoError(t, err)

	require.NoError(t, s.Close())

	_, err = r.ReadByte()
	require.Error(t, err)
}
