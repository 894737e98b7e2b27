package hotrod

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pior/hotrod/internal/testutils"
	"github.com/pior/hotrod/protocol"
	"github.com/stretchr/testify/require"
)

func responseFrame(t *testing.T, op protocol.Opcode, msgID byte, status protocol.Status) []byte {
	t.Helper()

	var buf bytes.Buffer
	resp := &protocol.Response{
		Header: protocol.ResponseHeader{MessageID: msgID, Opcode: op, Status: status},
	}
	require.NoError(t, protocol.WriteResponse(&buf, resp, false))
	return buf.Bytes()
}

func errorFrame(t *testing.T, msgID byte, status protocol.Status, message string) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, protocol.WriteErrorResponse(&buf, msgID, status, message))
	return buf.Bytes()
}

func TestConnection_SendFrameIdempotence(t *testing.T) {
	mock := testutils.NewConnectionMock(
		responseFrame(t, protocol.OpcodeContainsKeyResponse, 0, protocol.StatusSuccess),
		responseFrame(t, protocol.OpcodeContainsKeyResponse, 1, protocol.StatusSuccess),
	)
	conn := NewConnection(mock)
	ctx := context.Background()

	_, err := conn.Send(ctx, protocol.NewRequest(protocol.OpcodeContainsKey, []byte("k")))
	require.NoError(t, err)
	first := bytes.Clone(mock.GetWrittenRequest())
	mock.ResetWritten()

	_, err = conn.Send(ctx, protocol.NewRequest(protocol.OpcodeContainsKey, []byte("k")))
	require.NoError(t, err)
	second := mock.GetWrittenRequest()

	require.Len(t, second, len(first))
	require.Equal(t, byte(protocol.MagicRequest), first[0])
	require.Equal(t, byte(0), first[1])
	require.Equal(t, byte(1), second[1])
	require.Equal(t, first[2:], second[2:])
	require.Equal(t, uint64(2), conn.MessageID())
}

func TestConnection_SendOneWritePerRequest(t *testing.T) {
	mock := testutils.NewConnectionMock(
		responseFrame(t, protocol.OpcodePutResponse, 0, protocol.StatusSuccess),
	)
	conn := NewConnection(mock)

	req := protocol.NewRequest(protocol.OpcodePut, []byte("key")).AddValue([]byte("value"))
	resp, err := conn.Send(context.Background(), req)
	require.NoError(t, err)
	require.True(t, resp.IsSuccess())
	require.Equal(t, 1, mock.Writes())
}

func TestConnection_EncodeErrorWritesNothing(t *testing.T) {
	mock := testutils.NewConnectionMock(
		responseFrame(t, protocol.OpcodePutResponse, 0, protocol.StatusSuccess),
	)
	conn := NewConnection(mock)
	ctx := context.Background()

	req := protocol.NewRequest(protocol.OpcodePut, []byte("key")).AddValue([]byte("value"))
	req.Lifespan = protocol.MaxVInt + 1

	_, err := conn.Send(ctx, req)
	var encodeErr *protocol.EncodeError
	require.ErrorAs(t, err, &encodeErr)
	require.Equal(t, "lifespan", encodeErr.Field)

	require.Zero(t, mock.Writes())
	require.Empty(t, mock.GetWrittenRequest())
	require.Equal(t, uint64(0), conn.MessageID())
	require.NoError(t, conn.Broken())

	// The connection is still usable.
	_, err = conn.Send(ctx, protocol.NewRequest(protocol.OpcodePut, []byte("key")).AddValue([]byte("value")))
	require.NoError(t, err)
	require.Equal(t, uint64(1), conn.MessageID())
}

func TestConnection_NegativeLifespanRejected(t *testing.T) {
	mock := testutils.NewConnectionMock()
	conn := NewConnection(mock)

	req := protocol.NewRequest(protocol.OpcodePut, []byte("key")).AddLifespan(-time.Second)
	_, err := conn.Send(context.Background(), req)

	var encodeErr *protocol.EncodeError
	require.ErrorAs(t, err, &encodeErr)
	require.Zero(t, mock.Writes())
}

func TestConnection_MessageIDWraps(t *testing.T) {
	mock := testutils.NewConnectionMock(
		responseFrame(t, protocol.OpcodePingResponse, 0xFF, protocol.StatusSuccess),
		responseFrame(t, protocol.OpcodePingResponse, 0, protocol.StatusSuccess),
	)
	conn := NewConnection(mock)
	conn.messageID = protocol.MaxVLong
	ctx := context.Background()

	_, err := conn.Send(ctx, protocol.NewRequest(protocol.OpcodePing, nil))
	require.NoError(t, err)

	idLen := protocol.VarintLen(protocol.MaxVLong)
	require.Equal(t, protocol.AppendVarint(nil, protocol.MaxVLong), mock.GetWrittenRequest()[1:1+idLen])
	require.Equal(t, uint64(0), conn.MessageID())
	mock.ResetWritten()

	_, err = conn.Send(ctx, protocol.NewRequest(protocol.OpcodePing, nil))
	require.NoError(t, err)
	require.Equal(t, byte(0), mock.GetWrittenRequest()[1])
	require.Equal(t, uint64(1), conn.MessageID())
}

func TestConnection_ProtocolErrorKeepsConnection(t *testing.T) {
	mock := testutils.NewConnectionMock(
		errorFrame(t, 0, protocol.StatusServerError, "boom"),
		responseFrame(t, protocol.OpcodePingResponse, 1, protocol.StatusSuccess),
	)
	conn := NewConnection(mock)
	ctx := context.Background()

	_, err := conn.Send(ctx, protocol.NewRequest(protocol.OpcodePing, nil))
	var protoErr *protocol.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, protocol.StatusServerError, protoErr.Status)
	require.Equal(t, "boom", protoErr.Message)
	require.NoError(t, conn.Broken())

	resp, err := conn.Send(ctx, protocol.NewRequest(protocol.OpcodePing, nil))
	require.NoError(t, err)
	require.True(t, resp.IsSuccess())
}

func TestConnection_BrokenAfterInvalidMagic(t *testing.T) {
	mock := testutils.NewConnectionMock(
		[]byte{0x42, 0x00, byte(protocol.OpcodePingResponse), 0x00, 0x00},
		responseFrame(t, protocol.OpcodePingResponse, 1, protocol.StatusSuccess),
	)
	conn := NewConnection(mock)
	ctx := context.Background()

	_, err := conn.Send(ctx, protocol.NewRequest(protocol.OpcodePing, nil))
	var magicErr *protocol.InvalidMagicError
	require.ErrorAs(t, err, &magicErr)
	require.Equal(t, protocol.Magic(0x42), magicErr.Magic)
	require.Error(t, conn.Broken())

	_, err = conn.Send(ctx, protocol.NewRequest(protocol.OpcodePing, nil))
	require.ErrorIs(t, err, ErrConnectionBroken)
	require.ErrorAs(t, err, &magicErr)
	require.Equal(t, 1, mock.Writes())
}

func TestConnection_BrokenAfterDecodeError(t *testing.T) {
	frame := responseFrame(t, protocol.OpcodeBulkGetResponse, 0, protocol.StatusSuccess)
	frame[len(frame)-1] = 0x07 // bulk marker

	mock := testutils.NewConnectionMock(frame)
	conn := NewConnection(mock)

	_, err := conn.Send(context.Background(), protocol.NewRequest(protocol.OpcodeBulkGet, nil))
	var decodeErr *protocol.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.ErrorAs(t, conn.Broken(), &decodeErr)
}

func TestConnection_PeerClosed(t *testing.T) {
	mock := testutils.NewConnectionMock()
	conn := NewConnection(mock)

	_, err := conn.Send(context.Background(), protocol.NewRequest(protocol.OpcodePing, nil))
	require.ErrorIs(t, err, protocol.ErrConnectionClosed)

	var connErr *protocol.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "read", connErr.Op)
	require.Error(t, conn.Broken())
	require.Equal(t, uint64(1), conn.MessageID())
}

func TestConnection_WriteFailure(t *testing.T) {
	mock := testutils.NewConnectionMock()
	mock.WriteErr = errors.New("broken pipe")
	conn := NewConnection(mock)

	_, err := conn.Send(context.Background(), protocol.NewRequest(protocol.OpcodePing, nil))
	var connErr *protocol.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, "write", connErr.Op)
	require.Equal(t, uint64(0), conn.MessageID())
	require.Error(t, conn.Broken())
}

func TestConnection_Close(t *testing.T) {
	mock := testutils.NewConnectionMock()
	conn := NewConnection(mock)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.True(t, mock.IsClosed())
	require.True(t, conn.IsClosed())

	_, err := conn.Send(context.Background(), protocol.NewRequest(protocol.OpcodePing, nil))
	require.ErrorIs(t, err, ErrClientClosed)
	require.Zero(t, mock.Writes())
}

func TestConnection_ContextDeadline(t *testing.T) {
	mock := testutils.NewConnectionMock(
		responseFrame(t, protocol.OpcodePingResponse, 0, protocol.StatusSuccess),
		responseFrame(t, protocol.OpcodePingResponse, 1, protocol.StatusSuccess),
	)
	conn := NewConnection(mock)

	deadline := time.Now().Add(time.Minute)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	_, err := conn.Send(ctx, protocol.NewRequest(protocol.OpcodePing, nil))
	require.NoError(t, err)
	require.True(t, mock.Deadline().Equal(deadline))

	_, err = conn.Send(context.Background(), protocol.NewRequest(protocol.OpcodePing, nil))
	require.NoError(t, err)
	require.True(t, mock.Deadline().IsZero())
}

func TestConnection_ContextCanceled(t *testing.T) {
	mock := testutils.NewConnectionMock()
	conn := NewConnection(mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := conn.Send(ctx, protocol.NewRequest(protocol.OpcodePing, nil))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, mock.Writes())
	require.NoError(t, conn.Broken())
}

func TestConnection_RemoteAddr(t *testing.T) {
	conn := NewConnection(testutils.NewConnectionMock())
	require.Equal(t, "127.0.0.1:11222", conn.RemoteAddr().String())
}
