package transport

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	server, client := net.Pipe()
	return New(server), New(client)
}

func TestSendTextSmallNoHint(t *testing.T) {
	server, client := pipeConns(t)
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- server.SendText("viewinfo: []") }()

	msg, err := client.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "viewinfo: []", msg.Line)
	require.NoError(t, <-done)
}

func TestSendBinaryWithNextMessageHint(t *testing.T) {
	server, client := pipeConns(t)
	defer server.Close()
	defer client.Close()

	payload := bytes.Repeat([]byte{0x01, 0x02, '\n', 0x03}, smallMessageSize)
	header := "tile: part=0 width=256 height=256"

	done := make(chan error, 1)
	go func() { done <- server.SendBinary(header, payload) }()

	msg, err := client.ReadMessage()
	require.NoError(t, err)
	require.NotEmpty(t, msg.Binary)

	idx := bytes.IndexByte(msg.Binary, '\n')
	require.True(t, idx >= 0)
	require.Equal(t, header, string(msg.Binary[:idx]))
	require.Equal(t, payload, msg.Binary[idx+1:])

	require.NoError(t, <-done)
}

func TestSmallMessageSizeConstantIsPositive(t *testing.T) {
	require.Greater(t, smallMessageSize, 0)
	require.True(t, strings.HasPrefix("nextmessage: size=5", "nextmessage: size="))
}
