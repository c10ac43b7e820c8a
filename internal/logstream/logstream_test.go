package logstream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastsWritesToConnectedClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let the server register the client
	_, err = hub.Write([]byte("tick complete\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "tick complete\n", string(msg))
}

func TestHub_WriteWithNoClientsDoesNotBlock(t *testing.T) {
	hub := NewHub()
	n, err := hub.Write([]byte("nobody listening"))
	require.NoError(t, err)
	require.Equal(t, len("nobody listening"), n)
}
