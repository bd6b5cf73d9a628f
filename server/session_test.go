package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionDeliversInOrder(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	sess := newSession("alice", serverConn, 10, time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(bufio.NewReader(serverConn), func(string) bool { return false })
	}()

	assert.True(t, sess.Enqueue("one"))
	assert.True(t, sess.Enqueue("two"))
	sess.EnqueueFinal()

	reader := bufio.NewReader(clientConn)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))

	line, err := reader.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "one\n", line)

	line, err = reader.ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "two\n", line)

	// The sentinel closes the connection and both workers terminate.
	_, err = reader.ReadString('\n')
	assert.Error(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not terminate")
	}
}

func TestEnqueueRejectedAfterSentinel(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	sess := newSession("alice", serverConn, 10, time.Second)
	sess.EnqueueFinal()

	// Producers observe the closing session and fall back to the offline
	// store instead of queueing behind the sentinel.
	assert.False(t, sess.Enqueue("late"))
}
