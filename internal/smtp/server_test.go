//go:build unit

package smtp

import (
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type receivedMessage struct {
	from   string
	to     string
	data   string
	authed bool
}

// fakeServer speaks just enough ESMTP for the client under test.
type fakeServer struct {
	ln         net.Listener
	auth       bool
	rejectRcpt string

	mu       sync.Mutex
	messages []receivedMessage
	sessions int
}

func startFakeServer(t *testing.T, configure func(*fakeServer)) *fakeServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &fakeServer{ln: ln}
	if configure != nil {
		configure(server)
	}

	go server.serve()
	t.Cleanup(func() { _ = ln.Close() })

	return server
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) received() []receivedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]receivedMessage(nil), s.messages...)
}

func (s *fakeServer) sessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()

	s.mu.Lock()
	s.sessions++
	s.mu.Unlock()

	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 fake ESMTP")

	var msg receivedMessage
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}

		verb := strings.ToUpper(strings.Fields(line + " ")[0])
		switch verb {
		case "EHLO", "HELO":
			if s.auth {
				_ = tp.PrintfLine("250-fake")
				_ = tp.PrintfLine("250 AUTH PLAIN")
			} else {
				_ = tp.PrintfLine("250 fake")
			}
		case "AUTH":
			msg.authed = true
			_ = tp.PrintfLine("235 2.7.0 Authentication successful")
		case "MAIL":
			msg.from = line
			_ = tp.PrintfLine("250 OK")
		case "RCPT":
			if s.rejectRcpt != "" && strings.Contains(line, s.rejectRcpt) {
				_ = tp.PrintfLine("550 5.1.1 no such user")
				continue
			}
			msg.to = line
			_ = tp.PrintfLine("250 OK")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			msg.data = string(data)
			s.mu.Lock()
			s.messages = append(s.messages, msg)
			s.mu.Unlock()
			_ = tp.PrintfLine("250 2.0.0 Ok: queued as ABC123")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		case "RSET", "NOOP":
			_ = tp.PrintfLine("250 OK")
		default:
			_ = tp.PrintfLine("502 command not implemented")
		}
	}
}
