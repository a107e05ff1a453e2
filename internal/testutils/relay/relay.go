// Package relay provides a minimal in-process SMTP relay for tests. It speaks
// just enough of the protocol for a plain-text client: EHLO, MAIL, RCPT, DATA,
// QUIT. It advertises neither STARTTLS nor AUTH.
package relay

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type Message struct {
	From string
	To   []string
	Data string
}

type Stub struct {
	ln       net.Listener
	mu       sync.Mutex
	reject   bool
	stall    time.Duration
	messages []Message
	wg       sync.WaitGroup
}

// Start listens on a random loopback port and serves until the test ends.
func Start(t *testing.T) *Stub {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s := &Stub{ln: ln}
	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

func (s *Stub) Host() string {
	return "127.0.0.1"
}

func (s *Stub) Port() string {
	return strconv.Itoa(s.ln.Addr().(*net.TCPAddr).Port)
}

func (s *Stub) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Stub) Close() {
	_ = s.ln.Close()
	s.wg.Wait()
}

// RejectRecipients makes every following RCPT TO fail with a 550.
func (s *Stub) RejectRecipients(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = reject
}

// StallData delays the reply to every following DATA command.
func (s *Stub) StallData(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall = d
}

func (s *Stub) dataStall() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stall
}

func (s *Stub) rejecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reject
}

func (s *Stub) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Stub) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	fmt.Fprintf(conn, "220 localhost Test SMTP Service Ready\r\n")

	var current Message
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		cmd := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			fmt.Fprintf(conn, "250-localhost Hello\r\n250 OK\r\n")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			current = Message{From: addressOf(line[len("MAIL FROM:"):])}
			fmt.Fprintf(conn, "250 OK\r\n")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			if s.rejecting() {
				fmt.Fprintf(conn, "550 5.1.1 Mailbox unavailable\r\n")
				continue
			}
			current.To = append(current.To, addressOf(line[len("RCPT TO:"):]))
			fmt.Fprintf(conn, "250 OK\r\n")
		case cmd == "DATA":
			if d := s.dataStall(); d > 0 {
				time.Sleep(d)
			}
			fmt.Fprintf(conn, "354 End data with <CR><LF>.<CR><LF>\r\n")
			var data strings.Builder
			for {
				dline, derr := r.ReadString('\n')
				if derr != nil {
					return
				}
				if strings.TrimRight(dline, "\r\n") == "." {
					break
				}
				data.WriteString(dline)
			}
			current.Data = data.String()
			s.mu.Lock()
			s.messages = append(s.messages, current)
			s.mu.Unlock()
			fmt.Fprintf(conn, "250 OK: queued as 12345\r\n")
		case strings.HasPrefix(cmd, "QUIT"):
			fmt.Fprintf(conn, "221 Bye\r\n")
			return
		default:
			fmt.Fprintf(conn, "250 OK\r\n")
		}
	}
}

func addressOf(arg string) string {
	arg = strings.TrimSpace(arg)
	if i := strings.IndexByte(arg, ' '); i >= 0 {
		arg = arg[:i]
	}
	return strings.Trim(arg, "<>")
}
