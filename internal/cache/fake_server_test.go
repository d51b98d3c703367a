package cache

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeServer speaks enough RESP2 for the hash commands the cache issues.
type fakeServer struct {
	addr string

	mu       sync.Mutex
	hashes   map[string]map[string]string
	ttls     map[string]time.Duration
	commands []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{
		addr:   lis.Addr().String(),
		hashes: map[string]map[string]string{},
		ttls:   map[string]time.Duration{},
	}
	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go s.serve(conn)
		}
	}()
	t.Cleanup(func() { lis.Close() })
	return s
}

func (s *fakeServer) client(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{
		Addr:            s.addr,
		Protocol:        2,
		DisableIdentity: true,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func (s *fakeServer) put(key string, fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[key] = fields
}

func (s *fakeServer) seen(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commands {
		if c == name {
			return true
		}
	}
	return false
}

func (s *fakeServer) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	var queued [][]string
	inMulti := false
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		name := strings.ToUpper(args[0])
		switch {
		case name == "MULTI":
			inMulti = true
			queued = nil
			w.WriteString("+OK\r\n")
		case name == "EXEC":
			fmt.Fprintf(w, "*%d\r\n", len(queued))
			for _, q := range queued {
				w.WriteString(s.exec(q))
			}
			inMulti = false
			queued = nil
		case inMulti:
			queued = append(queued, args)
			w.WriteString("+QUEUED\r\n")
		default:
			w.WriteString(s.exec(args))
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *fakeServer) exec(args []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := strings.ToUpper(args[0])
	s.commands = append(s.commands, name)
	switch name {
	case "PING":
		return "+PONG\r\n"
	case "HGETALL":
		h := s.hashes[args[1]]
		var b strings.Builder
		fmt.Fprintf(&b, "*%d\r\n", 2*len(h))
		for k, v := range h {
			fmt.Fprintf(&b, "$%d\r\n%s\r\n$%d\r\n%s\r\n", len(k), k, len(v), v)
		}
		return b.String()
	case "HSET":
		h := s.hashes[args[1]]
		if h == nil {
			h = map[string]string{}
			s.hashes[args[1]] = h
		}
		added := 0
		for i := 2; i+1 < len(args); i += 2 {
			if _, ok := h[args[i]]; !ok {
				added++
			}
			h[args[i]] = args[i+1]
		}
		return fmt.Sprintf(":%d\r\n", added)
	case "EXPIRE":
		if _, ok := s.hashes[args[1]]; !ok {
			return ":0\r\n"
		}
		secs, _ := strconv.Atoi(args[2])
		s.ttls[args[1]] = time.Duration(secs) * time.Second
		return ":1\r\n"
	case "TTL":
		if _, ok := s.hashes[args[1]]; !ok {
			return ":-2\r\n"
		}
		ttl, ok := s.ttls[args[1]]
		if !ok {
			return ":-1\r\n"
		}
		return fmt.Sprintf(":%d\r\n", int(ttl/time.Second))
	default:
		return fmt.Sprintf("-ERR unknown command '%s'\r\n", args[0])
	}
}

// readCommand reads one RESP array of bulk strings.
func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[0] != '*' {
		return nil, fmt.Errorf("unexpected request %q", line)
	}
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < 1 {
		return nil, fmt.Errorf("bad array length %q", line)
	}
	args := make([]string, n)
	for i := range args {
		hdr, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if len(hdr) < 2 || hdr[0] != '$' {
			return nil, fmt.Errorf("unexpected bulk header %q", hdr)
		}
		size, err := strconv.Atoi(hdr[1:])
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args[i] = string(buf[:size])
	}
	return args, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
