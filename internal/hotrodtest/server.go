// Package hotrodtest runs an in-process Hot Rod server for tests and demos.
//
// The server keeps entries in memory, one store per cache name, and answers
// every operation of the client with the status semantics of a real server:
// conditional writes report NOT_EXECUTED, missing keys KEY_DOES_NOT_EXIST, and
// unknown cache names a SERVER_ERROR naming the missing cache.
package hotrodtest

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pior/hotrod/protocol"
)

// DefaultCache is the name of the server default cache.
const DefaultCache = ""

// Server is an in-memory Hot Rod server listening on a loopback port.
type Server struct {
	listener net.Listener
	start    time.Time

	mu     sync.Mutex
	now    func() time.Time
	caches map[string]*store

	versions atomic.Uint64
	requests atomic.Uint64

	wg     sync.WaitGroup
	connMu sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

type entry struct {
	value    []byte
	version  uint64
	expires  time.Time
	maxIdle  time.Duration
	lastUsed time.Time
}

type store struct {
	entries map[string]*entry

	stores, retrievals, hits, misses, removeHits, removeMisses uint64
}

// Start listens on a loopback port and serves the default cache plus the
// named caches given.
func Start(caches ...string) (*Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		start:    time.Now(),
		now:      time.Now,
		caches:   map[string]*store{DefaultCache: newStore()},
		conns:    make(map[net.Conn]struct{}),
	}
	for _, name := range caches {
		s.caches[name] = newStore()
	}

	s.wg.Add(1)
	go s.acceptLoop()

	return s, nil
}

// NewServer starts a server and closes it when the test ends.
func NewServer(t testing.TB, caches ...string) *Server {
	t.Helper()

	s, err := Start(caches...)
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func newStore() *store {
	return &store{entries: make(map[string]*entry)}
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// SetNow replaces the clock used for expiration.
func (s *Server) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Requests returns the number of requests served.
func (s *Server) Requests() uint64 {
	return s.requests.Load()
}

// Len returns the number of live entries in a cache.
func (s *Server) Len(cache string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.caches[cache]
	if !ok {
		return 0
	}
	now := s.now()
	n := 0
	for _, e := range st.entries {
		if e.live(now) {
			n++
		}
	}
	return n
}

// Close stops the listener, closes open connections and waits for their
// handlers to return.
func (s *Server) Close() error {
	err := s.listener.Close()

	s.connMu.Lock()
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.connMu.Lock()
		if s.closed {
			s.connMu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() {
				s.connMu.Lock()
				delete(s.conns, c)
				s.connMu.Unlock()
				c.Close()
			}()

			s.serve(c)
		}(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	r := bufio.NewReader(conn)

	for {
		req, err := protocol.ReadRequest(r)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				// The rest of the stream cannot be parsed: answer and hang up.
				_ = protocol.WriteErrorResponse(conn, 0, statusForDecodeError(decodeErr), decodeErr.Error())
			}
			return
		}
		s.requests.Add(1)

		if err := s.handle(conn, req); err != nil {
			return
		}
	}
}

func statusForDecodeError(err *protocol.DecodeError) protocol.Status {
	if errors.Is(err, protocol.ErrUnknownOpcode) {
		return protocol.StatusUnknownCommand
	}
	return protocol.StatusParseError
}

func (s *Server) handle(conn net.Conn, req *protocol.Request) error {
	s.mu.Lock()
	st, ok := s.caches[req.CacheName]
	if !ok {
		s.mu.Unlock()
		msg := fmt.Sprintf("org.infinispan.manager.CacheNotFoundException: Cache with name '%s' not found amongst the configured caches", req.CacheName)
		return protocol.WriteErrorResponse(conn, byte(req.MessageID), protocol.StatusServerError, msg)
	}

	resp := &protocol.Response{
		Header: protocol.ResponseHeader{
			MessageID: byte(req.MessageID),
			Opcode:    req.Opcode.Response(),
			Status:    protocol.StatusSuccess,
		},
	}
	s.apply(st, req, resp)
	s.mu.Unlock()

	return protocol.WriteResponse(conn, resp, req.WantsPrevious())
}

// apply runs req against st and fills resp. Must be called with s.mu held.
func (s *Server) apply(st *store, req *protocol.Request, resp *protocol.Response) {
	now := s.now()
	key := string(req.Key)

	current := st.entries[key]
	if current != nil && !current.live(now) {
		delete(st.entries, key)
		current = nil
	}

	status := protocol.StatusSuccess
	setPrevious := func() {
		if current != nil {
			resp.Previous = current.value
		}
	}

	switch req.Opcode {
	case protocol.OpcodePut:
		setPrevious()
		st.put(key, s.newEntry(req, now))

	case protocol.OpcodeGet, protocol.OpcodeGetWithVersion:
		st.retrievals++
		if current == nil {
			st.misses++
			status = protocol.StatusKeyDoesNotExist
			break
		}
		st.hits++
		current.lastUsed = now
		resp.Value = current.value
		resp.Version = current.version

	case protocol.OpcodePutIfAbsent:
		if current != nil {
			status = protocol.StatusNotExecuted
			setPrevious()
			break
		}
		st.put(key, s.newEntry(req, now))

	case protocol.OpcodeReplace:
		if current == nil {
			status = protocol.StatusNotExecuted
			break
		}
		setPrevious()
		st.put(key, s.newEntry(req, now))

	case protocol.OpcodeReplaceIfVersion:
		switch {
		case current == nil:
			status = protocol.StatusKeyDoesNotExist
		case current.version != req.Version:
			status = protocol.StatusNotExecuted
			setPrevious()
		default:
			setPrevious()
			st.put(key, s.newEntry(req, now))
		}

	case protocol.OpcodeRemove:
		if current == nil {
			st.removeMisses++
			status = protocol.StatusKeyDoesNotExist
			break
		}
		st.removeHits++
		setPrevious()
		delete(st.entries, key)

	case protocol.OpcodeRemoveIfVersion:
		switch {
		case current == nil:
			st.removeMisses++
			status = protocol.StatusKeyDoesNotExist
		case current.version != req.Version:
			status = protocol.StatusNotExecuted
			setPrevious()
		default:
			st.removeHits++
			setPrevious()
			delete(st.entries, key)
		}

	case protocol.OpcodeContainsKey:
		if current == nil {
			status = protocol.StatusKeyDoesNotExist
		}

	case protocol.OpcodeClear:
		st.entries = make(map[string]*entry)

	case protocol.OpcodeStats:
		resp.Stats = s.stats(st, now)

	case protocol.OpcodePing:

	case protocol.OpcodeBulkGet:
		resp.Entries = make(map[string][]byte)
		for k, e := range st.entries {
			if req.Count > 0 && uint64(len(resp.Entries)) >= req.Count {
				break
			}
			if e.live(now) {
				resp.Entries[k] = e.value
			}
		}
	}

	resp.Header.Status = status
}

func (s *Server) newEntry(req *protocol.Request, now time.Time) *entry {
	e := &entry{
		value:    req.Value,
		version:  s.versions.Add(1),
		maxIdle:  time.Duration(req.MaxIdle) * time.Second,
		lastUsed: now,
	}
	if req.Lifespan > 0 {
		e.expires = now.Add(time.Duration(req.Lifespan) * time.Second)
	}
	return e
}

func (st *store) put(key string, e *entry) {
	st.stores++
	st.entries[key] = e
}

func (e *entry) live(now time.Time) bool {
	if !e.expires.IsZero() && !now.Before(e.expires) {
		return false
	}
	if e.maxIdle > 0 && now.Sub(e.lastUsed) >= e.maxIdle {
		return false
	}
	return true
}

func (s *Server) stats(st *store, now time.Time) map[string]string {
	live := 0
	for _, e := range st.entries {
		if e.live(now) {
			live++
		}
	}

	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return map[string]string{
		"timeSinceStart":         strconv.FormatInt(int64(now.Sub(s.start)/time.Second), 10),
		"currentNumberOfEntries": strconv.Itoa(live),
		"totalNumberOfEntries":   u(st.stores),
		"stores":                 u(st.stores),
		"retrievals":             u(st.retrievals),
		"hits":                   u(st.hits),
		"misses":                 u(st.misses),
		"removeHits":             u(st.removeHits),
		"removeMisses":           u(st.removeMisses),
	}
}
