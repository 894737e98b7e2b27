package hotrod

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pior/hotrod/protocol"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// RemoteCache is a Hot Rod client bound to one server connection and one
// cache.
//
// Every operation is a single round trip: one request written, one response
// read. Nothing is retried. Calls from several goroutines are serialized on
// the connection; use several RemoteCache values for parallelism.
type RemoteCache struct {
	conn      *Connection
	cacheName string

	logger         *zap.Logger
	circuitBreaker *gobreaker.CircuitBreaker[*protocol.Response] // nil if not configured
	telem          clientTelem
	stats          *clientStatsCollector
}

// Dial connects to a Hot Rod server at addr.
// The cache name is validated before any connection is made.
func Dial(ctx context.Context, addr string, config Config) (*RemoteCache, error) {
	if err := protocol.ValidateCacheName(config.CacheName); err != nil {
		return nil, err
	}

	dialer := config.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &protocol.ConnectionError{Op: "dial", Err: err}
	}

	return NewRemoteCache(netConn, config)
}

// NewRemoteCache creates a client over an established connection.
// The client owns conn and closes it on Close.
func NewRemoteCache(conn net.Conn, config Config) (*RemoteCache, error) {
	if err := protocol.ValidateCacheName(config.CacheName); err != nil {
		return nil, err
	}

	logger := loggerOrNop(config.Logger).With(
		zap.String("clientId", uuid.NewString()[:8]),
		zap.String("cacheName", config.CacheName),
	)

	var telem clientTelem = noopClientTelem{}
	if !config.DisableTelemetry {
		telem = newOtelClientTelem(conn.RemoteAddr(), config.CacheName)
	}

	logger.Debug("client created", zap.Stringer("remoteAddr", conn.RemoteAddr()))

	return &RemoteCache{
		conn:           NewConnection(conn),
		cacheName:      config.CacheName,
		logger:         logger,
		circuitBreaker: newCircuitBreaker(config.CircuitBreakerSettings),
		telem:          telem,
		stats:          newClientStatsCollector(),
	}, nil
}

// Close closes the connection. It is safe to call more than once; every
// operation after Close returns ErrClientClosed.
func (c *RemoteCache) Close() error {
	return c.conn.Close()
}

// CacheName returns the cache this client addresses, empty for the default.
func (c *RemoteCache) CacheName() string {
	return c.cacheName
}

// ClientStats returns a snapshot of the client operation counters.
func (c *RemoteCache) ClientStats() ClientStats {
	return c.stats.snapshot()
}

// CircuitBreakerState returns the circuit breaker state, closed when no
// circuit breaker is configured.
func (c *RemoteCache) CircuitBreakerState() gobreaker.State {
	if c.circuitBreaker == nil {
		return gobreaker.StateClosed
	}
	return c.circuitBreaker.State()
}

// Put stores item. The previous value is returned when ReturnPrevious is
// given and the key held one.
func (c *RemoteCache) Put(ctx context.Context, item Item, opts ...OpOption) ([]byte, error) {
	req := applyOptions(writeRequest(protocol.OpcodePut, item), opts)

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Previous, nil
}

// Get retrieves a single item. Item.Found is false when the key is absent;
// a stored empty value is found with an empty, non-nil Value.
func (c *RemoteCache) Get(ctx context.Context, key string) (Item, error) {
	resp, err := c.do(ctx, protocol.NewRequest(protocol.OpcodeGet, []byte(key)))
	if err != nil {
		return Item{}, err
	}

	if resp.IsKeyAbsent() {
		return Item{Key: key, Found: false}, nil
	}
	return Item{Key: key, Value: resp.Value, Found: true}, nil
}

// PutIfAbsent stores item only if the key is not present.
func (c *RemoteCache) PutIfAbsent(ctx context.Context, item Item, opts ...OpOption) (TwoWayResult, error) {
	return c.twoWay(ctx, applyOptions(writeRequest(protocol.OpcodePutIfAbsent, item), opts))
}

// Replace stores item only if the key is present.
func (c *RemoteCache) Replace(ctx context.Context, item Item, opts ...OpOption) (TwoWayResult, error) {
	return c.twoWay(ctx, applyOptions(writeRequest(protocol.OpcodeReplace, item), opts))
}

// GetVersioned retrieves a value with its version, for use with
// ReplaceWithVersion and RemoveWithVersion.
func (c *RemoteCache) GetVersioned(ctx context.Context, key string) (VersionedValue, error) {
	resp, err := c.do(ctx, protocol.NewRequest(protocol.OpcodeGetWithVersion, []byte(key)))
	if err != nil {
		return VersionedValue{}, err
	}

	if resp.IsKeyAbsent() {
		return VersionedValue{}, nil
	}
	return VersionedValue{Version: resp.Version, Value: resp.Value, Found: true}, nil
}

// ReplaceWithVersion stores item only if the entry is still at version.
func (c *RemoteCache) ReplaceWithVersion(ctx context.Context, item Item, version uint64, opts ...OpOption) (ThreeWayResult, error) {
	req := writeRequest(protocol.OpcodeReplaceIfVersion, item).AddVersion(version)
	return c.threeWay(ctx, applyOptions(req, opts))
}

// Remove deletes key.
func (c *RemoteCache) Remove(ctx context.Context, key string, opts ...OpOption) (ThreeWayResult, error) {
	req := protocol.NewRequest(protocol.OpcodeRemove, []byte(key))
	return c.threeWay(ctx, applyOptions(req, opts))
}

// RemoveWithVersion deletes key only if the entry is still at version.
func (c *RemoteCache) RemoveWithVersion(ctx context.Context, key string, version uint64, opts ...OpOption) (ThreeWayResult, error) {
	req := protocol.NewRequest(protocol.OpcodeRemoveIfVersion, []byte(key)).AddVersion(version)
	return c.threeWay(ctx, applyOptions(req, opts))
}

// ContainsKey reports whether key is present.
func (c *RemoteCache) ContainsKey(ctx context.Context, key string) (bool, error) {
	return c.keyLess(ctx, protocol.NewRequest(protocol.OpcodeContainsKey, []byte(key)))
}

// Clear removes every entry of the cache.
func (c *RemoteCache) Clear(ctx context.Context) (bool, error) {
	return c.keyLess(ctx, protocol.NewRequest(protocol.OpcodeClear, nil))
}

// Ping checks that the server answers.
func (c *RemoteCache) Ping(ctx context.Context) (bool, error) {
	return c.keyLess(ctx, protocol.NewRequest(protocol.OpcodePing, nil))
}

// Stats returns the server statistics of the cache.
func (c *RemoteCache) Stats(ctx context.Context) (map[string]string, error) {
	resp, err := c.do(ctx, protocol.NewRequest(protocol.OpcodeStats, nil))
	if err != nil {
		return nil, err
	}
	return resp.Stats, nil
}

// BulkGet returns up to count entries of the cache; 0 returns all of them.
func (c *RemoteCache) BulkGet(ctx context.Context, count int) (map[string][]byte, error) {
	req := protocol.NewRequest(protocol.OpcodeBulkGet, nil).AddCount(uint64(int64(count)))

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func writeRequest(op protocol.Opcode, item Item) *protocol.Request {
	return protocol.NewRequest(op, []byte(item.Key)).
		AddValue(item.Value).
		AddLifespan(item.Lifespan).
		AddMaxIdle(item.MaxIdle)
}

func (c *RemoteCache) keyLess(ctx context.Context, req *protocol.Request) (bool, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return false, err
	}
	return resp.IsSuccess(), nil
}

func (c *RemoteCache) twoWay(ctx context.Context, req *protocol.Request) (TwoWayResult, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return TwoWayResult{}, err
	}
	return TwoWayResult{Outcome: resp.Outcome, Previous: resp.Previous}, nil
}

func (c *RemoteCache) threeWay(ctx context.Context, req *protocol.Request) (ThreeWayResult, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return ThreeWayResult{}, err
	}
	return ThreeWayResult{Outcome: resp.Outcome, Previous: resp.Previous}, nil
}

// do runs one round trip with telemetry, stats and logging.
func (c *RemoteCache) do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	req.CacheName = c.cacheName
	opName := req.Opcode.Name()

	start := time.Now()
	ctx, op := c.telem.BeginOp(ctx, opName)

	resp, err := c.execRequest(ctx, req)

	op.End(ctx, err)
	c.stats.record(req.Opcode, resp, err)

	if err != nil {
		if broken := c.conn.Broken(); broken != nil && errors.Is(err, broken) && !errors.Is(err, ErrConnectionBroken) {
			c.logger.Warn("connection broken",
				zap.String("op", opName),
				keyField(req.Key),
				zap.Error(err))
		} else {
			c.logger.Debug("operation failed",
				zap.String("op", opName),
				keyField(req.Key),
				zap.Duration("took", time.Since(start)),
				zap.Error(err))
		}
		return nil, err
	}

	c.logger.Debug("operation",
		zap.String("op", opName),
		keyField(req.Key),
		zap.Stringer("status", resp.Status()),
		zap.Stringer("outcome", resp.Outcome),
		zap.Duration("took", time.Since(start)))

	return resp, nil
}

// execRequest sends req, through the circuit breaker when one is configured.
func (c *RemoteCache) execRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if c.circuitBreaker != nil {
		return c.circuitBreaker.Execute(func() (*protocol.Response, error) {
			return c.conn.Send(ctx, req)
		})
	}

	return c.conn.Send(ctx, req)
}
