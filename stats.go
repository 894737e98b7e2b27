package hotrod

import (
	"errors"
	"sync/atomic"

	"github.com/pior/hotrod/protocol"
)

// ClientStats contains statistics about client operations.
// All fields are safe for concurrent access.
//
// Struct is sized to a single cache line (64 bytes).
//
// For Prometheus integration, expose these as counters (see promexporter):
//   - Gets, GetHits: derive hit rate as GetHits/Gets
//   - Writes, NotApplied: conditional write rejection rate
//   - ServerErrors, Errors: error rates by kind
type ClientStats struct {
	Gets         uint64 // get and getWithVersion
	GetHits      uint64 // gets that found the key
	Writes       uint64 // put, putIfAbsent, replace, replaceIfVersion
	Removes      uint64 // remove and removeIfVersion
	NotApplied   uint64 // conditional operations whose precondition failed
	Others       uint64 // containsKey, clear, stats, ping, bulkGet
	ServerErrors uint64 // error responses sent by the server
	Errors       uint64 // all failed operations, server errors included
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	stats *ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{
		stats: &ClientStats{},
	}
}

func (c *clientStatsCollector) recordGet(found bool) {
	atomic.AddUint64(&c.stats.Gets, 1)
	if found {
		atomic.AddUint64(&c.stats.GetHits, 1)
	}
}

func (c *clientStatsCollector) recordWrite() {
	atomic.AddUint64(&c.stats.Writes, 1)
}

func (c *clientStatsCollector) recordRemove() {
	atomic.AddUint64(&c.stats.Removes, 1)
}

func (c *clientStatsCollector) recordNotApplied() {
	atomic.AddUint64(&c.stats.NotApplied, 1)
}

func (c *clientStatsCollector) recordOther() {
	atomic.AddUint64(&c.stats.Others, 1)
}

func (c *clientStatsCollector) recordError(err error) {
	atomic.AddUint64(&c.stats.Errors, 1)

	var protoErr *protocol.ProtocolError
	if errors.As(err, &protoErr) {
		atomic.AddUint64(&c.stats.ServerErrors, 1)
	}
}

// record updates the counters for one finished operation.
func (c *clientStatsCollector) record(op protocol.Opcode, resp *protocol.Response, err error) {
	if err != nil {
		c.recordError(err)
		return
	}

	switch op {
	case protocol.OpcodeGet, protocol.OpcodeGetWithVersion:
		c.recordGet(resp.IsSuccess())
	case protocol.OpcodePut, protocol.OpcodePutIfAbsent, protocol.OpcodeReplace, protocol.OpcodeReplaceIfVersion:
		c.recordWrite()
	case protocol.OpcodeRemove, protocol.OpcodeRemoveIfVersion:
		c.recordRemove()
	default:
		c.recordOther()
	}

	switch resp.Outcome {
	case protocol.OutcomeNotApplied, protocol.OutcomeVersionMismatch:
		if op != protocol.OpcodeClear && op != protocol.OpcodePing {
			c.recordNotApplied()
		}
	}
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:         atomic.LoadUint64(&c.stats.Gets),
		GetHits:      atomic.LoadUint64(&c.stats.GetHits),
		Writes:       atomic.LoadUint64(&c.stats.Writes),
		Removes:      atomic.LoadUint64(&c.stats.Removes),
		NotApplied:   atomic.LoadUint64(&c.stats.NotApplied),
		Others:       atomic.LoadUint64(&c.stats.Others),
		ServerErrors: atomic.LoadUint64(&c.stats.ServerErrors),
		Errors:       atomic.LoadUint64(&c.stats.Errors),
	}
}
