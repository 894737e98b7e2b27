package promexporter

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pior/hotrod"
	"github.com/pior/hotrod/internal/hotrodtest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	cache string
	stats hotrod.ClientStats
	state gobreaker.State
}

func (f fakeSource) CacheName() string                    { return f.cache }
func (f fakeSource) ClientStats() hotrod.ClientStats      { return f.stats }
func (f fakeSource) CircuitBreakerState() gobreaker.State { return f.state }

func TestClientCollector(t *testing.T) {
	src := fakeSource{
		cache: "sessions",
		stats: hotrod.ClientStats{
			Gets:         10,
			GetHits:      7,
			Writes:       4,
			Removes:      1,
			NotApplied:   2,
			Others:       3,
			ServerErrors: 1,
			Errors:       3,
		},
		state: gobreaker.StateOpen,
	}

	expected := `
# HELP hotrod_client_operations_total Total number of successful round trips by kind
# TYPE hotrod_client_operations_total counter
hotrod_client_operations_total{cache="sessions",kind="get"} 10
hotrod_client_operations_total{cache="sessions",kind="other"} 3
hotrod_client_operations_total{cache="sessions",kind="remove"} 1
hotrod_client_operations_total{cache="sessions",kind="write"} 4
# HELP hotrod_client_errors_total Total number of failed operations by type
# TYPE hotrod_client_errors_total counter
hotrod_client_errors_total{cache="sessions",type="other"} 2
hotrod_client_errors_total{cache="sessions",type="server"} 1
# HELP hotrod_circuit_breaker_state Circuit breaker state (0=closed, 1=half-open, 2=open)
# TYPE hotrod_circuit_breaker_state gauge
hotrod_circuit_breaker_state{cache="sessions"} 2
`
	err := testutil.CollectAndCompare(NewClientCollector(src), strings.NewReader(expected),
		"hotrod_client_operations_total",
		"hotrod_client_errors_total",
		"hotrod_circuit_breaker_state",
	)
	require.NoError(t, err)
}

func TestClientCollector_MultipleClients(t *testing.T) {
	collector := NewClientCollector(
		fakeSource{cache: "a"},
		fakeSource{cache: "b"},
	)
	require.Equal(t, 2*8+2, testutil.CollectAndCount(collector))
}

func TestExporter_Handler(t *testing.T) {
	server := hotrodtest.NewServer(t)
	ctx := context.Background()

	client, err := hotrod.Dial(ctx, server.Addr(), hotrod.Config{})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Put(ctx, hotrod.Item{Key: "k", Value: []byte("v")})
	require.NoError(t, err)
	_, err = client.Get(ctx, "k")
	require.NoError(t, err)

	exporter := NewExporter(client)
	rec := httptest.NewRecorder()
	exporter.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `hotrod_client_operations_total{cache="",kind="get"} 1`)
	require.Contains(t, string(body), `hotrod_client_get_hits_total{cache=""} 1`)
	require.Contains(t, string(body), `hotrod_client_operations_total{cache="",kind="write"} 1`)
}
