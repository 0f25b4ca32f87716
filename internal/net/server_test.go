package net

import (
	"context"
	"net"
	"testing"
	"time"

	. "gbce/internal/common"
	"gbce/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Setup & Helpers --------------------------------------------------------

func startServer(t *testing.T) (*registry.Registry, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	reg := registry.New()
	srv := New("127.0.0.1", 0, reg, WithWorkers(4), WithConnTimeout(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return reg, listener.Addr().String()
}

func dial(t *testing.T, address string) *Client {
	t.Helper()
	client, err := Dial(context.Background(), address, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func at(t *testing.T, raw string) int64 {
	t.Helper()
	ts, err := ParseTimestamp(raw)
	require.NoError(t, err)
	return ts.UnixNano()
}

// --- Tests ------------------------------------------------------------------

func TestServer_Heartbeat(t *testing.T) {
	_, address := startServer(t)
	report, err := dial(t, address).Do(BaseMessage{TypeOf: Heartbeat})
	require.NoError(t, err)
	assert.Equal(t, Ack, report.MessageType)
}

func TestServer_TradesAndMetrics(t *testing.T) {
	reg, address := startServer(t)
	client := dial(t, address)

	fixtures := []struct {
		price float64
		at    string
	}{
		{10, "2016-2-3 10:11:12"},
		{12, "2016-2-3 15:00:12"},
		{11, "2016-2-3 15:04:12"},
		{15, "2016-2-3 15:08:12"},
		{14, "2016-2-3 15:10:12"},
		{9, "2016-2-3 15:11:12"},
	}
	for i, f := range fixtures {
		report, err := client.Do(RecordTradeMessage{
			Side: Buy, Quantity: 100, Price: f.price, Timestamp: at(t, f.at), Ticker: "aapl",
		})
		require.NoError(t, err)
		assert.Equal(t, Ack, report.MessageType)
		assert.Equal(t, uint64(i+1), report.Seq)
		assert.Equal(t, "AAPL", report.Ticker)
	}

	inst, err := reg.Lookup("AAPL")
	require.NoError(t, err)
	assert.Equal(t, Common, inst.Kind())
	assert.Equal(t, len(fixtures), inst.Ledger().Len())

	report, err := client.Do(QueryMetricsMessage{HasDividend: true, Dividend: 9, Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, MetricsReport, report.MessageType)
	assert.Equal(t, 1.0, report.DividendYield)
	assert.Equal(t, 1.0, report.PERatio)
	assert.Equal(t, 11.6459, report.GeometricMean)
	assert.Equal(t, 12.2, report.VolumeWeightedPrice)
	assert.Zero(t, report.Unavailable)
	assert.Empty(t, report.Err)

	// Without a dividend the common share cannot quote a yield.
	report, err = client.Do(QueryMetricsMessage{Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, DividendYieldUnavailable|PERatioUnavailable, report.Unavailable)
	assert.Contains(t, report.Err, ErrDividendRequired.Error())
}

func TestServer_DefineInstrumentAndIndex(t *testing.T) {
	_, address := startServer(t)
	client := dial(t, address)

	_, err := client.Do(BaseMessage{TypeOf: QueryIndex})
	assert.ErrorIs(t, err, ErrServerError)

	report, err := client.Do(DefineInstrumentMessage{Kind: Preferred, ParValue: 100, DividendPercent: 10, Ticker: "GLD"})
	require.NoError(t, err)
	assert.Equal(t, Ack, report.MessageType)

	_, err = client.Do(RecordTradeMessage{Side: Buy, Quantity: 100, Price: 55, Ticker: "GLD"})
	require.NoError(t, err)
	_, err = client.Do(RecordTradeMessage{Side: Sell, Quantity: 100, Price: 4, Ticker: "TEA"})
	require.NoError(t, err)

	report, err = client.Do(QueryMetricsMessage{Ticker: "GLD"})
	require.NoError(t, err)
	assert.Equal(t, 0.1818, report.DividendYield)

	report, err = client.Do(BaseMessage{TypeOf: QueryIndex})
	require.NoError(t, err)
	assert.Equal(t, IndexReport, report.MessageType)
	assert.Equal(t, 29.5, report.Index)
}

func TestServer_Errors(t *testing.T) {
	reg, address := startServer(t)
	client := dial(t, address)

	_, err := client.Do(QueryMetricsMessage{Ticker: "NOPE"})
	assert.ErrorIs(t, err, ErrServerError)

	report, err := client.Do(RecordTradeMessage{Side: Side(9), Quantity: 1, Price: 1, Ticker: "GLD"})
	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, ErrorReport, report.MessageType)
	assert.Contains(t, report.Err, ErrInvalidSide.Error())

	_, err = client.Do(DefineInstrumentMessage{Kind: Kind(7), Ticker: "BAD"})
	assert.ErrorIs(t, err, ErrServerError)

	// The connection survives rejected requests.
	_, err = client.Do(BaseMessage{TypeOf: Heartbeat})
	require.NoError(t, err)

	inst, err := reg.Lookup("GLD")
	require.NoError(t, err)
	assert.Equal(t, 0, inst.Ledger().Len())
}

func TestServer_MalformedMessage(t *testing.T) {
	_, address := startServer(t)
	client := dial(t, address)

	_, err := client.Do(BaseMessage{TypeOf: MessageType(99)})
	assert.ErrorIs(t, err, ErrServerError)

	_, err = client.Do(BaseMessage{TypeOf: Heartbeat})
	assert.NoError(t, err)
}

func TestServer_ConcurrentClients(t *testing.T) {
	reg, address := startServer(t)

	clients := make([]*Client, 4)
	for i := range clients {
		clients[i] = dial(t, address)
	}

	done := make(chan struct{})
	for _, client := range clients {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 25; i++ {
				_, err := client.Do(RecordTradeMessage{Side: Buy, Quantity: 1, Price: 10, Ticker: "POP"})
				assert.NoError(t, err)
			}
		}()
	}
	for range clients {
		<-done
	}

	inst, err := reg.Lookup("POP")
	require.NoError(t, err)
	assert.Equal(t, 100, inst.Ledger().Len())
}
