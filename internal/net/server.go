package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	. "gbce/internal/common"
	"gbce/internal/instrument"
	"gbce/internal/metrics"
	"gbce/internal/registry"
	"gbce/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
)

var ErrImproperConversion = errors.New("improper type conversion")

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// clientRequest links a message to the connection waiting for its reply.
type clientRequest struct {
	clientAddress string
	message       Message
	reply         chan Report
}

// Server accepts trades and metric queries over TCP.
//
// Each connection is owned by one pool worker, which only decodes
// requests and encodes replies. Every request is applied by the single
// session handler goroutine, so instruments only ever see one writer.
type Server struct {
	address            string
	port               int
	timeout            time.Duration
	pool               *utils.WorkerPool
	registry           *registry.Registry
	clientSessions     map[string]ClientSession
	clientSessionsLock sync.Mutex
	clientRequests     chan clientRequest
}

type Option func(*Server)

// WithWorkers bounds the number of connections served at once.
func WithWorkers(n int) Option {
	return func(s *Server) { s.pool = utils.NewWorkerPool(n) }
}

// WithConnTimeout sets how long a connection may stay idle.
func WithConnTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(address string, port int, reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		address:        address,
		port:           port,
		timeout:        defaultConnTimeout,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		registry:       reg,
		clientSessions: make(map[string]ClientSession),
		clientRequests: make(chan clientRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done. The listener
// and all client connections are closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	t, _ := tomb.WithContext(ctx)

	// Start the worker pool.
	s.pool.Start(t, s.handleConnection)

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	// Tear down the listener and open sessions once dying.
	t.Go(func() error {
		<-t.Dying()
		log.Info().Msg("server shutting down")
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error().Err(err).Msg("unable to close listener")
		}
		s.closeClientSessions()
		return nil
	})

	// Start accepting connections.
	t.Go(func() error {
		return s.acceptLoop(t, listener)
	})

	log.Info().Str("address", listener.Addr().String()).Msg("server running")

	err := t.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(t *tomb.Tomb, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !t.Alive() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error().Err(err).Msg("error accepting client")
			continue
		}

		log.Info().
			Str("address", conn.RemoteAddr().String()).
			Msg("new client added")
		// Add the client to client sessions we are tracking.
		// We expect to potentially maintain a long TCP session.
		s.addClientSession(conn)

		// Pass over the connection to be served.
		if err := s.pool.AddTask(t, conn); err != nil {
			s.deleteClientSession(conn)
			conn.Close()
			return nil
		}
	}
}

// sessionHandler applies client requests one at a time.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case request := <-s.clientRequests:
			request.reply <- s.apply(request.clientAddress, request.message)
		}
	}
}

func (s *Server) apply(client string, message Message) Report {
	switch m := message.(type) {
	case DefineInstrumentMessage:
		if _, err := s.registry.GetOrCreate(m.Ticker, m.Terms()); err != nil {
			return errorReport(m.Ticker, err)
		}
		return Report{MessageType: Ack, Ticker: m.Ticker}

	case RecordTradeMessage:
		inst, err := s.instrumentForTrade(m.Ticker)
		if err != nil {
			return errorReport(m.Ticker, err)
		}
		order, err := inst.RecordTrade(m.Quantity, m.Side, m.Price, m.Time())
		if err != nil {
			log.Warn().Err(err).Str("client", client).Msg("trade rejected")
			return errorReport(m.Ticker, err)
		}
		log.Debug().
			Str("ticker", inst.Code()).
			Str("side", order.Side.String()).
			Uint64("quantity", order.Quantity).
			Float64("price", order.Price).
			Uint64("seq", order.Seq).
			Msg("trade recorded")
		return Report{MessageType: Ack, Ticker: inst.Code(), Seq: order.Seq}

	case QueryMetricsMessage:
		inst, err := s.registry.Lookup(m.Ticker)
		if err != nil {
			return errorReport(m.Ticker, err)
		}
		return metricsReport(metrics.Compute(inst, m.DividendOrNil()))

	case BaseMessage:
		switch m.TypeOf {
		case Heartbeat:
			return Report{MessageType: Ack}
		case QueryIndex:
			index, err := metrics.CompositeIndex(s.registry.Instruments())
			if err != nil {
				return Report{MessageType: ErrorReport, Unavailable: IndexUnavailable, Err: err.Error()}
			}
			return Report{MessageType: IndexReport, Index: index}
		}
	}
	return errorReport("", fmt.Errorf("%w: %T", ErrInvalidMessageType, message))
}

// instrumentForTrade returns the instrument a trade is recorded on. The
// first trade on an undefined ticker defines it as a common share.
func (s *Server) instrumentForTrade(ticker string) (*instrument.Instrument, error) {
	inst, err := s.registry.Lookup(ticker)
	if errors.Is(err, ErrUnknownInstrument) {
		return s.registry.Common(ticker)
	}
	return inst, err
}

func metricsReport(row metrics.Row) Report {
	r := Report{
		MessageType:         MetricsReport,
		Ticker:              row.Code,
		DividendYield:       row.DividendYield.Value,
		PERatio:             row.PERatio.Value,
		GeometricMean:       row.GeometricMean.Value,
		VolumeWeightedPrice: row.VolumeWeightedPrice.Value,
	}
	for bit, m := range map[uint8]metrics.Metric{
		DividendYieldUnavailable:       row.DividendYield,
		PERatioUnavailable:             row.PERatio,
		GeometricMeanUnavailable:       row.GeometricMean,
		VolumeWeightedPriceUnavailable: row.VolumeWeightedPrice,
	} {
		if m.Err != nil {
			r.Unavailable |= bit
		}
	}
	if err := errors.Join(row.Errors()...); err != nil {
		r.Err = err.Error()
	}
	return r
}

// handleConnection serves a connection for as long as the client keeps
// it open and sends a request before the idle timeout. Requests are
// forwarded to sessionHandler and answered in order.
// Note, any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}
	address := conn.RemoteAddr().String()

	defer func() {
		s.deleteClientSession(conn)
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error().Str("address", address).Err(err).Msg("unable to close connection")
		}
	}()

	reader := bufio.NewReader(conn)
	for t.Alive() {
		if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
			log.Error().
				Str("address", address).
				Err(err).
				Msg("failed setting deadline for connection")
			return nil
		}

		frame, err := ReadFrame(reader)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				log.Info().Str("address", address).Msg("client disconnected")
			case errors.Is(err, os.ErrDeadlineExceeded):
				log.Info().Str("address", address).Msg("client idle, closing connection")
			default:
				log.Error().Err(err).Str("address", address).Msg("error reading from connection")
			}
			return nil
		}

		var reply Report
		message, err := ParseMessage(frame)
		if err != nil {
			log.Error().Err(err).Str("address", address).Msg("error parsing message")
			reply = errorReport("", err)
		} else {
			request := clientRequest{
				clientAddress: address,
				message:       message,
				reply:         make(chan Report, 1),
			}
			select {
			case <-t.Dying():
				return nil
			case s.clientRequests <- request:
			}
			reply = <-request.reply
		}

		if err := s.send(conn, reply); err != nil {
			log.Error().Err(err).Str("address", address).Msg("unable to send report")
			return nil
		}
	}
	return nil
}

func (s *Server) send(conn net.Conn, report Report) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return WriteFrame(conn, report.Serialize())
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{
		conn: conn,
	}
}

// deleteClientSession is an atomic map remove
func (s *Server) deleteClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	delete(s.clientSessions, conn.RemoteAddr().String())
}

// closeClientSessions unblocks every worker still reading from a client.
func (s *Server) closeClientSessions() {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	for address, session := range s.clientSessions {
		if err := session.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error().Err(err).Str("address", address).Msg("unable to close client session")
		}
	}
}
