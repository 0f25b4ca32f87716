package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
	"unicode/utf8"

	. "gbce/internal/common"
	"gbce/internal/instrument"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrFrameTooLarge      = errors.New("frame too large")
)

type MessageType uint16

const (
	Heartbeat MessageType = iota
	DefineInstrument
	RecordTrade
	QueryMetrics
	QueryIndex
)

type ReportMessageType uint8

const (
	Ack ReportMessageType = iota
	MetricsReport
	IndexReport
	ErrorReport
)

type Message interface {
	GetType() MessageType
	Serialize() []byte
}

// Message format constants
const (
	MAX_FRAME_SIZE = 4 * 1024
	FrameHeaderLen = 2

	BaseMessageHeaderLen             = 2
	DefineInstrumentMessageHeaderLen = 1 + 8 + 8 + 1
	RecordTradeMessageHeaderLen      = 1 + 8 + 8 + 8 + 1
	QueryMetricsMessageHeaderLen     = 1 + 8 + 1
)

// WriteFrame writes payload prefixed by its big-endian uint16 length.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MAX_FRAME_SIZE {
		return ErrFrameTooLarge
	}
	buf := make([]byte, FrameHeaderLen+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(payload)))
	copy(buf[FrameHeaderLen:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, FrameHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(header))
	if n > MAX_FRAME_SIZE {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Generic message type.
type BaseMessage struct {
	TypeOf MessageType // 2 bytes
}

func (m BaseMessage) GetType() MessageType {
	return m.TypeOf
}

func (m BaseMessage) Serialize() []byte {
	buf := make([]byte, BaseMessageHeaderLen)
	binary.BigEndian.PutUint16(buf, uint16(m.TypeOf))
	return buf
}

func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return BaseMessage{}, fmt.Errorf("%w: missing header", ErrMessageTooShort)
	}

	typeOf := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	msg = msg[2:]
	switch typeOf {
	case Heartbeat, QueryIndex:
		return BaseMessage{TypeOf: typeOf}, nil
	case DefineInstrument:
		return parseDefineInstrument(msg)
	case RecordTrade:
		return parseRecordTrade(msg)
	case QueryMetrics:
		return parseQueryMetrics(msg)
	default:
		return BaseMessage{}, fmt.Errorf("%w: %d", ErrInvalidMessageType, typeOf)
	}
}

// parseTicker reads the length-prefixed ticker that ends every message
// carrying one.
func parseTicker(msg []byte, tickerLen uint8) (string, error) {
	if len(msg) < int(tickerLen) {
		return "", fmt.Errorf("%w: ticker", ErrMessageTooShort)
	}
	return string(msg[:tickerLen]), nil
}

// clampTicker cuts a ticker to what its one-byte length field can hold.
func clampTicker(ticker string) string {
	return truncate(ticker, math.MaxUint8)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func header(typeOf MessageType, bodyLen int) []byte {
	buf := make([]byte, BaseMessageHeaderLen+bodyLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(typeOf))
	return buf
}

type DefineInstrumentMessage struct {
	BaseMessage
	Kind            Kind    // 1 byte
	ParValue        float64 // 8 bytes
	DividendPercent float64 // 8 bytes
	TickerLen       uint8   // 1 byte
	Ticker          string  // n bytes
}

func (m DefineInstrumentMessage) Terms() instrument.Terms {
	return instrument.Terms{Kind: m.Kind, ParValue: m.ParValue, DividendPercent: m.DividendPercent}
}

func (m DefineInstrumentMessage) Serialize() []byte {
	ticker := clampTicker(m.Ticker)
	buf := header(DefineInstrument, DefineInstrumentMessageHeaderLen+len(ticker))
	body := buf[BaseMessageHeaderLen:]
	body[0] = byte(m.Kind)
	binary.BigEndian.PutUint64(body[1:9], math.Float64bits(m.ParValue))
	binary.BigEndian.PutUint64(body[9:17], math.Float64bits(m.DividendPercent))
	body[17] = uint8(len(ticker))
	copy(body[18:], ticker)
	return buf
}

func parseDefineInstrument(msg []byte) (DefineInstrumentMessage, error) {
	m := DefineInstrumentMessage{BaseMessage: BaseMessage{TypeOf: DefineInstrument}}
	if len(msg) < DefineInstrumentMessageHeaderLen {
		return DefineInstrumentMessage{}, ErrMessageTooShort
	}

	m.Kind = Kind(msg[0])
	m.ParValue = math.Float64frombits(binary.BigEndian.Uint64(msg[1:9]))
	m.DividendPercent = math.Float64frombits(binary.BigEndian.Uint64(msg[9:17]))
	m.TickerLen = msg[17]

	ticker, err := parseTicker(msg[DefineInstrumentMessageHeaderLen:], m.TickerLen)
	if err != nil {
		return DefineInstrumentMessage{}, err
	}
	m.Ticker = ticker
	return m, nil
}

type RecordTradeMessage struct {
	BaseMessage
	Side      Side    // 1 byte
	Quantity  uint64  // 8 bytes
	Price     float64 // 8 bytes
	Timestamp int64   // 8 bytes, unix nanoseconds, 0 means now
	TickerLen uint8   // 1 byte
	Ticker    string  // n bytes
}

// Time converts the wire timestamp, mapping 0 to the zero time.
func (m RecordTradeMessage) Time() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(0, m.Timestamp).UTC()
}

func (m RecordTradeMessage) Serialize() []byte {
	ticker := clampTicker(m.Ticker)
	buf := header(RecordTrade, RecordTradeMessageHeaderLen+len(ticker))
	body := buf[BaseMessageHeaderLen:]
	body[0] = byte(m.Side)
	binary.BigEndian.PutUint64(body[1:9], m.Quantity)
	binary.BigEndian.PutUint64(body[9:17], math.Float64bits(m.Price))
	binary.BigEndian.PutUint64(body[17:25], uint64(m.Timestamp))
	body[25] = uint8(len(ticker))
	copy(body[26:], ticker)
	return buf
}

func parseRecordTrade(msg []byte) (RecordTradeMessage, error) {
	m := RecordTradeMessage{BaseMessage: BaseMessage{TypeOf: RecordTrade}}
	if len(msg) < RecordTradeMessageHeaderLen {
		return RecordTradeMessage{}, ErrMessageTooShort
	}

	m.Side = Side(msg[0])
	m.Quantity = binary.BigEndian.Uint64(msg[1:9])
	m.Price = math.Float64frombits(binary.BigEndian.Uint64(msg[9:17]))
	m.Timestamp = int64(binary.BigEndian.Uint64(msg[17:25]))
	m.TickerLen = msg[25]

	ticker, err := parseTicker(msg[RecordTradeMessageHeaderLen:], m.TickerLen)
	if err != nil {
		return RecordTradeMessage{}, err
	}
	m.Ticker = ticker
	return m, nil
}

type QueryMetricsMessage struct {
	BaseMessage
	HasDividend bool    // 1 byte
	Dividend    float64 // 8 bytes
	TickerLen   uint8   // 1 byte
	Ticker      string  // n bytes
}

// DividendOrNil returns the quoted dividend, or nil when none was sent.
func (m QueryMetricsMessage) DividendOrNil() *float64 {
	if !m.HasDividend {
		return nil
	}
	d := m.Dividend
	return &d
}

func (m QueryMetricsMessage) Serialize() []byte {
	ticker := clampTicker(m.Ticker)
	buf := header(QueryMetrics, QueryMetricsMessageHeaderLen+len(ticker))
	body := buf[BaseMessageHeaderLen:]
	if m.HasDividend {
		body[0] = 1
	}
	binary.BigEndian.PutUint64(body[1:9], math.Float64bits(m.Dividend))
	body[9] = uint8(len(ticker))
	copy(body[10:], ticker)
	return buf
}

func parseQueryMetrics(msg []byte) (QueryMetricsMessage, error) {
	m := QueryMetricsMessage{BaseMessage: BaseMessage{TypeOf: QueryMetrics}}
	if len(msg) < QueryMetricsMessageHeaderLen {
		return QueryMetricsMessage{}, ErrMessageTooShort
	}

	m.HasDividend = msg[0] != 0
	m.Dividend = math.Float64frombits(binary.BigEndian.Uint64(msg[1:9]))
	m.TickerLen = msg[9]

	ticker, err := parseTicker(msg[QueryMetricsMessageHeaderLen:], m.TickerLen)
	if err != nil {
		return QueryMetricsMessage{}, err
	}
	m.Ticker = ticker
	return m, nil
}

// Metric bits of Report.Unavailable.
const (
	DividendYieldUnavailable uint8 = 1 << iota
	PERatioUnavailable
	GeometricMeanUnavailable
	VolumeWeightedPriceUnavailable
	IndexUnavailable
)

type Report struct {
	MessageType         ReportMessageType // 1 byte
	Seq                 uint64            // 8 bytes, ledger sequence of an acknowledged trade
	DividendYield       float64           // 8 bytes
	PERatio             float64           // 8 bytes
	GeometricMean       float64           // 8 bytes
	VolumeWeightedPrice float64           // 8 bytes
	Index               float64           // 8 bytes
	Unavailable         uint8             // 1 byte, metric bits that failed
	TickerLen           uint8             // 1 byte
	ErrStrLen           uint16            // 2 bytes
	Ticker              string            // n bytes
	Err                 string            // n bytes
}

const reportFixedHeaderLen = 1 + 8 + 8 + 8 + 8 + 8 + 8 + 1 + 1 + 2

// Serialize converts the report to be sent on the wire.
func (r *Report) Serialize() []byte {
	r.Ticker = clampTicker(r.Ticker)
	r.TickerLen = uint8(len(r.Ticker))
	r.Err = truncate(r.Err, MAX_FRAME_SIZE-reportFixedHeaderLen-int(r.TickerLen))
	r.ErrStrLen = uint16(len(r.Err))

	buf := make([]byte, reportFixedHeaderLen+int(r.TickerLen)+int(r.ErrStrLen))
	buf[0] = byte(r.MessageType)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], math.Float64bits(r.DividendYield))
	binary.BigEndian.PutUint64(buf[17:25], math.Float64bits(r.PERatio))
	binary.BigEndian.PutUint64(buf[25:33], math.Float64bits(r.GeometricMean))
	binary.BigEndian.PutUint64(buf[33:41], math.Float64bits(r.VolumeWeightedPrice))
	binary.BigEndian.PutUint64(buf[41:49], math.Float64bits(r.Index))
	buf[49] = r.Unavailable
	buf[50] = r.TickerLen
	binary.BigEndian.PutUint16(buf[51:53], r.ErrStrLen)

	offset := reportFixedHeaderLen
	copy(buf[offset:], r.Ticker)
	offset += int(r.TickerLen)
	copy(buf[offset:], r.Err)
	return buf
}

func ParseReport(msg []byte) (Report, error) {
	if len(msg) < reportFixedHeaderLen {
		return Report{}, ErrMessageTooShort
	}

	r := Report{
		MessageType:         ReportMessageType(msg[0]),
		Seq:                 binary.BigEndian.Uint64(msg[1:9]),
		DividendYield:       math.Float64frombits(binary.BigEndian.Uint64(msg[9:17])),
		PERatio:             math.Float64frombits(binary.BigEndian.Uint64(msg[17:25])),
		GeometricMean:       math.Float64frombits(binary.BigEndian.Uint64(msg[25:33])),
		VolumeWeightedPrice: math.Float64frombits(binary.BigEndian.Uint64(msg[33:41])),
		Index:               math.Float64frombits(binary.BigEndian.Uint64(msg[41:49])),
		Unavailable:         msg[49],
		TickerLen:           msg[50],
		ErrStrLen:           binary.BigEndian.Uint16(msg[51:53]),
	}
	if len(msg) < reportFixedHeaderLen+int(r.TickerLen)+int(r.ErrStrLen) {
		return Report{}, ErrMessageTooShort
	}

	offset := reportFixedHeaderLen
	r.Ticker = string(msg[offset : offset+int(r.TickerLen)])
	offset += int(r.TickerLen)
	r.Err = string(msg[offset : offset+int(r.ErrStrLen)])
	return r, nil
}

func errorReport(ticker string, err error) Report {
	return Report{MessageType: ErrorReport, Ticker: ticker, Err: err.Error()}
}
