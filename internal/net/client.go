package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var ErrServerError = errors.New("server error")

// Client sends requests to a Server and waits for each reply.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

func Dial(ctx context.Context, address string, timeout time.Duration) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn), timeout: timeout}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends message and returns the server's reply. Error reports are
// returned as a Report together with an ErrServerError wrapping their text.
func (c *Client) Do(message Message) (Report, error) {
	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return Report{}, err
		}
	}
	if err := WriteFrame(c.conn, message.Serialize()); err != nil {
		return Report{}, fmt.Errorf("sending message: %w", err)
	}

	frame, err := ReadFrame(c.reader)
	if err != nil {
		return Report{}, fmt.Errorf("reading report: %w", err)
	}
	report, err := ParseReport(frame)
	if err != nil {
		return Report{}, err
	}
	if report.MessageType == ErrorReport {
		return report, fmt.Errorf("%w: %s", ErrServerError, report.Err)
	}
	return report, nil
}
