// Package network answers plain HTTP requests arriving on the TLS port with a redirect
// to the https URL.
package network

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"sync"
)

// recordTypeHandshake is the first byte of every TLS client hello.
const recordTypeHandshake = 0x16

// AutoHttpsConn wraps a connection accepted on a TLS port. If the client speaks plain
// HTTP, its first request is answered with a redirect and the connection is closed.
type AutoHttpsConn struct {
	net.Conn

	reader *bufio.Reader
	once   sync.Once
	err    error
}

// NewAutoHttpsConn creates a new AutoHttpsConn that wraps the given connection.
func NewAutoHttpsConn(conn net.Conn) net.Conn {
	return &AutoHttpsConn{
		Conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (c *AutoHttpsConn) sniff() {
	first, err := c.reader.Peek(1)
	if err != nil || first[0] == recordTypeHandshake {
		return
	}

	request, err := http.ReadRequest(c.reader)
	if err != nil {
		c.err = err
		_ = c.Conn.Close()
		return
	}
	resp := http.Response{
		StatusCode: http.StatusTemporaryRedirect,
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
		Close:      true,
	}
	resp.Header.Set("Location", "https://"+request.Host+request.RequestURI)
	_ = resp.Write(c.Conn)
	_ = c.Conn.Close()
	c.err = io.EOF
}

// Read checks the first bytes of the connection before handing them to the TLS layer.
func (c *AutoHttpsConn) Read(buf []byte) (int, error) {
	c.once.Do(c.sniff)
	if c.err != nil {
		return 0, c.err
	}
	return c.reader.Read(buf)
}
