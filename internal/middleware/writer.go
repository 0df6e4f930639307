package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// ResponseWriter records what a handler did with the response so that
// middleware further out can tell plain requests from upgraded connections
type ResponseWriter struct {
	http.ResponseWriter
	status   int
	size     int
	written  bool
	hijacked bool
}

// Wrap returns w as a *ResponseWriter, reusing an existing wrapper
func Wrap(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *ResponseWriter) WriteHeader(status int) {
	rw.status = status
	rw.written = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *ResponseWriter) Write(b []byte) (int, error) {
	rw.written = true
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Hijack lets WebSocket upgrades take over the connection
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying response writer does not support hijacking")
	}
	conn, buf, err := hijacker.Hijack()
	if err == nil {
		rw.status = http.StatusSwitchingProtocols
		rw.hijacked = true
	}
	return conn, buf, err
}

// Unwrap exposes the wrapped writer to http.ResponseController
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *ResponseWriter) Status() int {
	return rw.status
}

func (rw *ResponseWriter) Size() int {
	return rw.size
}

// Started reports whether anything has been sent to the client, either a
// response or an upgrade
func (rw *ResponseWriter) Started() bool {
	return rw.written || rw.hijacked
}

func (rw *ResponseWriter) Hijacked() bool {
	return rw.hijacked
}
