package h2

import (
	"bufio"
	"bytes"
	"io"
)

// clientPreface is the 24-byte magic opening every HTTP/2 connection
// (https://httpwg.org/specs/rfc7540.html#Preface).
var clientPreface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// WritePreface writes the client connection preface to bw. Callers still
// need to flush and then send their initial SETTINGS frame.
func WritePreface(bw *bufio.Writer) error {
	_, err := bw.Write(clientPreface)
	return err
}

// ReadPreface reads and validates the 24-byte client preface from r.
func ReadPreface(r io.Reader) error {
	b := make([]byte, len(clientPreface))
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}
	if !bytes.Equal(b, clientPreface) {
		return ErrBadPreface
	}
	return nil
}
