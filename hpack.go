package h2

import (
	"bytes"
	"sync"

	"golang.org/x/net/http2/hpack"
)

// Encoder is the per-connection, per-direction HPACK compressor.
// golang.org/x/net/http2/hpack is the real RFC 7541 codec, so Encoder and
// Decoder wrap it rather than reimplementing Huffman tables.
type Encoder struct {
	buf *bytes.Buffer
	enc *hpack.Encoder
}

var encoderPool = sync.Pool{
	New: func() interface{} {
		e := &Encoder{buf: new(bytes.Buffer)}
		e.enc = hpack.NewEncoder(e.buf)
		return e
	},
}

// AcquireEncoder returns a pooled Encoder with an empty dynamic table at the
// default header-table-size.
func AcquireEncoder() *Encoder {
	e := encoderPool.Get().(*Encoder)
	e.buf.Reset()
	e.enc = hpack.NewEncoder(e.buf)
	e.enc.SetMaxDynamicTableSize(defaultHeaderTableSize)
	return e
}

// ReleaseEncoder returns e to the pool.
func ReleaseEncoder(e *Encoder) {
	encoderPool.Put(e)
}

// SetMaxTableSize applies a peer-advertised SETTINGS_HEADER_TABLE_SIZE to
// this encoder's dynamic table.
func (e *Encoder) SetMaxTableSize(size uint32) {
	e.enc.SetMaxDynamicTableSize(size)
}

// EncodeHeaderBlock HPACK-encodes every field in hs (in order) into one
// contiguous header block and returns it. The caller (writeHeaderBlock in
// conn_process.go) fragments the returned block across one HEADERS frame
// plus as many CONTINUATION frames as needed so that no fragment exceeds
// the peer's max-frame-size.
func (e *Encoder) EncodeHeaderBlock(hs []*HeaderField) []byte {
	e.buf.Reset()
	for _, hf := range hs {
		_ = e.enc.WriteField(hpack.HeaderField{
			Name:      hf.Key(),
			Value:     hf.Value(),
			Sensitive: hf.IsSensitive(),
		})
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out
}

// Decoder is the per-connection, per-direction HPACK decompressor.
type Decoder struct {
	dec    *hpack.Decoder
	fields []*HeaderField
}

var decoderPool = sync.Pool{
	New: func() interface{} {
		d := &Decoder{}
		d.dec = hpack.NewDecoder(defaultHeaderTableSize, d.emit)
		return d
	},
}

// AcquireDecoder returns a pooled Decoder with an empty dynamic table.
func AcquireDecoder() *Decoder {
	d := decoderPool.Get().(*Decoder)
	d.dec = hpack.NewDecoder(defaultHeaderTableSize, d.emit)
	d.dec.SetEmitEnabled(true)
	d.fields = d.fields[:0]
	return d
}

// ReleaseDecoder returns d to the pool.
func ReleaseDecoder(d *Decoder) {
	for _, hf := range d.fields {
		ReleaseHeaderField(hf)
	}
	d.fields = d.fields[:0]
	decoderPool.Put(d)
}

// SetMaxTableSize applies a locally-announced SETTINGS_HEADER_TABLE_SIZE to
// this decoder's dynamic table.
func (d *Decoder) SetMaxTableSize(size uint32) {
	d.dec.SetMaxDynamicTableSize(size)
}

func (d *Decoder) emit(f hpack.HeaderField) {
	hf := AcquireHeaderField()
	hf.SetBytes([]byte(f.Name), []byte(f.Value))
	hf.SetSensitive(f.Sensitive)
	d.fields = append(d.fields, hf)
}

// DecodeHeaderBlock decodes the full, reassembled header block (the
// concatenation of a HEADERS frame's fragment with every following
// CONTINUATION fragment) and returns the resulting fields.
// The returned slice and its HeaderFields are owned by d until the next
// call to DecodeHeaderBlock or ReleaseDecoder; callers that need to retain
// a field past that point must copy its key and value into a HeaderField of
// their own (AcquireHeaderField plus SetBytes).
func (d *Decoder) DecodeHeaderBlock(block []byte) ([]*HeaderField, error) {
	for _, hf := range d.fields {
		ReleaseHeaderField(hf)
	}
	d.fields = d.fields[:0]

	if _, err := d.dec.Write(block); err != nil {
		return nil, NewConnError(CompressionError, err.Error())
	}
	if err := d.dec.Close(); err != nil {
		return nil, NewConnError(CompressionError, err.Error())
	}

	return d.fields, nil
}
