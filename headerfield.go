package h2

import "sync"

// HeaderField is one decoded (or about-to-be-encoded) name/value pair.
// Kept HPACK-library-agnostic so it can be filled from
// golang.org/x/net/http2/hpack.HeaderField in either direction without that
// type leaking into the rest of the package.
//
// Use AcquireHeaderField/ReleaseHeaderField; do not construct directly.
type HeaderField struct {
	key, value []byte
	sensitive  bool
}

var headerFieldPool = sync.Pool{
	New: func() interface{} { return &HeaderField{} },
}

// AcquireHeaderField gets a HeaderField from the pool.
func AcquireHeaderField() *HeaderField {
	return headerFieldPool.Get().(*HeaderField)
}

// ReleaseHeaderField resets hf and returns it to the pool.
func ReleaseHeaderField(hf *HeaderField) {
	hf.Reset()
	headerFieldPool.Put(hf)
}

func (hf *HeaderField) Reset() {
	hf.key = hf.key[:0]
	hf.value = hf.value[:0]
	hf.sensitive = false
}

func (hf *HeaderField) Key() string   { return string(hf.key) }
func (hf *HeaderField) Value() string { return string(hf.value) }

func (hf *HeaderField) KeyBytes() []byte   { return hf.key }
func (hf *HeaderField) ValueBytes() []byte { return hf.value }

func (hf *HeaderField) Set(k, v string) {
	hf.key = append(hf.key[:0], k...)
	hf.value = append(hf.value[:0], v...)
}

func (hf *HeaderField) SetBytes(k, v []byte) {
	hf.key = append(hf.key[:0], k...)
	hf.value = append(hf.value[:0], v...)
}

func (hf *HeaderField) SetKey(k string)     { hf.key = append(hf.key[:0], k...) }
func (hf *HeaderField) SetValue(v string)   { hf.value = append(hf.value[:0], v...) }
func (hf *HeaderField) SetSensitive(v bool) { hf.sensitive = v }
func (hf *HeaderField) IsSensitive() bool   { return hf.sensitive }

// IsPseudo reports whether the field's name starts with ':' (the
// pseudo-headers :method, :scheme, :authority, :path, :status).
func (hf *HeaderField) IsPseudo() bool {
	return len(hf.key) > 0 && hf.key[0] == ':'
}

func (hf *HeaderField) String() string {
	return hf.Key() + ": " + hf.Value()
}
