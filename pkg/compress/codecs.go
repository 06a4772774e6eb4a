// Package compress provides the content-encoding codecs the registry derives
// cache variants with, and Accept-Encoding negotiation.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Identity is the encoding name of uncompressed content.
const Identity = ""

// Codec compresses one content-encoding.
type Codec interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Uncompress(src []byte) ([]byte, error)
}

// Codecs is the collaborator contract the registry depends on.
type Codecs interface {
	IsSupported(name string) bool
	Compress(name string, src []byte) ([]byte, error)
	Uncompress(name string, src []byte) ([]byte, error)
}

// Set is a name-indexed group of codecs. The zero value supports identity only.
type Set struct {
	mu     sync.RWMutex
	codecs map[string]Codec
	order  []string
}

// New returns a Set holding codecs in preference order.
func New(codecs ...Codec) *Set {
	s := &Set{codecs: make(map[string]Codec, len(codecs))}
	for _, c := range codecs {
		s.Add(c)
	}
	return s
}

// Default returns gzip, br, zstd, deflate and deflate-raw.
func Default() *Set {
	return New(Gzip(), Brotli(), Zstd(), Deflate(), DeflateRaw())
}

// Add registers or replaces a codec.
func (s *Set) Add(c Codec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codecs == nil {
		s.codecs = map[string]Codec{}
	}
	if _, ok := s.codecs[c.Name()]; !ok {
		s.order = append(s.order, c.Name())
	}
	s.codecs[c.Name()] = c
}

// Names lists supported encodings in preference order, identity excluded.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *Set) IsSupported(name string) bool {
	if name == Identity {
		return true
	}
	_, ok := s.get(name)
	return ok
}

func (s *Set) Compress(name string, src []byte) ([]byte, error) {
	if name == Identity {
		return src, nil
	}
	c, ok := s.get(name)
	if !ok {
		return nil, fmt.Errorf("compress: unsupported encoding %q", name)
	}
	return c.Compress(src)
}

func (s *Set) Uncompress(name string, src []byte) ([]byte, error) {
	if name == Identity {
		return src, nil
	}
	c, ok := s.get(name)
	if !ok {
		return nil, fmt.Errorf("compress: unsupported encoding %q", name)
	}
	return c.Uncompress(src)
}

func (s *Set) get(name string) (Codec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codecs[name]
	return c, ok
}

// ---------- stream codecs ----------

type streamCodec struct {
	name   string
	writer func(io.Writer) (io.WriteCloser, error)
	reader func(io.Reader) (io.Reader, error)
}

func (c streamCodec) Name() string { return c.name }

func (c streamCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.writer(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return buf.Bytes(), nil
}

func (c streamCodec) Uncompress(src []byte) ([]byte, error) {
	r, err := c.reader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	out, err := io.ReadAll(r)
	if rc, ok := r.(io.Closer); ok {
		_ = rc.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return out, nil
}

// Gzip is RFC 1952 gzip.
func Gzip() Codec {
	return streamCodec{
		name:   "gzip",
		writer: func(w io.Writer) (io.WriteCloser, error) { return gzip.NewWriterLevel(w, gzip.DefaultCompression) },
		reader: func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
	}
}

// Deflate is the HTTP "deflate" encoding: zlib-wrapped DEFLATE (RFC 1950).
func Deflate() Codec {
	return streamCodec{
		name:   "deflate",
		writer: func(w io.Writer) (io.WriteCloser, error) { return zlib.NewWriterLevel(w, zlib.DefaultCompression) },
		reader: func(r io.Reader) (io.Reader, error) { return zlib.NewReader(r) },
	}
}

// DeflateRaw is unwrapped DEFLATE (RFC 1951).
func DeflateRaw() Codec {
	return streamCodec{
		name:   "deflate-raw",
		writer: func(w io.Writer) (io.WriteCloser, error) { return flate.NewWriter(w, flate.DefaultCompression) },
		reader: func(r io.Reader) (io.Reader, error) { return flate.NewReader(r), nil },
	}
}

// Brotli is the "br" encoding.
func Brotli() Codec {
	return streamCodec{
		name: "br",
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return brotli.NewWriterLevel(w, brotli.DefaultCompression), nil
		},
		reader: func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil },
	}
}

// ---------- zstd ----------

type zstdCodec struct {
	once sync.Once
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	err  error
}

// Zstd is the "zstd" encoding. Encoder and decoder are shared; EncodeAll and
// DecodeAll are safe for concurrent use.
func Zstd() Codec { return &zstdCodec{} }

func (z *zstdCodec) init() error {
	z.once.Do(func() {
		z.enc, z.err = zstd.NewWriter(nil)
		if z.err != nil {
			return
		}
		z.dec, z.err = zstd.NewReader(nil)
	})
	return z.err
}

func (z *zstdCodec) Name() string { return "zstd" }

func (z *zstdCodec) Compress(src []byte) ([]byte, error) {
	if err := z.init(); err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return z.enc.EncodeAll(src, nil), nil
}

func (z *zstdCodec) Uncompress(src []byte) ([]byte, error) {
	if err := z.init(); err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	out, err := z.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	return out, nil
}
