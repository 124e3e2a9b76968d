package format

import "github.com/jmylchreest/tao/pkg/bytestream"

// prefixPrependStream re-attaches bytes a probe already consumed from a
// non-seekable source, so the chosen demuxer sees the stream from the
// beginning without requiring Seek.
type prefixPrependStream struct {
	prefix []byte
	pos    int
	rest   bytestream.ByteStream
}

func newPrefixPrependStream(prefix []byte, rest bytestream.ByteStream) bytestream.ByteStream {
	return &prefixPrependStream{prefix: prefix, rest: rest}
}

func (p *prefixPrependStream) Read(buf []byte) (int, error) {
	if p.pos < len(p.prefix) {
		n := copy(buf, p.prefix[p.pos:])
		p.pos += n
		return n, nil
	}
	return p.rest.Read(buf)
}

func (p *prefixPrependStream) Write(buf []byte) (int, error) { return p.rest.Write(buf) }
func (p *prefixPrependStream) WriteAll(buf []byte) error     { return p.rest.WriteAll(buf) }

func (p *prefixPrependStream) Seek(offset int64, whence bytestream.SeekWhence) (int64, error) {
	return p.rest.Seek(offset, whence)
}

func (p *prefixPrependStream) Position() (int64, error) {
	restPos, err := p.rest.Position()
	if err != nil {
		return 0, err
	}
	return restPos - int64(len(p.prefix)-p.pos), nil
}

func (p *prefixPrependStream) Size() (int64, bool) { return p.rest.Size() }
func (p *prefixPrependStream) IsSeekable() bool    { return false }
