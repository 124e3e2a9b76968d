package cmd

import (
	"strings"

	"github.com/jmylchreest/tao/internal/iobackend"
	"github.com/jmylchreest/tao/pkg/bytestream"
	"github.com/jmylchreest/tao/pkg/httpclient"
)

// inputSource is what every subcommand's input side needs: a seekable
// ByteStream plus a way to release whatever OpenInputSource opened.
type inputSource interface {
	bytestream.ByteStream
	Close() error
}

// OpenInputSource opens loc for reading, dispatching on scheme: http(s) URLs
// go through iobackend.OpenHTTP (ranged reads via the resilient httpclient
// client), everything else is treated as a local path via
// iobackend.OpenFile. Demuxing needs Seek, which is why remote inputs go
// through ranged HTTP reads rather than a streaming body.
func OpenInputSource(loc string) (inputSource, error) {
	if strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") {
		return iobackend.OpenHTTP(loc, httpclient.DefaultConfig())
	}
	return iobackend.OpenFile(loc, iobackend.ReadOnly)
}
