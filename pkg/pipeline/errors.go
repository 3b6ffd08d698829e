package pipeline

import (
	"errors"
	"net"
	"net/url"

	"github.com/dtnitsch/manga-downloadr/pkg/fetcher"
	"github.com/dtnitsch/manga-downloadr/pkg/parser"
)

// Error kinds recorded for dropped items.
const (
	KindTransport = "transport_error"
	KindParse     = "parse_error"
	KindIO        = "io_error"
	KindCodec     = "codec_error"
)

type itemError struct {
	kind string
	err  error
}

func (e *itemError) Error() string { return e.err.Error() }
func (e *itemError) Unwrap() error { return e.err }

func tag(kind string, err error) error {
	if err == nil {
		return nil
	}
	return &itemError{kind: kind, err: err}
}

// Classify names the kind of a per-item error.
func Classify(err error) string {
	var ie *itemError
	if errors.As(err, &ie) {
		return ie.kind
	}
	var statusErr *fetcher.StatusError
	var urlErr *url.Error
	var netErr net.Error
	switch {
	case errors.As(err, &statusErr), errors.As(err, &urlErr), errors.As(err, &netErr):
		return KindTransport
	case errors.Is(err, parser.ErrMalformedLabel), errors.Is(err, parser.ErrNoImage):
		return KindParse
	}
	return KindIO
}
