package server

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/meigma/dicomblob/core"
)

// transferSyntax returns the transfer syntax a request asks for. The
// transfer-syntax query parameter wins over the Accept header. The first
// Accept media range carrying a transfer-syntax parameter is used.
func transferSyntax(r *http.Request) (string, error) {
	if ts := r.URL.Query().Get("transfer-syntax"); ts != "" {
		return ts, nil
	}
	accept := r.Header.Values("Accept")
	for _, header := range accept {
		for _, item := range splitAccept(header) {
			_, params, err := mime.ParseMediaType(item)
			if err != nil {
				return "", fmt.Errorf("%w: accept %q: %v", core.ErrInvalidRequest, item, err)
			}
			if ts := params["transfer-syntax"]; ts != "" {
				return ts, nil
			}
		}
	}
	return core.DefaultTransferSyntax, nil
}

// splitAccept splits an Accept header on commas outside quoted strings.
func splitAccept(header string) []string {
	var (
		items  []string
		quoted bool
		start  int
	)
	for i := 0; i < len(header); i++ {
		switch header[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				items = appendItem(items, header[start:i])
				start = i + 1
			}
		}
	}
	return appendItem(items, header[start:])
}

func appendItem(items []string, item string) []string {
	if item = strings.TrimSpace(item); item != "" {
		items = append(items, item)
	}
	return items
}
