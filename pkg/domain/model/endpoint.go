package model

import (
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

const clientsPath = "/ws/clients"

// ClientsURL builds the board socket endpoint for user and filter. http
// and https bases are mapped to ws and wss.
func ClientsURL(base, user string, filter FilterContext) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", goerr.Wrap(ErrInvalidEndpoint, "failed to parse base URL", goerr.V("cause", err.Error()))
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", goerr.Wrap(ErrInvalidEndpoint, "unsupported scheme", goerr.V("scheme", u.Scheme))
	}
	if u.Host == "" {
		return "", goerr.Wrap(ErrInvalidEndpoint, "base URL has no host")
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + clientsPath
	f := filter.Normalized()
	q := url.Values{}
	q.Set("authorization", user)
	q.Set("filterMode", f.Mode.String())
	if f.Franchise != "" {
		q.Set("franchise", f.Franchise)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
