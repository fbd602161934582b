// Package peer implements the facade a running query engine exposes to
// other peers: the RPC surface of spec.md §4.H/§6, wired to the local
// runtime and graph adapter. The low-level connection manager (framing,
// pooling, reconnection) is out of scope per spec.md §1; this package
// keeps its own transport deliberately thin — one persistent connection
// per remote URL, multiplexed by request id.
package peer

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/wbrown/plasma"
	"github.com/wbrown/plasma/tuple"
)

// Method names the RPC surface of spec.md §6.
type Method string

const (
	MethodPing        Method = "ping"
	MethodNodeByUUID  Method = "node-by-uuid"
	MethodQuery       Method = "query"
	MethodSubQuery    Method = "sub-query"
	MethodRecurQuery  Method = "recur-query"
	MethodIterNQuery  Method = "iter-n-query"
)

// PingMarker is the fixed value ping() returns (spec.md §4.H).
const PingMarker = "plasma-pong"

// frame is the single wire type both request and response messages use,
// one JSON object per line. A request carries Method+Params; a reply to
// a request-channel call carries Result or Error; a reply on the stream
// channel carries a sequence of Item frames terminated by Done (or
// Error, which also terminates the stream).
type frame struct {
	ID     string          `json:"id"`
	Method Method          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Item   json.RawMessage `json:"item,omitempty"`
	Done   bool            `json:"done,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

// wireError is the envelope's error shape (spec.md §6: "{message, cause?}").
type wireError struct {
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

func errorFrom(err error) *wireError {
	if err == nil {
		return nil
	}
	we := &wireError{Message: err.Error()}
	if e, ok := err.(*plasma.Error); ok && e.Cause != nil {
		we.Cause = e.Cause.Error()
	}
	return we
}

func (e *wireError) asError() error {
	if e == nil {
		return nil
	}
	if e.Cause != "" {
		return plasma.Wrap(plasma.RemoteError, fmt.Errorf("%s", e.Cause), "%s", e.Message)
	}
	return plasma.NewError(plasma.RemoteError, "%s", e.Message)
}

// itemPayload is the per-frame body a stream-channel reply carries: a
// path tuple, or a non-fatal error to surface inline (runtime.ErrorItem),
// per spec.md §7 ("stream-channel exceptions close the stream" refers to
// transport failures; in-band query errors ride along as ordinary items).
type itemPayload struct {
	PT    tuple.PT   `json:"pt,omitempty"`
	Error *wireError `json:"error,omitempty"`
}

// URL is a parsed plasma:// peer address (spec.md §6).
type URL struct {
	Host string
	Port string
}

// ParseURL parses a "plasma://host:port" address.
func ParseURL(raw string) (URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URL{}, plasma.Wrap(plasma.PlanInvalid, err, "parsing peer url %q", raw)
	}
	if u.Scheme != "plasma" {
		return URL{}, plasma.NewError(plasma.PlanInvalid, "peer url %q has unexpected scheme %q", raw, u.Scheme)
	}
	host := u.Hostname()
	port := u.Port()
	if host == "" || port == "" {
		return URL{}, plasma.NewError(plasma.PlanInvalid, "peer url %q missing host or port", raw)
	}
	return URL{Host: host, Port: port}, nil
}

// Addr returns the "host:port" form net.Dial expects.
func (u URL) Addr() string { return u.Host + ":" + u.Port }

func (u URL) String() string { return "plasma://" + u.Addr() }

// normalizeURL is used as the connection-pool key, so two spellings of
// the same address (e.g. trailing slash) share one pooled connection.
func normalizeURL(raw string) (string, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.String()), nil
}
