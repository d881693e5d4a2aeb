// Package fields resolves the request-attribute namespace shared by the
// fingerprinter and the condition evaluator: clientIP, method, url,
// url.<prop>, headers.<name>, cf.<path>, body, and body.<json-pointer>.
//
// Having one resolver shared by both callers keeps their semantics from
// drifting apart — a rule that reads headers.user-agent and a fingerprint
// spec that reads the same parameter must agree on what "headers.user-agent"
// means.
package fields

import (
	"net/http"
	"net/url"
	"strings"
)

// RequestContext is the read-only view of a request that field resolution
// operates over. Body is the buffered request body (at most 512 KiB, per
// the fingerprinter's truncation rule); it is populated once per request
// and shared by every downstream stage.
type RequestContext struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte

	// CF is the edge-metadata mapping (TLS version, ASN, bot score,
	// JA3/JA4, country, clientIp, ...) supplied by the hosting transport.
	CF map[string]any

	// clientIP is resolved once and cached, since multiple parameters
	// (clientIP itself, and any rule keyed off it) read it repeatedly.
	clientIP     string
	clientIPOnce bool
}

// NewRequestContext builds a RequestContext from an *http.Request. body is
// the pre-buffered request body (callers must buffer it themselves — a
// RequestContext never reads r.Body, since that could consume it a second
// time).
func NewRequestContext(r *http.Request, body []byte, cf map[string]any) *RequestContext {
	if cf == nil {
		cf = map[string]any{}
	}
	return &RequestContext{
		Method: r.Method,
		URL:    r.URL,
		Header: r.Header,
		Body:   body,
		CF:     cf,
	}
}

// ClientIP resolves the client IP via the fixed precedence order: the
// True-Client-IP header, then CF-Connecting-IP, then the first token of
// X-Forwarded-For, then the edge-metadata clientIp field, else "unknown".
func (c *RequestContext) ClientIP() string {
	if c.clientIPOnce {
		return c.clientIP
	}
	c.clientIPOnce = true
	c.clientIP = c.resolveClientIP()
	return c.clientIP
}

func (c *RequestContext) resolveClientIP() string {
	if v := strings.TrimSpace(c.Header.Get("True-Client-IP")); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Header.Get("CF-Connecting-IP")); v != "" {
		return v
	}
	if xff := c.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if v, ok := c.CF["clientIp"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}
