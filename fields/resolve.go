package fields

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonpointer"
)

// MaxBodyBytes is the hard cap on how much of the request body the
// fingerprinter and condition evaluator ever look at or hash.
const MaxBodyBytes = 512 * 1024

// Resolve looks up a field name in the shared namespace (everything in
// spec.md §4.1/§4.2 except the fingerprint-only header/cookie variants,
// which the fingerprint package resolves itself). ok is false only for
// unknown names — callers treat that as "empty, with a warning." Absent
// or null values of a known name resolve to "" with ok true.
func Resolve(name string, ctx *RequestContext) (string, bool) {
	switch {
	case name == "clientIP":
		return ctx.ClientIP(), true
	case name == "method":
		return ctx.Method, true
	case name == "url":
		if ctx.URL == nil {
			return "", true
		}
		return ctx.URL.String(), true
	case strings.HasPrefix(name, "url."):
		return resolveURLProperty(name[len("url."):], ctx)
	case strings.HasPrefix(name, "headers."):
		return resolveHeader(name[len("headers."):], ctx)
	case strings.HasPrefix(name, "cf."):
		return resolveCF(name[len("cf."):], ctx.CF)
	case name == "body":
		return truncatedBody(ctx), true
	case strings.HasPrefix(name, "body."):
		return resolveBodyPointer(name[len("body."):], ctx)
	default:
		return "", false
	}
}

func resolveURLProperty(prop string, ctx *RequestContext) (string, bool) {
	if ctx.URL == nil {
		return "", true
	}
	switch prop {
	case "hostname":
		return ctx.URL.Hostname(), true
	case "host":
		return ctx.URL.Host, true
	case "port":
		return ctx.URL.Port(), true
	case "pathname", "path":
		return ctx.URL.Path, true
	case "search", "query":
		if ctx.URL.RawQuery == "" {
			return "", true
		}
		return "?" + ctx.URL.RawQuery, true
	case "protocol", "scheme":
		return ctx.URL.Scheme, true
	default:
		return "", false
	}
}

func resolveHeader(name string, ctx *RequestContext) (string, bool) {
	return ctx.Header.Get(name), true
}

func resolveCF(path string, cf map[string]any) (string, bool) {
	parts := strings.Split(path, ".")
	var cur any = cf
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", true
		}
		v, ok := m[p]
		if !ok {
			return "", true
		}
		cur = v
	}
	return stringifyCF(cur), true
}

func stringifyCF(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func truncatedBody(ctx *RequestContext) string {
	b := ctx.Body
	if len(b) > MaxBodyBytes {
		b = b[:MaxBodyBytes]
	}
	return string(b)
}

// resolveBodyPointer extracts a field from a JSON body via a JSON Pointer
// (RFC 6901). A non-JSON body falls through to the plain truncated text,
// matching spec.md §4.1's "non-JSON body falls through to plain text."
func resolveBodyPointer(pointer string, ctx *RequestContext) (string, bool) {
	body := ctx.Body
	if len(body) > MaxBodyBytes {
		body = body[:MaxBodyBytes]
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return string(body), true
	}

	ptr, err := gojsonpointer.NewJsonPointer("/" + strings.TrimPrefix(pointer, "/"))
	if err != nil {
		return "", true
	}
	val, _, err := ptr.Get(doc)
	if err != nil {
		return "", true
	}
	return stringifyCF(val), true
}
