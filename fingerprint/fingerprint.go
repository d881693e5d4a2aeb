// Package fingerprint computes the deterministic client fingerprint used to
// derive a Rule's CounterKey (spec.md §4.1). The function is pure: the same
// (request, spec, edge metadata) always hashes to the same value, and wall
// time never enters the computation — an older source variant mixed in a
// per-request timestamp, which defeats per-client aggregation, and
// spec.md §9 calls that out as a bug this implementation must not repeat.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/edgelimit/gateway/fields"
)

// Warning is emitted for unresolvable or unknown fingerprint parameters.
type Warning struct {
	Parameter string
	Detail    string
}

// Compute hashes the ordered parameter values named by spec into a stable
// hex-encoded SHA-256 digest. Unknown parameters resolve to the empty
// string and produce a Warning rather than aborting the computation.
func Compute(spec []string, ctx *fields.RequestContext) (string, []Warning) {
	var warnings []Warning
	parts := make([]string, len(spec))

	for i, param := range spec {
		value, ok := resolveParameter(param, ctx)
		if !ok {
			warnings = append(warnings, Warning{Parameter: param, Detail: "unknown fingerprint parameter"})
		}
		parts[i] = value
	}

	joined := strings.Join(parts, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:]), warnings
}

// resolveParameter extends the shared fields namespace with the
// fingerprint-only header/cookie equality forms from spec.md §4.1's
// dispatch table: headers.nameValue, headers.cookieName, and
// headers.cookieNameValue. Those forms carry their configured name (and,
// for the *Value variants, an expected value) inline in the parameter
// string as colon-separated suffixes, since FingerprintSpec.Parameters is
// a flat string list with no per-parameter config object:
//
//	headers.nameValue:X-Api-Key:secret      → "X-Api-Key:secret" or ""
//	headers.cookieName:session              → "session" or ""
//	headers.cookieNameValue:session:abc123   → "session:abc123" or ""
func resolveParameter(param string, ctx *fields.RequestContext) (string, bool) {
	switch {
	case strings.HasPrefix(param, "headers.nameValue:"):
		rest := strings.SplitN(strings.TrimPrefix(param, "headers.nameValue:"), ":", 2)
		if len(rest) != 2 {
			return "", false
		}
		return ResolveNamedHeader(ctx, rest[0], rest[1]), true
	case strings.HasPrefix(param, "headers.cookieNameValue:"):
		rest := strings.SplitN(strings.TrimPrefix(param, "headers.cookieNameValue:"), ":", 2)
		if len(rest) != 2 {
			return "", false
		}
		return ResolveNamedCookie(ctx, rest[0], &rest[1]), true
	case strings.HasPrefix(param, "headers.cookieName:"):
		name := strings.TrimPrefix(param, "headers.cookieName:")
		return ResolveNamedCookie(ctx, name, nil), true
	default:
		return fields.Resolve(param, ctx)
	}
}

// ResolveNamedHeader implements the headers.nameValue dispatch entry:
// "<name>:<value>" when the request header named name equals value,
// else empty.
func ResolveNamedHeader(ctx *fields.RequestContext, name, expected string) string {
	if ctx.Header.Get(name) == expected {
		return name + ":" + expected
	}
	return ""
}

// ResolveNamedCookie implements the headers.cookieName /
// headers.cookieNameValue dispatch entries: cookie presence, or presence
// plus an equality check, respectively.
func ResolveNamedCookie(ctx *fields.RequestContext, name string, expectedValue *string) string {
	for _, part := range strings.Split(ctx.Header.Get("Cookie"), ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 || kv[0] != name {
			continue
		}
		if expectedValue == nil {
			return name
		}
		if kv[1] == *expectedValue {
			return name + ":" + kv[1]
		}
		return ""
	}
	return ""
}
