package fingerprint_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgelimit/gateway/fields"
	"github.com/edgelimit/gateway/fingerprint"
)

func ctxWith(t *testing.T, header http.Header) *fields.RequestContext {
	t.Helper()
	u, err := url.Parse("http://example.com/path")
	require.NoError(t, err)
	return &fields.RequestContext{Method: "GET", URL: u, Header: header, CF: map[string]any{}}
}

func TestCompute_Deterministic(t *testing.T) {
	ctx := ctxWith(t, http.Header{"User-Agent": {"curl/8.0"}, "True-Client-Ip": {"1.2.3.4"}})
	spec := []string{"clientIP", "headers.user-agent"}

	h1, w1 := fingerprint.Compute(spec, ctx)
	h2, w2 := fingerprint.Compute(spec, ctx)

	assert.Equal(t, h1, h2)
	assert.Empty(t, w1)
	assert.Empty(t, w2)
	assert.Len(t, h1, 64) // hex-encoded SHA-256
}

func TestCompute_IgnoresUnlistedAttributes(t *testing.T) {
	spec := []string{"clientIP"}
	ctx1 := ctxWith(t, http.Header{"True-Client-Ip": {"1.2.3.4"}, "User-Agent": {"A"}})
	ctx2 := ctxWith(t, http.Header{"True-Client-Ip": {"1.2.3.4"}, "User-Agent": {"B"}})

	h1, _ := fingerprint.Compute(spec, ctx1)
	h2, _ := fingerprint.Compute(spec, ctx2)
	assert.Equal(t, h1, h2, "fields outside the fingerprint spec must not affect the hash")
}

func TestCompute_DifferentUAsDifferentHash(t *testing.T) {
	spec := []string{"clientIP", "headers.user-agent"}
	ctx1 := ctxWith(t, http.Header{"True-Client-Ip": {"9.9.9.9"}, "User-Agent": {"A"}})
	ctx2 := ctxWith(t, http.Header{"True-Client-Ip": {"9.9.9.9"}, "User-Agent": {"B"}})

	h1, _ := fingerprint.Compute(spec, ctx1)
	h2, _ := fingerprint.Compute(spec, ctx2)
	assert.NotEqual(t, h1, h2)
}

func TestCompute_UnknownParameterWarns(t *testing.T) {
	ctx := ctxWith(t, http.Header{})
	_, warnings := fingerprint.Compute([]string{"bogus"}, ctx)
	require.Len(t, warnings, 1)
	assert.Equal(t, "bogus", warnings[0].Parameter)
}

func TestResolveNamedHeader(t *testing.T) {
	ctx := ctxWith(t, http.Header{"X-Api-Key": {"secret"}})
	assert.Equal(t, "X-Api-Key:secret", fingerprint.ResolveNamedHeader(ctx, "X-Api-Key", "secret"))
	assert.Equal(t, "", fingerprint.ResolveNamedHeader(ctx, "X-Api-Key", "other"))
}

func TestResolveNamedCookie(t *testing.T) {
	ctx := ctxWith(t, http.Header{"Cookie": {"session=abc123; theme=dark"}})
	assert.Equal(t, "session", fingerprint.ResolveNamedCookie(ctx, "session", nil))
	v := "abc123"
	assert.Equal(t, "session:abc123", fingerprint.ResolveNamedCookie(ctx, "session", &v))
	other := "nope"
	assert.Equal(t, "", fingerprint.ResolveNamedCookie(ctx, "session", &other))
}
