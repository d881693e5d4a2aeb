// Package dispatch implements the Action Dispatcher (spec.md §4.5): given
// the Rule Matcher's decision and the matched rule's Counter Store
// Decision, it either lets the pipeline forward the request to
// origin or writes the terminal response itself, decorating it with the
// rate-limit headers clients and operators rely on.
package dispatch

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/edgelimit/gateway/counter"
	"github.com/edgelimit/gateway/matcher"
	"github.com/edgelimit/gateway/ruleset"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var ratelimitedTemplate = template.Must(template.ParseFS(templateFS, "templates/ratelimited.html.tmpl"))

// Input bundles what the dispatcher needs to decide and render a response.
type Input struct {
	Result           matcher.Result
	Decision         *counter.Decision // the matched rule's Counter Store verdict, nil if unavailable
	ClientIdentifier string            // the resolved fingerprint/IP identity, for X-Client-Identifier
}

// Dispatch applies in's decision to w. Every matched action is gated by
// in.Decision's verdict (spec.md §4.5): allowed=true forwards regardless
// of action type (simulate still decorates the response, it just never
// blocks), and only allowed=false lets block/customResponse/rateLimit
// synthesize their terminal response. It reports forward=true when the
// pipeline should still proxy the request to origin; forward=false means
// Dispatch has already written the full terminal response and the
// pipeline must not forward.
func Dispatch(w http.ResponseWriter, r *http.Request, in Input) (forward bool) {
	setIdentityHeaders(w, in)

	if !in.Result.Matched {
		return true
	}

	allowed := in.Decision == nil || in.Decision.Allowed
	if in.Decision != nil {
		setRateLimitHeaders(w, *in.Decision)
	}

	switch in.Result.Action.Type {
	case ruleset.ActionAllow, ruleset.ActionLog:
		return true

	case ruleset.ActionSimulate:
		setSimulatedHeader(w, allowed)
		return true

	case ruleset.ActionBlock:
		if allowed {
			return true
		}
		writeBlock(w)
		return false

	case ruleset.ActionCustomResponse:
		if allowed {
			return true
		}
		writeCustomResponse(w, r, in.Result.Action)
		return false

	case ruleset.ActionRateLimit:
		if allowed {
			return true
		}
		writeRateLimited(w, r, in)
		return false

	default:
		// Unrecognized action type: fail open rather than block traffic on
		// a config it doesn't understand (spec.md §7 MalformedRule taxonomy).
		return true
	}
}

// setSimulatedHeader reports, without enforcing, what a rateLimit action
// would have done (spec.md §4.5): false when the request would have been
// allowed, true when it would have been denied.
func setSimulatedHeader(w http.ResponseWriter, allowed bool) {
	w.Header().Set("X-Rate-Limit-Simulated", strconv.FormatBool(!allowed))
}

func setIdentityHeaders(w http.ResponseWriter, in Input) {
	if in.ClientIdentifier != "" {
		w.Header().Set("X-Client-Identifier", in.ClientIdentifier)
	}
}

func writeBlock(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("Forbidden\n"))
}

func writeCustomResponse(w http.ResponseWriter, r *http.Request, action ruleset.Action) {
	status := action.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	switch action.BodyType {
	case ruleset.BodyTypeJSON:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if action.Body == "" {
			_, _ = w.Write([]byte("{}"))
			return
		}
		_, _ = w.Write([]byte(action.Body))
	case ruleset.BodyTypeHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(action.Body))
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(action.Body))
	}
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, in Input) {
	d := in.Decision

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusTooManyRequests)
		data := templateData{RuleName: in.Result.Rule.Name}
		if d != nil {
			data.Limit = d.Limit
			data.Period = d.Period
			data.RetryAfterSeconds = int64(d.RetryAfter.Seconds())
		}
		_ = ratelimitedTemplate.Execute(w, data)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	body := map[string]any{
		"error": "rate limit exceeded",
		"rule":  in.Result.Rule.Name,
	}
	if d != nil {
		body["limit"] = d.Limit
		body["remaining"] = d.Remaining
		body["period"] = d.Period
		body["retryAfterSeconds"] = int64(d.RetryAfter.Seconds())
	}
	_ = json.NewEncoder(w).Encode(body)
}

type templateData struct {
	RuleName          string
	Limit             int64
	Period            int64
	RetryAfterSeconds int64
}

// setRateLimitHeaders writes the response headers spec.md §6 defines onto
// every matched response that has a Counter Store Decision: current limit,
// remaining quota, window length, reset time (both as a unix timestamp and
// as a fractional-seconds-precise value), and, only when denied,
// Retry-After.
func setRateLimitHeaders(w http.ResponseWriter, d counter.Decision) {
	h := w.Header()
	h.Set("X-Rate-Limit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-Rate-Limit-Remaining", strconv.FormatInt(d.Remaining, 10))
	h.Set("X-Rate-Limit-Period", strconv.FormatInt(d.Period, 10))
	if !d.ResetAt.IsZero() {
		h.Set("X-Rate-Limit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		h.Set("X-Rate-Limit-Reset-Precise", strconv.FormatFloat(float64(d.ResetAt.UnixNano())/1e9, 'f', 3, 64))
	}
	if !d.Allowed && d.RetryAfter > 0 {
		seconds := int64(d.RetryAfter.Seconds())
		if d.RetryAfter%1_000_000_000 != 0 {
			seconds++ // round up to the next whole second, never under-promise
		}
		h.Set("Retry-After", strconv.FormatInt(seconds, 10))
	}
}

// wantsHTML applies simple Accept-header content negotiation: an explicit
// preference for text/html (and no stronger preference for JSON) renders
// the default HTML page; everything else (including no Accept header,
// "*/*", or an explicit application/json) gets the JSON envelope. The
// operator's own HTML templates are an external collaborator (spec.md §1)
// this only provides a usable fallback for.
func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	htmlIdx := strings.Index(accept, "text/html")
	if htmlIdx == -1 {
		return false
	}
	jsonIdx := strings.Index(accept, "application/json")
	if jsonIdx == -1 {
		return true
	}
	return htmlIdx < jsonIdx
}
