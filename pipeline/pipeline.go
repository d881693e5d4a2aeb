// Package pipeline wires the gateway's components into the request state
// machine spec.md §4.7 describes: Received -> ConfigLoaded -> Matched? ->
// Fingerprinted? -> Counted? -> Dispatched -> Emit. It is implemented as an
// http.Handler that sits in front of an origin handler (typically a
// reverse proxy), adapted from the teacher's net/http middleware.
package pipeline

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/edgelimit/gateway/configcache"
	"github.com/edgelimit/gateway/counter"
	"github.com/edgelimit/gateway/dispatch"
	"github.com/edgelimit/gateway/fields"
	"github.com/edgelimit/gateway/fingerprint"
	"github.com/edgelimit/gateway/matcher"
	"github.com/edgelimit/gateway/metrics"
	"github.com/edgelimit/gateway/ruleset"
)

// CFExtractor supplies the edge-metadata map (spec.md's cf.* namespace) for
// a request. Hosts that don't offer this metadata can pass a function that
// always returns nil.
type CFExtractor func(r *http.Request) map[string]any

// Clock abstracts time.Now so tests can drive the sliding window
// deterministically; production wiring leaves it nil and gets time.Now.
type Clock func() time.Time

// Config wires a Handler's dependencies.
type Config struct {
	ConfigCache  *configcache.Cache
	CounterStore *counter.Counter
	Origin       http.Handler
	Logger       *zap.Logger
	CFExtractor  CFExtractor
	Clock        Clock

	// Metrics is optional; when set, every request's decision and every
	// Counter Store call are instrumented through it.
	Metrics        *metrics.Collector
	CounterBackend string // label value for metrics.Collector.ObserveCounterStore
}

// Handler evaluates the active ruleset against every incoming request
// before forwarding it to Origin.
type Handler struct {
	cfg Config
}

// New builds a Handler. Panics if a required dependency is missing, the
// same "fail loudly at construction, fail open at request time" posture
// the teacher's middleware config validation uses.
func New(cfg Config) *Handler {
	if cfg.ConfigCache == nil {
		panic("pipeline: ConfigCache is required")
	}
	if cfg.CounterStore == nil {
		panic("pipeline: CounterStore is required")
	}
	if cfg.Origin == nil {
		panic("pipeline: Origin is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CFExtractor == nil {
		cfg.CFExtractor = func(*http.Request) map[string]any { return nil }
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Handler{cfg: cfg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := readAndRestoreBody(r)
	if err != nil {
		// A request whose body can't even be buffered is a transport
		// problem, not a policy one: fail open (spec.md §7).
		h.cfg.Logger.Warn("pipeline: failed to buffer request body, forwarding unevaluated", zap.Error(err))
		h.cfg.Origin.ServeHTTP(w, r)
		return
	}

	snapshot := h.cfg.ConfigCache.Get()
	if snapshot == nil || snapshot.Ruleset == nil {
		h.cfg.Logger.Warn("pipeline: no ruleset snapshot available, forwarding unevaluated")
		h.cfg.Origin.ServeHTTP(w, r)
		return
	}

	reqCtx := fields.NewRequestContext(r, body, h.cfg.CFExtractor(r))

	result, observed, warnings := matcher.Match(snapshot.Ruleset.Rules, reqCtx)
	for _, warn := range warnings {
		h.cfg.Logger.Debug("pipeline: condition warning",
			zap.String("rule", warn.Rule), zap.String("field", warn.Field), zap.String("detail", warn.Detail))
	}

	in := dispatch.Input{Result: result}

	// Every matched rule carries a mandatory rateLimit{limit,period}
	// (ruleset/validate.go), and spec.md §4.5's dispatch table is keyed
	// on (allowed, actionType) for every action, not just rateLimit: a
	// block rule only actually blocks once its own window is exhausted.
	if result.Matched {
		decision, err := h.checkCounter(r, result, reqCtx)
		if err != nil {
			// A Counter Store failure must not become an outage: fail
			// open and let the request through unrestricted (spec.md §7).
			h.cfg.Logger.Warn("pipeline: counter store error, failing open", zap.Error(err), zap.String("rule", result.Rule.Name))
			h.cfg.Origin.ServeHTTP(w, r)
			return
		}
		in.Decision = &decision
		in.ClientIdentifier = h.resolveIdentity(result, reqCtx).value
		h.recordObservational(result, decision)
	} else {
		in.ClientIdentifier = reqCtx.ClientIP()
	}

	// Rules superseded by a later terminal match still accumulate
	// (spec.md §4.3, §8 scenario 3): a "log" rule that matched earlier
	// still gets its own counter verdict and, if denied, its own log
	// record, even though the primary Result is the terminal rule.
	for _, obs := range observed {
		if obs.Rule.Name == result.Rule.Name {
			continue
		}
		decision, err := h.checkCounter(r, obs, reqCtx)
		if err != nil {
			h.cfg.Logger.Warn("pipeline: counter store error for observed rule", zap.Error(err), zap.String("rule", obs.Rule.Name))
			continue
		}
		h.recordObservational(obs, decision)
	}

	h.recordDecision(result, in.Decision)

	if dispatch.Dispatch(w, r, in) {
		h.cfg.Origin.ServeHTTP(w, r)
	}
}

// checkCounter resolves res's client identity and consults the Counter
// Store for res's rule.
func (h *Handler) checkCounter(r *http.Request, res matcher.Result, reqCtx *fields.RequestContext) (counter.Decision, error) {
	id := h.resolveIdentity(res, reqCtx)
	start := time.Now()
	decision, err := h.cfg.CounterStore.Check(r.Context(), id.counterKey(res.Rule.Name), res.Rule.RateLimit.Limit, res.Rule.RateLimit.Period, h.cfg.Clock())
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.ObserveCounterStore(h.cfg.CounterBackend, start, err)
	}
	return decision, err
}

// recordObservational emits the log record spec.md §4.5 requires for
// "allowed=false, action=log": forward to origin, but record the denial
// context. Every other action type is either dispatched to its own
// terminal response or simply forwarded, so only log needs a side-channel
// emission here.
func (h *Handler) recordObservational(res matcher.Result, d counter.Decision) {
	if res.Action.Type != ruleset.ActionLog || d.Allowed {
		return
	}
	h.cfg.Logger.Info("pipeline: rate limit exceeded on log rule",
		zap.String("rule", res.Rule.Name),
		zap.Int64("limit", d.Limit),
		zap.Int64("period", d.Period),
	)
}

func (h *Handler) recordDecision(result matcher.Result, d *counter.Decision) {
	if h.cfg.Metrics == nil {
		return
	}
	if !result.Matched {
		h.cfg.Metrics.RecordDecision("", "", "passthrough")
		return
	}
	decision := "n/a"
	if d != nil {
		decision = "denied"
		if d.Allowed {
			decision = "allowed"
		}
	}
	h.cfg.Metrics.RecordDecision(result.Rule.Name, string(result.Action.Type), decision)
}

// identifier is the resolved client identity a rule's rate limit is keyed
// on: a fingerprint hash, a bare client IP, or the rule's shared "default"
// bucket when no fingerprint spec is configured.
type identifier struct {
	kind  string
	value string
}

func (id identifier) counterKey(rule string) string {
	return counter.Key(rule, id.kind, id.value)
}

func (h *Handler) resolveIdentity(result matcher.Result, reqCtx *fields.RequestContext) identifier {
	if result.Rule.Fingerprint != nil && len(result.Rule.Fingerprint.Parameters) > 0 {
		hash, warnings := fingerprint.Compute(result.Rule.Fingerprint.Parameters, reqCtx)
		for _, warn := range warnings {
			h.cfg.Logger.Debug("pipeline: fingerprint warning", zap.String("parameter", warn.Parameter), zap.String("detail", warn.Detail))
		}
		return identifier{kind: "fingerprint", value: hash}
	}
	if ip := reqCtx.ClientIP(); ip != "" && ip != "unknown" {
		return identifier{kind: "ip", value: ip}
	}
	return identifier{kind: "default", value: "default"}
}

// readAndRestoreBody buffers the request body (up to the shared cap used
// everywhere a request body is inspected) and replaces r.Body with a fresh
// reader so the origin handler can still read it after evaluation.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	limited := io.LimitReader(r.Body, fields.MaxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if closeErr := r.Body.Close(); closeErr != nil {
		return nil, closeErr
	}

	truncated := body
	if int64(len(truncated)) > fields.MaxBodyBytes {
		truncated = truncated[:fields.MaxBodyBytes]
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return truncated, nil
}
