package pipeline

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgelimit/gateway/fields"
	"github.com/edgelimit/gateway/matcher"
)

//go:embed templates/*.tmpl
var infoTemplateFS embed.FS

var infoTemplate = template.Must(template.ParseFS(infoTemplateFS, "templates/info.html.tmpl"))

// InfoResponse is served at the RATE_LIMIT_INFO_PATH introspection
// endpoint (spec.md §6): the caller's current standing against whichever
// rule would match it, without enforcing anything. Operators use it to
// debug a ruleset against a real request shape.
type InfoResponse struct {
	Limit          int64  `json:"limit"`
	Remaining      int64  `json:"remaining"`
	Reset          int64  `json:"reset"`
	ResetFormatted string `json:"resetFormatted"`
	Period         int64  `json:"period"`
}

// InfoHandler evaluates the active ruleset against the request the same
// way the main pipeline would, peeks the matched rule's Counter Store
// window (without recording a request against it), and reports the
// result as JSON or, when the client asked for text/html, a small HTML
// page — never dispatching or proxying to origin.
func (h *Handler) InfoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := readAndRestoreBody(r)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		var resp InfoResponse

		snapshot := h.cfg.ConfigCache.Get()
		if snapshot != nil && snapshot.Ruleset != nil {
			reqCtx := fields.NewRequestContext(r, body, h.cfg.CFExtractor(r))
			result, _, warnings := matcher.Match(snapshot.Ruleset.Rules, reqCtx)
			for _, warn := range warnings {
				h.cfg.Logger.Debug("pipeline: info condition warning",
					zap.String("rule", warn.Rule), zap.String("field", warn.Field), zap.String("detail", warn.Detail))
			}

			if result.Matched {
				id := h.resolveIdentity(result, reqCtx)
				decision, err := h.cfg.CounterStore.Peek(r.Context(), id.counterKey(result.Rule.Name), result.Rule.RateLimit.Limit, result.Rule.RateLimit.Period, h.cfg.Clock())
				if err != nil {
					h.cfg.Logger.Warn("pipeline: counter store peek failed", zap.Error(err), zap.String("rule", result.Rule.Name))
				} else {
					resp = InfoResponse{
						Limit:          decision.Limit,
						Remaining:      decision.Remaining,
						Period:         decision.Period,
						Reset:          decision.ResetAt.Unix(),
						ResetFormatted: decision.ResetAt.UTC().Format(time.RFC3339),
					}
				}
			}
		}

		if wantsHTMLInfo(r) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_ = infoTemplate.Execute(w, resp)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// wantsHTMLInfo applies the same Accept-header negotiation as the
// Action Dispatcher's rate-limited response: an explicit preference for
// text/html with no stronger preference for JSON renders the HTML page.
func wantsHTMLInfo(r *http.Request) bool {
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
