package server

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"

	"github.com/desertthunder/mixgen/internal/auth"
)

const (
	TokenPath = "/token" // receives the fragment posted by the relay page
	DonePath  = "/done"  // token-free result page
)

const maxFragmentBytes = 8 << 10

// CallbackResult carries the redirect fragment from the identity provider.
type CallbackResult struct {
	Fragment string
	err      error
}

func (c *CallbackResult) Error() error {
	return c.err
}

// CallbackHandler handles the implicit grant redirect.
//
// The token arrives in the URL fragment, which browsers never send to a server. The callback route serves a page
// that strips the fragment from the address with history.replaceState and posts it to [TokenPath]. The token route
// hands the fragment over once and answers with a 303 to [DonePath], so neither the address bar nor the history
// ever holds the token. Replays are rejected.
type CallbackHandler struct {
	callbackPath string
	resultChan   chan CallbackResult
	once         sync.Once
	delivered    bool
	mu           sync.Mutex
}

// NewCallbackHandler creates a handler for the given redirect path. An empty path means "/callback".
func NewCallbackHandler(callbackPath string) *CallbackHandler {
	if callbackPath == "" {
		callbackPath = "/callback"
	}
	return &CallbackHandler{
		callbackPath: callbackPath,
		resultChan:   make(chan CallbackResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{
		http.MethodGet + " " + h.callbackPath,
		http.MethodPost + " " + TokenPath,
		http.MethodGet + " " + DonePath,
	}
}

// ServeHTTP dispatches between the relay page, the token route and the result page.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case h.callbackPath:
		h.serveRelay(w)
	case TokenPath:
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.serveToken(w, r)
	case DonePath:
		h.serveDone(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *CallbackHandler) serveRelay(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)
	relayPage.Execute(w, TokenPath)
}

func (h *CallbackHandler) serveToken(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.delivered {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.delivered = true
	h.mu.Unlock()

	r.Body = http.MaxBytesReader(w, r.Body, maxFragmentBytes)
	if err := r.ParseForm(); err != nil {
		h.Send(CallbackResult{err: fmt.Errorf("malformed token relay: %w", err)})
		http.Redirect(w, r, donePath("failed", ""), http.StatusSeeOther)
		return
	}
	fragment := r.PostForm.Get("fragment")
	h.Send(CallbackResult{Fragment: fragment})

	if _, ok := auth.ParseFragment(fragment); !ok {
		reason := auth.DeniedReason(fragment)
		if reason == "" {
			reason = "no access token was returned"
		}
		http.Redirect(w, r, donePath("denied", reason), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, donePath("granted", ""), http.StatusSeeOther)
}

func donePath(status, reason string) string {
	q := url.Values{"status": {status}}
	if reason != "" {
		q.Set("reason", reason)
	}
	return DonePath + "?" + q.Encode()
}

func (h *CallbackHandler) serveDone(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	q := r.URL.Query()
	switch q.Get("status") {
	case "granted":
		w.WriteHeader(http.StatusOK)
		resultPage.Execute(w, resultData{
			Title:   "Authorization Successful",
			Heading: "✓ Authorization Successful",
			Message: "You can close this window and return to the terminal.",
			Class:   "granted",
		})
	case "denied":
		w.WriteHeader(http.StatusBadRequest)
		resultPage.Execute(w, resultData{
			Title:   "Authorization Failed",
			Heading: "✗ Authorization Failed",
			Message: fmt.Sprintf("Spotify did not grant access (%s). Return to the terminal to try again.", q.Get("reason")),
			Class:   "failed",
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
		resultPage.Execute(w, resultData{
			Title:   "Authorization Failed",
			Heading: "✗ Authorization Failed",
			Message: "The redirect could not be read. Return to the terminal to try again.",
			Class:   "failed",
		})
	}
}

// Send sends the result through the channel (only once).
func (h *CallbackHandler) Send(result CallbackResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving the redirect fragment.
//
// Channel will receive exactly one result and then be closed.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.resultChan
}

type resultData struct {
	Title   string
	Heading string
	Message string
	Class   string
}

var relayPage = template.Must(template.New("relay").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Completing sign in…</title>
</head>
<body>
    <noscript>JavaScript is required to finish signing in.</noscript>
    <form id="relay" method="post" action="{{.}}">
        <input type="hidden" name="fragment">
    </form>
    <script>
        var hash = window.location.hash.substring(1);
        history.replaceState(null, "", window.location.pathname);
        var form = document.getElementById("relay");
        form.elements.fragment.value = hash;
        form.submit();
    </script>
</body>
</html>
`))

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin: 0 0 1rem 0; }
        h1.granted { color: #1DB954; }
        h1.failed { color: #E22134; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1 class="{{.Class}}">{{.Heading}}</h1>
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))
