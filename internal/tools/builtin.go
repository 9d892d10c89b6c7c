package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codefionn/taskpilot/internal/ident"
)

const webFetchMaxBodyBytes = 1_000_000 // cap to avoid overwhelming the planner

// RegisterBuiltins installs the builtin tool set. All builtins start
// enabled.
func RegisterBuiltins(r *Registry, httpClient *http.Client) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	r.Register(Definition{
		ID:          ident.New("tool"),
		Name:        "echo",
		Description: "Return the provided text unchanged. Useful for recording notes or intermediate results in a plan.",
		Parameters: map[string]Parameter{
			"text": {Type: "string", Description: "Text to echo back"},
		},
		Required: []string{"text"},
		Enabled:  true,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return GetStringParam(args, "text", ""), nil
		},
	}, SourceBuiltin)

	r.Register(Definition{
		ID:          ident.New("tool"),
		Name:        "current_time",
		Description: "Return the current date and time in RFC 3339 format.",
		Enabled:     true,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return time.Now().Format(time.RFC3339), nil
		},
	}, SourceBuiltin)

	r.Register(Definition{
		ID:          ident.New("tool"),
		Name:        "web_fetch",
		Description: "Fetch content from a URL using an HTTP GET request. HTML responses are converted to markdown.",
		Parameters: map[string]Parameter{
			"url": {Type: "string", Description: "URL to fetch (http or https)"},
		},
		Required: []string{"url"},
		Enabled:  true,
		Handler:  newWebFetchHandler(httpClient),
	}, SourceBuiltin)
}

func newWebFetchHandler(client *http.Client) Handler {
	return func(ctx context.Context, args map[string]interface{}) (string, error) {
		rawURL := strings.TrimSpace(GetStringParam(args, "url", ""))
		if rawURL == "" {
			return "", fmt.Errorf("web_fetch requires a url argument")
		}

		parsed, err := url.Parse(rawURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return "", fmt.Errorf("web_fetch requires an http or https URL, got %q", rawURL)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", fmt.Errorf("web_fetch request failed: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("web_fetch request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("web_fetch failed: status %d for %s", resp.StatusCode, rawURL)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, webFetchMaxBodyBytes))
		if err != nil {
			return "", fmt.Errorf("web_fetch read failed: %w", err)
		}

		text, _ := ConvertIfHTML(string(body))
		return text, nil
	}
}
