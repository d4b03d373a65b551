package monitors

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelight/tracelight/pkg/models"
)

func TestIsStaticAsset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "stylesheet", url: "https://example.com/app.css", want: true},
		{name: "font", url: "https://example.com/fonts/inter.woff2", want: true},
		{name: "image with query", url: "https://example.com/logo.png?v=3", want: true},
		{name: "image with fragment", url: "https://example.com/logo.svg#icon", want: true},
		{name: "uppercase extension", url: "https://example.com/PHOTO.JPG", want: true},
		{name: "plain endpoint", url: "https://example.com/users", want: false},
		{name: "empty", url: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsStaticAsset(tt.url))
		})
	}
}

func TestIsStaticAsset_APIPathNeverStatic(t *testing.T) {
	t.Parallel()

	// An API-like segment wins over the extension.
	assert.False(t, IsStaticAsset("https://example.com/api/image.png"))
	assert.False(t, IsStaticAsset("https://example.com/v1/api/export.css?x=1"))
}

func TestShouldBlockURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "internal", url: "chrome://settings", want: true},
		{name: "blocked host", url: "https://googletagmanager.com/gtm.js", want: true},
		{name: "blocked subdomain", url: "https://www.google-analytics.com/collect", want: true},
		{name: "suffix but not subdomain", url: "https://notgoogletagmanager.com/x", want: false},
		{name: "normal site", url: "https://example.com/index", want: false},
		{name: "unparseable", url: "://bad", want: false},
		{name: "empty", url: "", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ShouldBlockURL(tt.url))
		})
	}
}

func TestSetCookieValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]any
		want    []string
	}{
		{
			name:    "single value",
			headers: map[string]any{"Set-Cookie": "sid=abc; Path=/"},
			want:    []string{"sid=abc; Path=/"},
		},
		{
			name:    "newline delimited",
			headers: map[string]any{"set-cookie": "sid=abc\ntheme=dark"},
			want:    []string{"sid=abc", "theme=dark"},
		},
		{
			name:    "string list",
			headers: map[string]any{"Set-Cookie": []string{"a=1", "b=2"}},
			want:    []string{"a=1", "b=2"},
		},
		{
			name:    "any list",
			headers: map[string]any{"Set-Cookie": []any{"a=1", 7, "b=2"}},
			want:    []string{"a=1", "b=2"},
		},
		{
			name:    "no cookie header",
			headers: map[string]any{"Content-Type": "text/html"},
			want:    nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, SetCookieValues(tt.headers))
		})
	}
}

func TestParseJSONIfApplicable(t *testing.T) {
	t.Parallel()

	t.Run("json object", func(t *testing.T) {
		t.Parallel()

		parsed := ParseJSONIfApplicable(`{"a":1}`, "application/json; charset=utf-8")
		assert.Equal(t, map[string]any{"a": float64(1)}, parsed)
	})

	t.Run("invalid json returns original", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "{broken", ParseJSONIfApplicable("{broken", "application/json"))
	})

	t.Run("non-json content type returns as-is", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, `{"a":1}`, ParseJSONIfApplicable(`{"a":1}`, "text/plain"))
	})

	t.Run("empty returns nil", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, ParseJSONIfApplicable("", "application/json"))
	})
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	assert.True(t, IsHTML("<p>x</p>", "text/html; charset=utf-8"))
	assert.True(t, IsHTML("  <!DOCTYPE html><html>", ""))
	assert.True(t, IsHTML("<HTML lang=\"en\">", ""))
	assert.False(t, IsHTML(`{"a":1}`, "application/json"))
	assert.False(t, IsHTML("", "text/html"))
}

func TestCleanResponseBody(t *testing.T) {
	t.Parallel()

	t.Run("json reserialized", func(t *testing.T) {
		t.Parallel()

		got := CleanResponseBody(`{ "a" : 1 }`, "application/json")
		assert.JSONEq(t, `{"a":1}`, got)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("x", ResponseBodyMaxChars+100)
		got := CleanResponseBody(long, "text/plain")
		assert.Len(t, got, ResponseBodyMaxChars)
	})

	t.Run("nil is empty", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, CleanResponseBody(nil, ""))
	})

	t.Run("structured value serialized", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, `{"a":1}`, CleanResponseBody(map[string]int{"a": 1}, ""))
	})

	t.Run("html reduced to visible text", func(t *testing.T) {
		t.Parallel()

		page := `<html><head><style>body { color: red; }</style></head>` +
			`<body><p>Hello</p><script>console.log("hidden");</script><p>World</p></body></html>`

		got := CleanResponseBody(page, "text/html; charset=utf-8")
		assert.Equal(t, "Hello\nWorld", got)
	})

	t.Run("sniffed html without content type", func(t *testing.T) {
		t.Parallel()

		page := `<!DOCTYPE html><html><body><p>Landing</p></body></html>`
		assert.Equal(t, "Landing", CleanResponseBody(page, ""))
	})

	t.Run("truncation never splits a rune", func(t *testing.T) {
		t.Parallel()

		// Three-byte runes: the byte budget lands mid-rune.
		long := strings.Repeat("€", ResponseBodyMaxChars)
		got := CleanResponseBody(long, "text/plain")

		assert.LessOrEqual(t, len(got), ResponseBodyMaxChars)
		assert.True(t, utf8.ValidString(got))
	})
}

func TestExtractHTMLText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "basic paragraphs",
			html: "<html><body><p>First</p><p>Second</p></body></html>",
			want: "First\nSecond",
		},
		{
			name: "noscript dropped",
			html: "<html><body><p>Visible</p><noscript>Enable JS</noscript></body></html>",
			want: "Visible",
		},
		{
			name: "nested markup flattened",
			html: `<div>Outer <span>inner</span></div>`,
			want: "Outer\ninner",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractHTMLText(tt.html))
		})
	}
}

func TestNetworkMonitor_TransactionLifecycle(t *testing.T) {
	rec := &eventRecorder{}
	m := NewNetworkMonitor(rec.emit)

	m.OnRequestWillBeSent("req-1", "https://example.com/api/users", "POST", "XHR",
		map[string]string{"Content-Type": "application/json"}, `{"name":"ada"}`)
	require.Equal(t, 1, m.InflightCount())

	m.OnResponseReceived("req-1", 201, "Created",
		map[string]string{"Content-Type": "application/json"}, "application/json")
	m.OnResponseExtraInfo("req-1", map[string]any{"set-cookie": "sid=abc\ncsrf=tok"})
	m.OnResponseBody("req-1", `{"id": 7}`)
	m.OnLoadingFinished("req-1")

	require.Len(t, rec.events, 1)
	require.Equal(t, 0, m.InflightCount())

	tx, ok := rec.events[0].detail.(models.NetworkTransaction)
	require.True(t, ok)

	assert.Equal(t, "req-1", tx.RequestID)
	assert.Equal(t, "https://example.com/api/users", tx.URL)
	assert.Equal(t, "POST", tx.Method)
	assert.Equal(t, 201, tx.Status)
	assert.Equal(t, map[string]any{"name": "ada"}, tx.PostData)
	assert.JSONEq(t, `{"id":7}`, tx.ResponseBody)
	assert.Equal(t, []string{"sid=abc", "csrf=tok"}, tx.SetCookies)
	assert.False(t, tx.Failed)

	// Re-sending the finish for a completed transaction is a no-op.
	m.OnLoadingFinished("req-1")
	assert.Len(t, rec.events, 1)
}

func TestNetworkMonitor_LoadingFailed(t *testing.T) {
	rec := &eventRecorder{}
	m := NewNetworkMonitor(rec.emit)

	m.OnRequestWillBeSent("req-2", "https://example.com/api/data", "GET", "Fetch", nil, "")
	m.OnLoadingFailed("req-2", "net::ERR_CONNECTION_RESET")

	require.Len(t, rec.events, 1)

	tx, ok := rec.events[0].detail.(models.NetworkTransaction)
	require.True(t, ok)

	assert.True(t, tx.Failed)
	assert.Equal(t, "net::ERR_CONNECTION_RESET", tx.ErrorText)
	assert.Equal(t, 0, m.InflightCount())
}

func TestNetworkMonitor_BlockedRequestsNotTracked(t *testing.T) {
	rec := &eventRecorder{}
	m := NewNetworkMonitor(rec.emit)

	m.OnRequestWillBeSent("req-3", "https://www.googletagmanager.com/gtm.js", "GET", "Script", nil, "")
	m.OnRequestWillBeSent("req-4", "https://example.com/site.css", "GET", "Stylesheet", nil, "")

	assert.Equal(t, 0, m.InflightCount())

	m.OnLoadingFinished("req-3")
	m.OnLoadingFinished("req-4")
	assert.Empty(t, rec.events)
}

func TestNetworkMonitor_ExtraInfoOnlyAppliedOnce(t *testing.T) {
	rec := &eventRecorder{}
	m := NewNetworkMonitor(rec.emit)

	m.OnRequestWillBeSent("req-5", "https://example.com/login", "POST", "Document", nil, "")
	m.OnResponseExtraInfo("req-5", map[string]any{"Set-Cookie": "first=1"})
	m.OnResponseExtraInfo("req-5", map[string]any{"Set-Cookie": "second=2"})
	m.OnLoadingFinished("req-5")

	require.Len(t, rec.events, 1)

	tx := rec.events[0].detail.(models.NetworkTransaction)
	assert.Equal(t, []string{"first=1"}, tx.SetCookies)
}

func TestNetworkMonitor_Summarize(t *testing.T) {
	t.Parallel()

	m := NewNetworkMonitor(func(models.Category, any) {})

	longURL := "https://example.com/" + strings.Repeat("p/", 100)
	summary := m.Summarize(models.NetworkTransaction{
		Method: "GET",
		URL:    longURL,
		Status: 200,
	})

	assert.Equal(t, "network", summary["type"])
	assert.Equal(t, "GET", summary["method"])
	assert.Len(t, summary["url"], URLMaxChars)
	assert.Equal(t, 200, summary["status"])
}
