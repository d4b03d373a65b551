package monitors

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/tracelight/tracelight/pkg/logger"
	"github.com/tracelight/tracelight/pkg/models"
)

// Streaming and storage limits for captured transactions.
const (
	URLMaxChars          = 150
	ResponseBodyMaxChars = 250_000
)

// staticAssetExtensions are path suffixes treated as static assets and
// skipped by capture.
var staticAssetExtensions = []string{
	".css", ".woff", ".woff2", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
}

// blockedHosts are third-party analytics and tag-manager domains excluded
// from capture. Matches the host itself and any subdomain.
var blockedHosts = []string{
	"googletagmanager.com",
	"fonts.gstatic.com",
	"fonts.googleapis.com",
	"google-analytics.com",
	"analytics.google.com",
	"doubleclick.net",
	"connect.facebook.net",
	"tr.snapchat.com",
	"sc-static.net",
	"scorecardresearch.com",
	"quantserve.com",
	"krxd.net",
	"adobedtm.com",
	"omtrdc.net",
	"demdex.net",
	"optimizely.com",
	"cdn.cookielaw.org",
	"segment.io",
	"mixpanel.com",
	"hotjar.com",
	"clarity.ms",
	"taboola.com",
	"outbrain.com",
	"posthog.com",
	"maps.googleapis.com",
}

// IsInternalURL reports whether the URL uses the browser's own privileged
// scheme. Empty input is not internal.
func IsInternalURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	return strings.HasPrefix(rawURL, "chrome://")
}

// IsStaticAsset reports whether the URL path has a known static-asset
// extension. Paths containing an API-like segment are never static,
// whatever their extension.
func IsStaticAsset(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	path := strings.ToLower(rawURL)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	if strings.Contains(path, "/api/") {
		return false
	}

	for _, ext := range staticAssetExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}

	return false
}

// ShouldBlockURL reports whether a URL is excluded from capture entirely:
// internal URLs and known analytics hosts.
func ShouldBlockURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	if IsInternalURL(rawURL) {
		return true
	}

	parsed, err := url.Parse(strings.ToLower(rawURL))
	if err != nil || parsed.Host == "" {
		return false
	}

	host := parsed.Hostname()
	for _, blocked := range blockedHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}

	return false
}

// SetCookieValues normalizes a Set-Cookie header value into a flat list of
// individual cookie-set strings. Accepts a single string, a
// newline-delimited string, or an already-split list.
func SetCookieValues(headers map[string]any) []string {
	var values []string

	for name, raw := range headers {
		if !strings.EqualFold(name, "set-cookie") {
			continue
		}

		switch v := raw.(type) {
		case string:
			for _, line := range strings.Split(v, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					values = append(values, line)
				}
			}
		case []string:
			for _, line := range v {
				if line != "" {
					values = append(values, line)
				}
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					values = append(values, s)
				}
			}
		}
	}

	return values
}

// ParseJSONIfApplicable parses data as JSON when the content type says it
// is JSON. Parse failures return the original string unchanged; non-JSON
// content types return the string as-is; empty input returns nil.
func ParseJSONIfApplicable(data, contentType string) any {
	if data == "" {
		return nil
	}

	if !strings.Contains(strings.ToLower(contentType), "application/json") {
		return data
	}

	var parsed any
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return data
	}

	return parsed
}

// IsHTML reports whether a response body is an HTML document, preferring
// the content type and falling back to a document-signature sniff when the
// content type is absent or ambiguous. Empty bodies are never HTML.
func IsHTML(body, contentType string) bool {
	if body == "" {
		return false
	}

	if contentType != "" && strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}

	snippet := strings.TrimSpace(body)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}

	snippet = strings.ToLower(snippet)

	return strings.HasPrefix(snippet, "<!doctype html") || strings.HasPrefix(snippet, "<html")
}

// ExtractHTMLText reduces an HTML document to its visible text: script,
// style and noscript subtrees are dropped and the remaining text nodes are
// trimmed and joined with newlines. An unparseable body is returned as-is.
func ExtractHTMLText(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body
	}

	var parts []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}

		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				parts = append(parts, text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return strings.Join(parts, "\n")
}

// CleanResponseBody normalizes a captured body for storage: structured
// JSON values are re-serialized to text, HTML documents are reduced to
// their visible text, and everything is truncated to ResponseBodyMaxChars.
// Empty input yields an empty string.
func CleanResponseBody(body any, contentType string) string {
	switch v := body.(type) {
	case nil:
		return ""
	case string:
		if v == "" {
			return ""
		}

		if parsed := ParseJSONIfApplicable(v, contentType); parsed != nil {
			if _, isString := parsed.(string); !isString {
				if serialized, err := json.Marshal(parsed); err == nil {
					return truncate(string(serialized), ResponseBodyMaxChars)
				}
			}
		}

		// Full page markup is noise in stored transactions; keep the
		// visible text only.
		if IsHTML(v, contentType) {
			return truncate(ExtractHTMLText(v), ResponseBodyMaxChars)
		}

		return truncate(v, ResponseBodyMaxChars)
	case []byte:
		return CleanResponseBody(string(v), contentType)
	default:
		serialized, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return truncate(string(serialized), ResponseBodyMaxChars)
	}
}

// truncate cuts s to at most maxChars bytes, backing off to the previous
// rune boundary so the result is always valid UTF-8.
func truncate(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}

	cut := maxChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}

// NetworkMonitor correlates request/response protocol messages into
// transactions keyed by request id and emits one event per completed or
// failed transaction. Single-owner state: handlers must not be invoked
// concurrently.
type NetworkMonitor struct {
	emit EmitFunc
	log  zerolog.Logger

	inflight map[string]*models.NetworkTransaction
}

// NewNetworkMonitor builds a network monitor emitting through emit.
func NewNetworkMonitor(emit EmitFunc) *NetworkMonitor {
	return &NetworkMonitor{
		emit:     emit,
		log:      logger.WithComponent("network-monitor"),
		inflight: make(map[string]*models.NetworkTransaction),
	}
}

// Category implements Summarizer.
func (*NetworkMonitor) Category() models.Category { return models.CategoryNetwork }

// Summarize implements Summarizer: the live-stream projection of a
// transaction.
func (m *NetworkMonitor) Summarize(detail any) models.Summary {
	tx, ok := detail.(models.NetworkTransaction)
	if !ok {
		if p, isPtr := detail.(*models.NetworkTransaction); isPtr {
			tx = *p
		} else {
			return models.Summary{"type": string(m.Category())}
		}
	}

	return models.Summary{
		"type":          string(m.Category()),
		"method":        tx.Method,
		"url":           truncate(tx.URL, URLMaxChars),
		"status":        tx.Status,
		"resource_type": tx.ResourceType,
		"failed":        tx.Failed,
	}
}

// OnRequestWillBeSent starts tracking a transaction. Blocked URLs and
// static assets are skipped outright.
func (m *NetworkMonitor) OnRequestWillBeSent(requestID, rawURL, method, resourceType string, headers map[string]string, postData string) {
	if ShouldBlockURL(rawURL) || IsStaticAsset(rawURL) {
		m.log.Debug().Str("url", rawURL).Msg("skipping request")
		return
	}

	contentType := headerValue(headers, "content-type")

	m.inflight[requestID] = &models.NetworkTransaction{
		RequestID:      requestID,
		URL:            rawURL,
		Method:         method,
		ResourceType:   resourceType,
		RequestHeaders: headers,
		PostData:       ParseJSONIfApplicable(postData, contentType),
		Timestamp:      time.Now().Unix(),
	}
}

// OnResponseReceived merges response metadata into the tracked
// transaction. Responses for unknown request ids are ignored.
func (m *NetworkMonitor) OnResponseReceived(requestID string, status int, statusText string, headers map[string]string, mimeType string) {
	tx, ok := m.inflight[requestID]
	if !ok {
		m.log.Debug().Str("request_id", requestID).Msg("response for unknown request")
		return
	}

	tx.Status = status
	tx.StatusText = statusText
	tx.ResponseHeaders = headers
	tx.MimeType = mimeType
}

// OnResponseExtraInfo captures Set-Cookie values from out-of-band response
// headers, once per transaction.
func (m *NetworkMonitor) OnResponseExtraInfo(requestID string, headers map[string]any) {
	tx, ok := m.inflight[requestID]
	if !ok {
		return
	}

	if values := SetCookieValues(headers); len(values) > 0 && len(tx.SetCookies) == 0 {
		tx.SetCookies = values
	}
}

// OnResponseBody stores the cleaned response body for a tracked
// transaction.
func (m *NetworkMonitor) OnResponseBody(requestID, body string) {
	tx, ok := m.inflight[requestID]
	if !ok {
		return
	}

	tx.ResponseBody = CleanResponseBody(body, tx.MimeType)
}

// OnLoadingFinished completes a transaction: the assembled record is
// emitted once and tracking state is dropped.
func (m *NetworkMonitor) OnLoadingFinished(requestID string) {
	tx, ok := m.inflight[requestID]
	if !ok {
		return
	}

	delete(m.inflight, requestID)

	if ShouldBlockURL(tx.URL) || IsStaticAsset(tx.URL) {
		return
	}

	tx.ResponseBody = CleanResponseBody(tx.ResponseBody, tx.MimeType)

	m.emit(m.Category(), *tx)
}

// OnLoadingFailed emits a failed transaction with whatever was gathered
// before the failure.
func (m *NetworkMonitor) OnLoadingFailed(requestID, errorText string) {
	tx, ok := m.inflight[requestID]
	if !ok {
		m.log.Debug().Str("request_id", requestID).Msg("failure for unknown request")
		return
	}

	delete(m.inflight, requestID)

	if ShouldBlockURL(tx.URL) || IsStaticAsset(tx.URL) {
		return
	}

	tx.Failed = true
	tx.ErrorText = errorText

	m.emit(m.Category(), *tx)
}

// InflightCount reports how many transactions are currently being
// correlated, for diagnostics.
func (m *NetworkMonitor) InflightCount() int { return len(m.inflight) }

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}

	return ""
}
