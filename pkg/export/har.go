package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tracelight/tracelight/pkg/logger"
)

// HAR 1.2 document types.

type HAR struct {
	Log HARLog `json:"log"`
}

type HARLog struct {
	Version string     `json:"version"`
	Creator HARCreator `json:"creator"`
	Browser HARCreator `json:"browser"`
	Pages   []HARPage  `json:"pages"`
	Entries []HAREntry `json:"entries"`
}

type HARCreator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type HARPage struct {
	StartedDateTime string         `json:"startedDateTime"`
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	PageTimings     HARPageTimings `json:"pageTimings"`
}

type HARPageTimings struct {
	OnContentLoad int `json:"onContentLoad"`
	OnLoad        int `json:"onLoad"`
}

type HAREntry struct {
	Pageref         string      `json:"pageref"`
	StartedDateTime string      `json:"startedDateTime"`
	Time            int         `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        HARResponse `json:"response"`
	Cache           struct{}    `json:"cache"`
	Timings         HARTimings  `json:"timings"`
}

type HARRequest struct {
	Method      string       `json:"method"`
	URL         string       `json:"url"`
	HTTPVersion string       `json:"httpVersion"`
	Headers     []HARPair    `json:"headers"`
	QueryString []HARPair    `json:"queryString"`
	Cookies     []HARPair    `json:"cookies"`
	PostData    *HARPostData `json:"postData,omitempty"`
	HeadersSize int          `json:"headersSize"`
	BodySize    int          `json:"bodySize"`
}

type HARResponse struct {
	Status      int        `json:"status"`
	StatusText  string     `json:"statusText"`
	HTTPVersion string     `json:"httpVersion"`
	Headers     []HARPair  `json:"headers"`
	Cookies     []HARPair  `json:"cookies"`
	Content     HARContent `json:"content"`
	RedirectURL string     `json:"redirectURL"`
	HeadersSize int        `json:"headersSize"`
	BodySize    int        `json:"bodySize"`
}

type HARContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type HARPostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type HARPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type HARTimings struct {
	Blocked int `json:"blocked"`
	DNS     int `json:"dns"`
	Connect int `json:"connect"`
	Send    int `json:"send"`
	Wait    int `json:"wait"`
	Receive int `json:"receive"`
}

const harDefaultEntryTime = 100

// GenerateHAR builds a HAR 1.2 document from a line-delimited transaction
// log and writes it to harPath. A missing source file still produces a
// valid HAR with zero entries; malformed individual records are skipped,
// never fatal.
func GenerateHAR(eventsPath, harPath, title string) (*HAR, error) {
	log := logger.WithComponent("export")

	har := &HAR{
		Log: HARLog{
			Version: "1.2",
			Creator: HARCreator{Name: "tracelight network monitor", Version: "1.0"},
			Browser: HARCreator{Name: "Chrome DevTools Protocol", Version: "1.0"},
			Pages: []HARPage{{
				StartedDateTime: time.Now().UTC().Format(time.RFC3339),
				ID:              "page_1",
				Title:           title,
				PageTimings:     HARPageTimings{OnContentLoad: -1, OnLoad: -1},
			}},
			Entries: []HAREntry{},
		},
	}

	file, err := os.Open(eventsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open events file: %w", err)
		}

		log.Warn().Str("path", eventsPath).Msg("network events file not found, writing empty HAR")
	} else {
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var record transactionRecord
			if err := json.Unmarshal(line, &record); err != nil {
				continue
			}

			// Every decodable record yields an entry; harEntry defaults
			// the missing pieces.
			har.Log.Entries = append(har.Log.Entries, harEntry(&record))
		}

		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read events file: %w", err)
		}
	}

	if err := writeJSONFile(harPath, har); err != nil {
		return nil, err
	}

	log.Info().Int("entries", len(har.Log.Entries)).Str("path", harPath).Msg("HAR file written")

	return har, nil
}

func harEntry(record *transactionRecord) HAREntry {
	started := time.Unix(record.Timestamp, 0).UTC().Format(time.RFC3339)

	method := record.Method
	if method == "" {
		method = "GET"
	}

	request := HARRequest{
		Method:      method,
		URL:         record.URL,
		HTTPVersion: "HTTP/1.1",
		Headers:     headerPairs(record.RequestHeaders),
		QueryString: parseQueryString(record.URL),
		Cookies:     parseCookieHeader(record.RequestHeaders),
		HeadersSize: -1,
	}

	if record.PostData != nil {
		text, ok := record.PostData.(string)
		if !ok {
			if data, err := json.Marshal(record.PostData); err == nil {
				text = string(data)
			}
		}

		request.BodySize = len(text)
		request.PostData = &HARPostData{
			MimeType: headerLookup(record.RequestHeaders, "content-type", "application/x-www-form-urlencoded"),
			Text:     text,
		}
	}

	body := record.ResponseBody

	response := HARResponse{
		Status:      record.Status,
		StatusText:  record.StatusText,
		HTTPVersion: "HTTP/1.1",
		Headers:     headerPairs(record.ResponseHeaders),
		Cookies:     []HARPair{},
		Content: HARContent{
			Size:     len(body),
			MimeType: record.MimeType,
			Text:     body,
		},
		HeadersSize: -1,
		BodySize:    len(body),
	}

	return HAREntry{
		Pageref:         "page_1",
		StartedDateTime: started,
		Time:            harDefaultEntryTime,
		Request:         request,
		Response:        response,
		Timings: HARTimings{
			Blocked: -1,
			DNS:     -1,
			Connect: -1,
			Send:    0,
			Wait:    harDefaultEntryTime,
			Receive: 0,
		},
	}
}

func headerPairs(headers map[string]string) []HARPair {
	pairs := make([]HARPair, 0, len(headers))
	for name, value := range headers {
		pairs = append(pairs, HARPair{Name: name, Value: value})
	}

	return pairs
}

func headerLookup(headers map[string]string, name, fallback string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}

	return fallback
}

// parseQueryString splits the URL's query part in order of appearance.
func parseQueryString(rawURL string) []HARPair {
	pairs := []HARPair{}

	_, query, found := strings.Cut(rawURL, "?")
	if !found {
		return pairs
	}

	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}

	for _, param := range strings.Split(query, "&") {
		name, value, ok := strings.Cut(param, "=")
		if !ok || name == "" {
			continue
		}

		pairs = append(pairs, HARPair{Name: name, Value: value})
	}

	return pairs
}

// parseCookieHeader splits the request Cookie header into name/value
// pairs.
func parseCookieHeader(headers map[string]string) []HARPair {
	pairs := []HARPair{}

	cookie := headerLookup(headers, "cookie", "")
	if cookie == "" {
		return pairs
	}

	for _, part := range strings.Split(cookie, ";") {
		part = strings.TrimSpace(part)

		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			continue
		}

		pairs = append(pairs, HARPair{Name: name, Value: value})
	}

	return pairs
}
