// Package capture wires the four monitors of one browser capture session
// to the protocol message stream and to the broadcaster. A Session is the
// single logical owner of monitor state: all dispatch happens from the
// protocol read loop, so none of it needs locking.
package capture

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/tracelight/tracelight/pkg/broadcaster"
	"github.com/tracelight/tracelight/pkg/logger"
	"github.com/tracelight/tracelight/pkg/models"
	"github.com/tracelight/tracelight/pkg/monitors"
)

// CommandSender issues protocol commands to the browser and returns the
// command id its reply will carry.
type CommandSender interface {
	Send(method string, params any) (int64, error)
}

type pendingKind int

const (
	pendingCookiePoll pendingKind = iota
	pendingResponseBody
	pendingWindowProps
)

type pendingCommand struct {
	kind        pendingKind
	requestID   string
	triggeredBy string
}

// Session owns the monitors of one capture session and routes protocol
// traffic to them. Not safe for concurrent use: drive it from a single
// protocol read loop.
type Session struct {
	log    zerolog.Logger
	sender CommandSender

	storage     *monitors.StorageMonitor
	network     *monitors.NetworkMonitor
	interaction *monitors.InteractionMonitor
	windowProps *monitors.WindowPropertyMonitor

	pending       map[int64]pendingCommand
	cookiesPrimed bool
}

// NewSession builds a session whose monitors emit straight into the
// broadcaster.
func NewSession(hub *broadcaster.Broadcaster, sender CommandSender) *Session {
	emit := hub.HandleEvent

	return &Session{
		log:         logger.WithComponent("capture"),
		sender:      sender,
		storage:     monitors.NewStorageMonitor(emit),
		network:     monitors.NewNetworkMonitor(emit),
		interaction: monitors.NewInteractionMonitor(emit),
		windowProps: monitors.NewWindowPropertyMonitor(emit),
		pending:     make(map[int64]pendingCommand),
	}
}

// NewRegistry returns a summarizer registry covering the four monitor
// categories, for handing to the broadcaster at construction.
func NewRegistry() *monitors.Registry {
	return monitors.NewRegistry(
		&monitors.NetworkMonitor{},
		&monitors.StorageMonitor{},
		&monitors.InteractionMonitor{},
		&monitors.WindowPropertyMonitor{},
	)
}

// Setup enables the protocol domains the monitors depend on and installs
// the in-page interaction hook. Individual failures are logged and skipped:
// a browser without one domain still yields the others.
func (s *Session) Setup() {
	commands := []struct {
		method string
		params any
	}{
		{"Network.enable", nil},
		{"Page.enable", nil},
		{"Runtime.enable", nil},
		{"DOMStorage.enable", nil},
		{"Runtime.addBinding", map[string]any{"name": monitors.BindingName}},
		{"Page.addScriptToEvaluateOnNewDocument", map[string]any{"source": interactionHookScript()}},
	}

	for _, cmd := range commands {
		if _, err := s.sender.Send(cmd.method, cmd.params); err != nil {
			s.log.Warn().Err(err).Str("method", cmd.method).Msg("setup command failed")
		}
	}

	// Prime the cookie baseline straight away so the first real change
	// produces a diff instead of a flood of "added" entries.
	s.requestCookiePoll("session_start")
}

// DispatchMessage routes one protocol event to the owning monitor. Returns
// true when a monitor consumed the message.
func (s *Session) DispatchMessage(method string, params json.RawMessage) bool {
	switch method {
	case "Network.requestWillBeSent":
		return s.onRequestWillBeSent(params)
	case "Network.responseReceived":
		return s.onResponseReceived(params)
	case "Network.responseReceivedExtraInfo":
		return s.onResponseExtraInfo(params)
	case "Network.loadingFinished":
		return s.onLoadingFinished(params)
	case "Network.loadingFailed":
		return s.onLoadingFailed(params)
	case "DOMStorage.domStorageItemAdded":
		return s.onStorageItemAdded(params)
	case "DOMStorage.domStorageItemUpdated":
		return s.onStorageItemUpdated(params)
	case "DOMStorage.domStorageItemRemoved":
		return s.onStorageItemRemoved(params)
	case "DOMStorage.domStorageItemsCleared":
		return s.onStorageCleared(params)
	case "Runtime.bindingCalled":
		return s.onBindingCalled(params)
	case "Page.frameNavigated", "Page.loadEventFired":
		// Navigation and load are when cookies most often change.
		if s.storage.PollDue(time.Now()) {
			s.requestCookiePoll(method)
		}

		return false
	default:
		return false
	}
}

// DispatchCommandReply routes a protocol command reply to whichever monitor
// is waiting on it. Returns true when the reply matched a pending command.
func (s *Session) DispatchCommandReply(id int64, result json.RawMessage, cmdErr string) bool {
	cmd, ok := s.pending[id]
	if !ok {
		return false
	}

	delete(s.pending, id)

	switch cmd.kind {
	case pendingCookiePoll:
		s.onCookiePollReply(cmd, result, cmdErr)
	case pendingResponseBody:
		s.onResponseBodyReply(cmd, result, cmdErr)
	case pendingWindowProps:
		s.onWindowPropsReply(result, cmdErr)
	}

	return true
}

// PollWindowProperties evaluates a window snapshot in the page; the diff is
// emitted when the reply arrives.
func (s *Session) PollWindowProperties() {
	id, err := s.sender.Send("Runtime.evaluate", map[string]any{
		"expression":    windowSnapshotScript(),
		"returnByValue": true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("window property poll failed")
		return
	}

	s.pending[id] = pendingCommand{kind: pendingWindowProps}
}

// Summaries merges the per-monitor diagnostic state.
func (s *Session) Summaries() map[string]any {
	merged := map[string]any{
		"requests_inflight": s.network.InflightCount(),
		"window_keys":       s.windowProps.TrackedKeys(),
	}

	for k, v := range s.storage.StateSummary() {
		merged[k] = v
	}

	for k, v := range s.interaction.StateSummary() {
		merged[k] = v
	}

	return merged
}

// --- network events ---

type requestWillBeSentParams struct {
	RequestID string `json:"requestId"`
	Type      string `json:"type"`
	Request   struct {
		URL      string            `json:"url"`
		Method   string            `json:"method"`
		Headers  map[string]string `json:"headers"`
		PostData string            `json:"postData"`
	} `json:"request"`
}

func (s *Session) onRequestWillBeSent(params json.RawMessage) bool {
	var p requestWillBeSentParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Debug().Err(err).Msg("malformed requestWillBeSent")
		return false
	}

	s.network.OnRequestWillBeSent(p.RequestID, p.Request.URL, p.Request.Method,
		p.Type, p.Request.Headers, p.Request.PostData)

	return true
}

type responseReceivedParams struct {
	RequestID string `json:"requestId"`
	Response  struct {
		Status     int               `json:"status"`
		StatusText string            `json:"statusText"`
		Headers    map[string]string `json:"headers"`
		MimeType   string            `json:"mimeType"`
	} `json:"response"`
}

func (s *Session) onResponseReceived(params json.RawMessage) bool {
	var p responseReceivedParams
	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Debug().Err(err).Msg("malformed responseReceived")
		return false
	}

	s.network.OnResponseReceived(p.RequestID, p.Response.Status,
		p.Response.StatusText, p.Response.Headers, p.Response.MimeType)

	// Cookies also move through Set-Cookie headers; treat each response as
	// a possible cookie change.
	return false
}

func (s *Session) onResponseExtraInfo(params json.RawMessage) bool {
	var p struct {
		RequestID string         `json:"requestId"`
		Headers   map[string]any `json:"headers"`
	}

	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Debug().Err(err).Msg("malformed responseReceivedExtraInfo")
		return false
	}

	s.network.OnResponseExtraInfo(p.RequestID, p.Headers)

	return false
}

// onLoadingFinished fetches the response body before letting the monitor
// finish the transaction; the emit happens in the body reply handler. When
// the body command cannot even be sent the transaction finishes without one.
func (s *Session) onLoadingFinished(params json.RawMessage) bool {
	var p struct {
		RequestID string `json:"requestId"`
	}

	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Debug().Err(err).Msg("malformed loadingFinished")
		return false
	}

	id, err := s.sender.Send("Network.getResponseBody", map[string]any{"requestId": p.RequestID})
	if err != nil {
		s.log.Debug().Err(err).Str("request_id", p.RequestID).Msg("body fetch failed")
		s.network.OnLoadingFinished(p.RequestID)

		return true
	}

	s.pending[id] = pendingCommand{kind: pendingResponseBody, requestID: p.RequestID}

	return true
}

func (s *Session) onLoadingFailed(params json.RawMessage) bool {
	var p struct {
		RequestID string `json:"requestId"`
		ErrorText string `json:"errorText"`
	}

	if err := json.Unmarshal(params, &p); err != nil {
		s.log.Debug().Err(err).Msg("malformed loadingFailed")
		return false
	}

	s.network.OnLoadingFailed(p.RequestID, p.ErrorText)

	return true
}

func (s *Session) onResponseBodyReply(cmd pendingCommand, result json.RawMessage, cmdErr string) {
	if cmdErr != "" {
		// Bodies are unavailable for some resource types; finish anyway.
		s.network.OnLoadingFinished(cmd.requestID)
		return
	}

	var p struct {
		Body          string `json:"body"`
		Base64Encoded bool   `json:"base64Encoded"`
	}

	if err := json.Unmarshal(result, &p); err != nil {
		s.log.Debug().Err(err).Msg("malformed getResponseBody reply")
		s.network.OnLoadingFinished(cmd.requestID)

		return
	}

	body := p.Body

	if p.Base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(p.Body)
		if err != nil {
			body = ""
		} else {
			body = string(decoded)
		}
	}

	s.network.OnResponseBody(cmd.requestID, body)
	s.network.OnLoadingFinished(cmd.requestID)
}

// --- storage events ---

type storageItemParams struct {
	StorageID struct {
		SecurityOrigin string `json:"securityOrigin"`
		IsLocalStorage bool   `json:"isLocalStorage"`
	} `json:"storageId"`
	Key      string `json:"key"`
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

func (s *Session) onStorageItemAdded(params json.RawMessage) bool {
	var p storageItemParams
	if err := json.Unmarshal(params, &p); err != nil {
		return false
	}

	s.storage.OnItemAdded(p.StorageID.SecurityOrigin, p.Key, p.NewValue, p.StorageID.IsLocalStorage)

	return true
}

func (s *Session) onStorageItemUpdated(params json.RawMessage) bool {
	var p storageItemParams
	if err := json.Unmarshal(params, &p); err != nil {
		return false
	}

	s.storage.OnItemUpdated(p.StorageID.SecurityOrigin, p.Key, p.OldValue, p.NewValue, p.StorageID.IsLocalStorage)

	return true
}

func (s *Session) onStorageItemRemoved(params json.RawMessage) bool {
	var p storageItemParams
	if err := json.Unmarshal(params, &p); err != nil {
		return false
	}

	s.storage.OnItemRemoved(p.StorageID.SecurityOrigin, p.Key, p.StorageID.IsLocalStorage)

	return true
}

func (s *Session) onStorageCleared(params json.RawMessage) bool {
	var p storageItemParams
	if err := json.Unmarshal(params, &p); err != nil {
		return false
	}

	s.storage.OnCleared(p.StorageID.SecurityOrigin, p.StorageID.IsLocalStorage)

	return true
}

func (s *Session) requestCookiePoll(triggeredBy string) {
	id, err := s.sender.Send("Network.getAllCookies", nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("cookie poll failed")
		return
	}

	s.pending[id] = pendingCommand{kind: pendingCookiePoll, triggeredBy: triggeredBy}
}

func (s *Session) onCookiePollReply(cmd pendingCommand, result json.RawMessage, cmdErr string) {
	if cmdErr != "" {
		s.log.Warn().Str("error", cmdErr).Msg("cookie poll rejected")
		return
	}

	var p struct {
		Cookies []models.Cookie `json:"cookies"`
	}

	if err := json.Unmarshal(result, &p); err != nil {
		s.log.Debug().Err(err).Msg("malformed getAllCookies reply")
		return
	}

	initial := !s.cookiesPrimed
	s.cookiesPrimed = true
	s.storage.OnCookiePoll(p.Cookies, initial, cmd.triggeredBy)
}

// --- interaction events ---

func (s *Session) onBindingCalled(params json.RawMessage) bool {
	var p struct {
		Name    string `json:"name"`
		Payload string `json:"payload"`
	}

	if err := json.Unmarshal(params, &p); err != nil {
		return false
	}

	return s.interaction.OnBindingCalled(p.Name, []byte(p.Payload))
}

// --- window property polling ---

type windowSnapshot struct {
	URL   string         `json:"url"`
	Props map[string]any `json:"props"`
}

func (s *Session) onWindowPropsReply(result json.RawMessage, cmdErr string) {
	if cmdErr != "" {
		s.log.Warn().Str("error", cmdErr).Msg("window snapshot rejected")
		return
	}

	var p struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
	}

	if err := json.Unmarshal(result, &p); err != nil {
		s.log.Debug().Err(err).Msg("malformed evaluate reply")
		return
	}

	var snap windowSnapshot
	if err := json.Unmarshal(p.Result.Value, &snap); err != nil {
		s.log.Debug().Err(err).Msg("malformed window snapshot")
		return
	}

	s.windowProps.OnSnapshot(snap.URL, snap.Props)
}
