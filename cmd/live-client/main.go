// WebSocket client for observing a live capture session.
package main

import (
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tracelight/tracelight/pkg/models"
)

// liveMessage is the union of the message shapes the hub sends.
type liveMessage struct {
	Type       string               `json:"type"`
	CapturesID string               `json:"captures_id,omitempty"`
	Stats      models.Stats         `json:"stats,omitempty"`
	Events     []models.UpdateEvent `json:"events,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func main() {
	var (
		host       = flag.String("host", "localhost:8080", "Capture hub host:port")
		categories = flag.String("categories", "", "Comma-separated category filter (empty = all)")
		secure     = flag.Bool("secure", false, "Use WSS instead of WS")
	)

	flag.Parse()

	scheme := "ws"
	if *secure {
		scheme = "wss"
	}

	query := url.Values{}
	if *categories != "" {
		query.Set("categories", *categories)
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     *host,
		Path:     "/live",
		RawQuery: query.Encode(),
	}

	log.Printf("Connecting to %s", u.String())

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.Printf("HTTP response status: %s", resp.Status)
		}

		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	messages := make(chan liveMessage, 100)
	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			var msg liveMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}

				return
			}

			messages <- msg
		}
	}()

	var updateCount int

	startTime := time.Now()

	for {
		select {
		case msg := <-messages:
			switch msg.Type {
			case models.MessageSnapshot:
				log.Printf("Session %s: %d events so far", msg.CapturesID, msg.Stats.TotalEvents)
			case models.MessageUpdate:
				updateCount++

				for _, ev := range msg.Events {
					log.Printf("[%s] %v", ev.Category, ev.Summary)
				}
			case models.MessageSessionEnded:
				if msg.Error != "" {
					log.Printf("Session ended: %s (%s)", msg.Reason, msg.Error)
				} else {
					log.Printf("Session ended: %s", msg.Reason)
				}
			default:
				log.Printf("Unknown message type: %s", msg.Type)
			}
		case <-done:
			log.Printf("Connection closed after %s (%d updates)", time.Since(startTime).Round(time.Second), updateCount)
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection")

			err := conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Printf("Failed to send close message: %v", err)
				return
			}

			select {
			case <-done:
			case <-time.After(time.Second):
			}

			return
		}
	}
}
