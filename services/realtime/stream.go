package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub configuration
const (
	MaxClients        = 100
	WriteTimeout      = 10 * time.Second
	PongTimeout       = 60 * time.Second
	PingInterval      = 30 * time.Second
	DefaultPoll       = 5 * time.Second
	PredictEveryTicks = 12 // predictions change hourly, no need to recompute per tick
)

// Tick is a spot price update for one pair
type Tick struct {
	Pair      string  `json:"pair"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// Forecast is a model prediction update for one pair
type Forecast struct {
	Pair           string  `json:"pair"`
	PredictedClose float64 `json:"predicted_close"`
	Timestamp      string  `json:"timestamp"`
}

// Message is the envelope broadcast to clients
type Message struct {
	Type string      `json:"type"` // tick, forecast
	Data interface{} `json:"data"`
	Time string      `json:"time"`
}

// PriceFunc returns the current spot price of a pair
type PriceFunc func(pair string) (float64, error)

// PredictFunc returns the latest model prediction of a pair
type PredictFunc func(pair string) (float64, error)

// PairsFunc returns the pair symbols to stream
type PairsFunc func() []string

// client is one connected websocket subscriber
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Service streams spot prices and model forecasts over websockets
type Service struct {
	clients    map[*client]bool
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	stopChan   chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	isRunning  bool

	pairs   PairsFunc
	price   PriceFunc
	predict PredictFunc

	pollInterval time.Duration
}

// Global realtime service
var GlobalStreamService *Service

// Init initializes the realtime stream service and starts its loops
func Init(pairs PairsFunc, price PriceFunc, predict PredictFunc) error {
	GlobalStreamService = &Service{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		stopChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		pairs:        pairs,
		price:        price,
		predict:      predict,
		pollInterval: DefaultPoll,
	}

	go GlobalStreamService.runHub()
	go GlobalStreamService.runPoller()

	GlobalStreamService.mu.Lock()
	GlobalStreamService.isRunning = true
	GlobalStreamService.mu.Unlock()

	log.Println("Realtime stream service initialized")
	return nil
}

// Stop shuts the stream service down
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
}

// runHub owns the client set
func (s *Service) runHub() {
	for {
		select {
		case c := <-s.register:
			s.mu.Lock()
			if len(s.clients) >= MaxClients {
				s.mu.Unlock()
				c.conn.Close()
				continue
			}
			s.clients[c] = true
			s.mu.Unlock()

		case c := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.send)
			}
			s.mu.Unlock()

		case msg := <-s.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			s.mu.RLock()
			for c := range s.clients {
				select {
				case c.send <- payload:
				default:
					// Slow client, drop the message
				}
			}
			s.mu.RUnlock()

		case <-s.stopChan:
			s.mu.Lock()
			for c := range s.clients {
				c.conn.Close()
				close(c.send)
			}
			s.clients = make(map[*client]bool)
			s.mu.Unlock()
			return
		}
	}
}

// runPoller publishes ticks every poll interval and forecasts every
// PredictEveryTicks intervals
func (s *Service) runPoller() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	tickCount := 0
	for {
		select {
		case <-ticker.C:
			s.pollOnce(tickCount%PredictEveryTicks == 0)
			tickCount++
		case <-s.stopChan:
			return
		}
	}
}

// pollOnce fetches prices (and optionally forecasts) and broadcasts them
func (s *Service) pollOnce(withForecasts bool) {
	if !s.hasClients() {
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, pair := range s.pairs() {
		price, err := s.price(pair)
		if err != nil {
			log.Printf("Error fetching price for %s: %v", pair, err)
			continue
		}
		s.broadcast <- Message{
			Type: "tick",
			Data: Tick{Pair: pair, Price: price, Timestamp: now},
			Time: now,
		}

		if !withForecasts || s.predict == nil {
			continue
		}
		predicted, err := s.predict(pair)
		if err != nil {
			continue // no model loaded for this pair
		}
		s.broadcast <- Message{
			Type: "forecast",
			Data: Forecast{Pair: pair, PredictedClose: predicted, Timestamp: now},
			Time: now,
		}
	}
}

func (s *Service) hasClients() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients) > 0
}

// ClientCount returns the number of connected subscribers
func (s *Service) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleConnection upgrades an HTTP request to a websocket subscription
func (s *Service) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	s.register <- c

	go s.writePump(c)
	go s.readPump(c)

	return nil
}

// writePump sends broadcast messages and pings to one client
func (s *Service) writePump(c *client) {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client messages and detects disconnects
func (s *Service) readPump(c *client) {
	defer func() {
		// After Stop the hub no longer receives, don't block the disconnect
		select {
		case s.unregister <- c:
		case <-s.stopChan:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
