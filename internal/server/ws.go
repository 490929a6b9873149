package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/berfenger/sem2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 2 * time.Second
	wsQueueSize    = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// readingsHub pushes every meter reading published on the event stream to the
// connected websocket clients. Readings are queued and written by the hub's
// own goroutine so a slow client never holds up the publisher.
type readingsHub struct {
	clients      map[*websocket.Conn]bool
	mutex        sync.Mutex
	readings     chan domain.FloatSensorUpdateEvent
	done         chan struct{}
	closeOnce    sync.Once
	eventStream  *eventstream.EventStream
	subscription *eventstream.Subscription
	logger       *zap.Logger
}

func newReadingsHub(eventStream *eventstream.EventStream, logger *zap.Logger) *readingsHub {
	h := &readingsHub{
		clients:     make(map[*websocket.Conn]bool),
		readings:    make(chan domain.FloatSensorUpdateEvent, wsQueueSize),
		done:        make(chan struct{}),
		eventStream: eventStream,
		logger:      logger,
	}
	if eventStream != nil {
		h.subscription = eventStream.Subscribe(func(evt any) {
			if e, ok := evt.(domain.FloatSensorUpdateEvent); ok && e.Command != "" {
				h.enqueue(e)
			}
		})
	}
	go h.run()
	return h
}

func (h *readingsHub) enqueue(evt domain.FloatSensorUpdateEvent) {
	select {
	case h.readings <- evt:
	default:
		h.logger.Debug("websocket queue full, dropping reading", zap.String("sensor", evt.SensorId()))
	}
}

func (h *readingsHub) run() {
	for {
		select {
		case evt := <-h.readings:
			h.broadcast(evt)
		case <-h.done:
			return
		}
	}
}

func (h *readingsHub) Handler(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return nil
	}
	h.add(conn)

	// drain the connection until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return nil
		}
	}
}

func (h *readingsHub) broadcast(evt domain.FloatSensorUpdateEvent) {
	data, err := json.Marshal(readingJSON{
		Command: evt.Command,
		Sensor:  evt.SensorId(),
		Value:   evt.Value,
		Time:    evt.Time,
	})
	if err != nil {
		h.logger.Error("could not marshal reading", zap.Error(err))
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug("dropping websocket client", zap.Error(err))
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

func (h *readingsHub) add(conn *websocket.Conn) {
	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()
}

func (h *readingsHub) remove(conn *websocket.Conn) {
	h.mutex.Lock()
	delete(h.clients, conn)
	h.mutex.Unlock()
	conn.Close()
}

func (h *readingsHub) clientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Close unsubscribes from the event stream and disconnects every client.
func (h *readingsHub) Close() {
	h.closeOnce.Do(func() {
		if h.eventStream != nil && h.subscription != nil {
			h.eventStream.Unsubscribe(h.subscription)
		}
		close(h.done)
	})
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for conn := range h.clients {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		conn.Close()
		delete(h.clients, conn)
	}
}
