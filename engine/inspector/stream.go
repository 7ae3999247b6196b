package inspector

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-rig/engine/rig"
	"github.com/Carmen-Shannon/oxy-rig/engine/scene"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	pingPeriod   = 30 * time.Second
	writeTimeout = 40 * time.Second
	sendBuffer   = 32
)

// client is one websocket subscriber. Frames that do not fit the send buffer are dropped.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *logrus.Entry
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *client) offer(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.log.WithError(err).Debug("ws set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.WithError(err).Debug("ws write msg")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.WithError(err).Debug("ws write ping")
				return
			}
		}
	}
}

// readPump discards client messages and closes the client when the connection drops.
func (c *client) readPump() {
	defer c.close()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleStream upgrades to a websocket and sends a PoseFrame of the rig after every streamed tick.
func (i *inspector) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := i.rigID(w, r)
	if !ok {
		return
	}
	if i.scene.Get(id) == nil {
		i.writeError(w, http.StatusNotFound, errors.Errorf("rig %s not found", id))
		return
	}

	c := &client{
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		log:  i.log.WithField("rig", id),
	}

	i.mu.Lock()
	every := i.streamEvery
	i.mu.Unlock()

	// Subscribe before upgrading so no tick after the handshake is missed.
	listener := i.scene.OnTick(func(e scene.TickEvent) {
		if e.Tick%every != 0 {
			return
		}
		var frame PoseFrame
		if !i.scene.View(id, func(rg *rig.Rig) { frame = poseFrame(e.Tick, e.Delta, rg.Skeleton) }) {
			c.close()
			return
		}
		data, err := json.Marshal(frame)
		if err != nil {
			c.log.WithError(err).Warn("encoding pose frame")
			return
		}
		c.offer(data)
	})

	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.scene.RemoveTickListener(listener)
		i.log.WithError(err).Warn("ws upgrade")
		return
	}
	c.conn = conn

	i.mu.Lock()
	i.clients[c] = true
	i.mu.Unlock()

	go c.readPump()
	go func() {
		<-c.done
		i.scene.RemoveTickListener(listener)
		i.mu.Lock()
		delete(i.clients, c)
		i.mu.Unlock()
	}()
	c.log.Debug("stream client connected")
	c.writePump()
}
