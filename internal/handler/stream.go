package handler

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fall-detector-go/internal/service"
)

const (
	statusPollInterval = 500 * time.Millisecond
	writeWait          = 10 * time.Second
	defaultPongWait    = 60 * time.Second
)

// StreamMessage сообщение WebSocket потока сессии
type StreamMessage struct {
	Type      string      `json:"type"` // STATUS, ADVISORY
	SessionID string      `json:"session_id"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Stream передает прогресс и рекомендации сессии по WebSocket до ее завершения
func (h *SessionHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	info, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Сессия не найдена")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.logger.Infof("WebSocket клиент подключен к сессии %s", id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan StreamMessage, 16)
	go readPump(conn, cancel, h.pongWait)
	go h.watchAdvisories(ctx, id, send)

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	// Клиент, который только слушает, держит соединение ответами на ping
	ping := time.NewTicker(h.pongWait * 9 / 10)
	defer ping.Stop()

	write := func(msg StreamMessage) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg) == nil
	}

	last := *info
	if !write(statusMessage(last)) {
		return
	}

	for last.Status == service.StatusProcessing {
		select {
		case <-ctx.Done():
			return

		case msg := <-send:
			if !write(msg) {
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ticker.C:
			cur, err := h.sessions.Get(ctx, id)
			if err != nil {
				return
			}
			if cur.Status != last.Status || cur.Progress != last.Progress || cur.Message != last.Message {
				last = *cur
				if !write(statusMessage(last)) {
					return
				}
			}
		}
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(last.Status)))
	h.logger.Infof("WebSocket поток сессии %s завершен", id)
}

func statusMessage(info service.SessionInfo) StreamMessage {
	// Результат целиком не шлем, он доступен через /sessions/:id
	info.Result = nil
	return StreamMessage{
		Type:      "STATUS",
		SessionID: info.ID,
		Timestamp: time.Now().Unix(),
		Payload:   info,
	}
}

// watchAdvisories пересылает каждую новую рекомендацию сессии
func (h *SessionHandler) watchAdvisories(ctx context.Context, id string, send chan<- StreamMessage) {
	var after uint64
	for {
		adv, err := h.sessions.Advisory(ctx, id, after)
		if err != nil {
			return
		}
		after = adv.Sequence

		select {
		case send <- StreamMessage{Type: "ADVISORY", SessionID: id, Timestamp: time.Now().Unix(), Payload: adv}:
		case <-ctx.Done():
			return
		}
	}
}

// readPump читает до закрытия соединения клиентом; каждый pong продлевает срок
func readPump(conn *websocket.Conn, cancel context.CancelFunc, pongWait time.Duration) {
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeZip упаковывает кадры каталога в zip
func writeZip(w io.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := addZipFile(zw, filepath.Join(dir, e.Name()), e.Name()); err != nil {
			zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addZipFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}
