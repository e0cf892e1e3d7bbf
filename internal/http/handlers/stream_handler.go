package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
	"github.com/tbourn/go-sitegen-backend/internal/feed"
	"github.com/tbourn/go-sitegen-backend/internal/http/middleware"
)

const (
	streamWriteWait = 10 * time.Second
	streamReadLimit = 512
)

type streamConfig struct {
	origins   []string
	pingEvery time.Duration
}

// StreamMessage is pushed to websocket clients on connect and after every
// change to the owner's history.
type StreamMessage struct {
	Type  string              `json:"type" example:"history"`
	Items []domain.Generation `json:"items"`
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(h.stream.origins))
	for _, o := range h.stream.origins {
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		},
	}
}

// StreamGenerations godoc
// @ID          streamGenerations
// @Summary     Live history feed (websocket)
// @Description Upgrades to a websocket. The full history is pushed on connect and again after every change;
// @Description clients never receive partial updates. Closing the socket ends the subscription.
// @Tags        Generations
//
// @Param       X-User-ID  header  string  false "Owner id"  example(user123)
//
// @Success     101  {object} handlers.StreamMessage "Switching Protocols"
// @Failure     503  {object} handlers.ErrorResponse "Feed disabled"
// @Router      /generations/stream [get]
func (h *Handlers) StreamGenerations(c *gin.Context) {
	if h.feed == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "history feed is disabled")
		return
	}
	owner := userID(c)
	lg := middleware.LoggerFrom(c)

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		lg.Warn().Err(err).Msg("stream: upgrade failed")
		return
	}
	defer conn.Close()

	// Latest snapshot wins; a slow client skips intermediate lists.
	updates := make(chan []domain.Generation, 1)
	push := func(items []domain.Generation) {
		for {
			select {
			case updates <- items:
				return
			default:
				select {
				case <-updates:
				default:
				}
			}
		}
	}

	v, err := feed.OpenViewer(c.Request.Context(), h.feed, h.hist, owner, push)
	if err != nil {
		lg.Error().Err(err).Msg("stream: could not open history viewer")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "history unavailable"),
			time.Now().Add(streamWriteWait))
		return
	}
	defer v.Close()

	pongWait := h.stream.pingEvery * 2
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(streamReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(h.stream.pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-v.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "history feed closed"),
				time.Now().Add(streamWriteWait))
			return
		case items := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(StreamMessage{Type: "history", Items: items}); err != nil {
				lg.Debug().Err(err).Msg("stream: write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}
