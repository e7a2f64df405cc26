package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/graphdoc"
	"github.com/totegamma/graphdoc/internal/domain"
	"github.com/totegamma/graphdoc/internal/present/rest/middleware"
	"github.com/totegamma/graphdoc/internal/present/rest/presenter"
	"github.com/totegamma/graphdoc/internal/usecase"
	"github.com/totegamma/graphdoc/schemas"
)

const maxBodySize = 1 << 20

// Realtime streams changes for the requested resource types.
type Realtime interface {
	Realtime(ctx context.Context, input <-chan []string, output chan<- domain.Change)
}

type Handler struct {
	baseURL  string
	schema   *schemas.Schema
	resource *usecase.ResourceUsecase
	signal   Realtime
}

func NewHandler(
	baseURL string,
	schema *schemas.Schema,
	resource *usecase.ResourceUsecase,
	signal Realtime,
) *Handler {
	return &Handler{
		baseURL:  baseURL,
		schema:   schema,
		resource: resource,
		signal:   signal,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/.well-known/graphdoc", h.handleWellKnown)
	e.GET("/realtime", h.handleRealtime)

	e.GET("/:type", h.handleList, middleware.MediaType)
	e.GET("/:type/:id", h.handleGet, middleware.MediaType)
	e.PUT("/:type/:id", h.handlePut, middleware.MediaType)
	e.DELETE("/:type/:id", h.handleDelete, middleware.MediaType)
}

type wellKnown struct {
	Version   string             `json:"version"`
	BaseURL   string             `json:"baseURL"`
	MediaType string             `json:"mediaType"`
	Types     []schemas.Endpoint `json:"types"`
}

func (h *Handler) handleWellKnown(c echo.Context) error {
	return presenter.OK(c, wellKnown{
		Version:   "1.0",
		BaseURL:   h.baseURL,
		MediaType: graphdoc.MediaType,
		Types:     h.schema.Endpoints(),
	})
}

func (h *Handler) handleList(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := h.resource.List(ctx, c.Param("type"), c.QueryParams())
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Document(c, http.StatusOK, body)
}

func (h *Handler) handleGet(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := h.resource.Get(ctx, c.Param("type"), c.Param("id"), c.QueryParam("meta") == "true")
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Document(c, http.StatusOK, body)
}

func (h *Handler) handlePut(c echo.Context) error {
	ctx := c.Request().Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	body, err := h.resource.Put(ctx, c.Param("type"), c.Param("id"), payload)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Document(c, http.StatusOK, body)
}

func (h *Handler) handleDelete(c echo.Context) error {
	ctx := c.Request().Context()

	err := h.resource.Delete(ctx, c.Param("type"), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.NoContent(c)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type  string   `json:"type"`
	Types []string `json:"types"`
}

// Event is pushed to realtime subscribers. Document is omitted for deletes.
type Event struct {
	Op       domain.ChangeOp `json:"op"`
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Document json.RawMessage `json:"document,omitempty"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	output := make(chan domain.Change)

	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Types:
				case <-ctx.Done():
					return
				}
				slog.DebugContext(
					ctx, "Socket subscribe",
					slog.Any("types", req.Types),
					slog.String("module", "socket"),
				)
			case "h": // heartbeat
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case change := <-output:
			event := Event{Op: change.Op, Type: change.Type, ID: change.ID}
			if change.Op == domain.ChangeOpPut {
				doc, err := h.resource.Render(ctx, change.Tag, change.ID)
				if err != nil {
					slog.WarnContext(
						ctx, "Failed to render changed resource",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
					continue
				}
				event.Document = doc
			}
			if err := ws.WriteJSON(event); err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
