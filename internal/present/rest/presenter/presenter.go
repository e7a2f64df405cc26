package presenter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/zeebo/xxh3"

	"github.com/totegamma/graphdoc"
	"github.com/totegamma/graphdoc/internal/domain"
	"github.com/totegamma/graphdoc/pagination"
	"github.com/totegamma/graphdoc/serializer"
)

// ETag is a strong validator derived from the rendered body.
func ETag(body []byte) string {
	return `"` + strconv.FormatUint(xxh3.Hash(body), 16) + `"`
}

// Document writes a rendered document, answering 304 when the client already
// holds the same body.
func Document(c echo.Context, status int, body []byte) error {
	etag := ETag(body)
	c.Response().Header().Set(echo.HeaderContentType, graphdoc.MediaType)
	c.Response().Header().Set("ETag", etag)

	if status == http.StatusOK && matches(c.Request().Header.Get("If-None-Match"), etag) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(status, graphdoc.MediaType, body)
}

func matches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return InternalError(c, err)
	}
	return c.Blob(http.StatusOK, graphdoc.MediaType, body)
}

func NoContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

func Status(c echo.Context, status int, detail string) error {
	return write(c, status, detail)
}

func BadRequest(c echo.Context, err error) error {
	slog.InfoContext(c.Request().Context(), "bad request", slog.String("error", err.Error()), slog.String("module", "rest"))
	return write(c, http.StatusBadRequest, err.Error())
}

func NotFound(c echo.Context, msg string) error {
	return write(c, http.StatusNotFound, msg)
}

func InternalError(c echo.Context, err error) error {
	slog.ErrorContext(c.Request().Context(), "internal error", slog.String("error", err.Error()), slog.String("module", "rest"))
	return write(c, http.StatusInternalServerError, "")
}

// Error maps usecase errors to JSON:API error responses.
func Error(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, serializer.ErrNotFound):
		return NotFound(c, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, pagination.ErrInvalidPage):
		return BadRequest(c, err)
	default:
		return InternalError(c, err)
	}
}

func write(c echo.Context, status int, detail string) error {
	body, err := json.Marshal(graphdoc.ErrorDocument{
		Errors: []graphdoc.ErrorObject{{
			Status: strconv.Itoa(status),
			Title:  http.StatusText(status),
			Detail: detail,
		}},
	})
	if err != nil {
		return err
	}
	return c.Blob(status, graphdoc.MediaType, body)
}
