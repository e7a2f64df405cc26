package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/graphdoc"
	"github.com/totegamma/graphdoc/internal/present/rest/presenter"
)

var tracer = otel.Tracer("rest")

// MediaType enforces the JSON:API content negotiation rules: request bodies
// must not carry media type parameters, and an Accept header naming the media
// type only with parameters cannot be served.
func MediaType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Rest.Middleware.MediaType")
		defer span.End()
		c.SetRequest(c.Request().WithContext(ctx))

		req := c.Request()

		if contentType := req.Header.Get(echo.HeaderContentType); contentType != "" && req.ContentLength != 0 {
			mediaType, params, err := mime.ParseMediaType(contentType)
			if err == nil && mediaType == graphdoc.MediaType && len(params) > 0 {
				span.SetAttributes(attribute.String("rejected", "content-type"))
				return presenter.Status(c, http.StatusUnsupportedMediaType, "media type parameters are not allowed")
			}
		}

		if !acceptable(req.Header.Values(echo.HeaderAccept)) {
			span.SetAttributes(attribute.String("rejected", "accept"))
			return presenter.Status(c, http.StatusNotAcceptable, "accept header only lists parameterised "+graphdoc.MediaType)
		}

		return next(c)
	}
}

func acceptable(headers []string) bool {
	sawPlain := false
	sawParameterised := false
	for _, header := range headers {
		for _, part := range strings.Split(header, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			mediaType, params, err := mime.ParseMediaType(part)
			if err != nil {
				continue
			}
			if mediaType != graphdoc.MediaType {
				sawPlain = true
				continue
			}
			delete(params, "q")
			if len(params) > 0 {
				sawParameterised = true
			} else {
				sawPlain = true
			}
		}
	}
	return sawPlain || !sawParameterised
}
