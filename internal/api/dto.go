package api

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/quantmod/pkg/q8"
)

type HealthResponse struct {
	Status string `json:"status"`
}

type RegistryResponse struct {
	Modules []q8.ModuleStat `json:"modules"`
}

type InvokeRequest struct {
	Token int `json:"token"`
}

type InvokeResponse struct {
	Token    int `json:"token"`
	Logits   int `json:"logits"`
	TopToken int `json:"top_token"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *echo.Context, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res.WriteHeader(status)
	_, err = res.Write(b)
	return err
}

func writeError(c *echo.Context, status int, msg string) error {
	return writeJSON(c, status, ErrorResponse{Error: msg})
}

func readJSON(c *echo.Context, v any) error {
	b, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
