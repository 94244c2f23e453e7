package api

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// failureMessage is the only error text a client ever sees.
const failureMessage = "Failed to process request"

type errorBody struct {
	Error string `json:"error"`
}

func writeFailure(c *echo.Context) error {
	return writeJSON(c, http.StatusInternalServerError, errorBody{Error: failureMessage})
}

func writeMethodNotAllowed(c *echo.Context) error {
	c.Response().Header().Set("Allow", http.MethodPost)
	return writeJSON(c, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
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

// maxBodyBytes bounds a chat request body.
const maxBodyBytes = 4 << 20

// decodeJSON reads the whole body and decodes exactly one JSON value from it.
// Trailing data after the value is an error.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return out, err
	}
	if len(data) > maxBodyBytes {
		return out, newInvalidRequest("request body too large")
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
