package openai

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the endpoint answers without any content.
var ErrEmptyResponse = errors.New("empty model response")

// StatusError is a non-2xx answer from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat endpoint non-success status=%d body=%s", e.Code, e.Body)
}
