package estimate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultMarker labels the numeric payload inside an estimate block.
const DefaultMarker = "SP:"

var (
	ErrNotNumeric = errors.New("estimate is not numeric")
	ErrNegative   = errors.New("estimate is negative")
)

// ParseError reports why a block payload could not become an estimate.
type ParseError struct {
	Payload string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse estimate %q: %v", e.Payload, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse extracts the story points from the text of one estimate block.
func Parse(blockText, marker string) (float64, error) {
	payload := strings.TrimSpace(blockText)
	if marker != "" {
		payload = strings.TrimSpace(strings.TrimPrefix(payload, marker))
	}
	if payload == "" {
		return 0, &ParseError{Payload: blockText, Err: ErrNotNumeric}
	}
	v, err := strconv.ParseFloat(payload, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ParseError{Payload: blockText, Err: ErrNotNumeric}
	}
	if v < 0 {
		return 0, &ParseError{Payload: blockText, Err: ErrNegative}
	}
	if v == 0 {
		// -0
		v = 0
	}
	return v, nil
}
