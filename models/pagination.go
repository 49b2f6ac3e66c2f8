package models

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// PageInfo accompanies list responses. EndCursor feeds the next request's cursor.
type PageInfo struct {
	EndCursor   string `json:"end_cursor,omitempty"`
	HasNextPage bool   `json:"has_next_page"`
}

var ErrInvalidCursor = errors.New("invalid cursor")

const submissionCursorPrefix = "submission|"

// EncodeSubmissionCursor hides the keyset position (the last submission id) from clients.
func EncodeSubmissionCursor(id int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(submissionCursorPrefix + strconv.Itoa(id)))
}

// DecodeSubmissionCursor returns 0 for an empty cursor.
func DecodeSubmissionCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	rest, ok := strings.CutPrefix(string(b), submissionCursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCursor
	}
	return id, nil
}
