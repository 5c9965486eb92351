package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Reasons an upload is rejected as a whole, before any row is processed.
var (
	ErrNotCSV         = errors.New("Please upload a .csv file")
	ErrNotUTF8        = errors.New("CSV must be UTF-8 encoded")
	ErrMissingHeader  = errors.New("CSV header row is missing")
	ErrMalformedCSV   = errors.New("CSV could not be parsed")
	ErrMissingColumns = errors.New("Missing required columns")
)

// RejectionError is returned when an upload is refused as a whole.
type RejectionError struct {
	Err    error
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Detail)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

func reject(err error, detail string) *RejectionError {
	return &RejectionError{Err: err, Detail: detail}
}

func missingColumns(columns []string) *RejectionError {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = "'" + c + "'"
	}
	return reject(ErrMissingColumns, "["+strings.Join(quoted, ", ")+"]")
}
