package library

import "net/http"

// Status is the outcome of a resolution. Error statuses and redirects travel
// across the process boundary as plain integers.
type Status int

const (
	StatusOK                Status = http.StatusOK
	StatusMovedPermanently  Status = http.StatusMovedPermanently
	StatusTemporaryRedirect Status = http.StatusTemporaryRedirect
	StatusBadArgument       Status = http.StatusBadRequest
	StatusForbidden         Status = http.StatusForbidden
	StatusNotFound          Status = http.StatusNotFound
	StatusMethodNotAllowed  Status = http.StatusMethodNotAllowed
	StatusInternalError     Status = http.StatusInternalServerError
)

// IsRedirect reports whether s is a control-flow redirect rather than an error.
func (s Status) IsRedirect() bool {
	return s == StatusMovedPermanently || s == StatusTemporaryRedirect
}

func (s Status) Text() string { return http.StatusText(int(s)) }
