package download

import (
	"errors"
	"fmt"
)

// ErrNoOutput reports a fetch that finished without leaving a usable file.
var ErrNoOutput = errors.New("download: fetch produced no output file")

// FetchError wraps any failure of the search, download or transcode step.
type FetchError struct {
	Query string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("download %q: %v", e.Query, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Code identifies the error in handler summaries.
func (e *FetchError) Code() string { return "FETCH_FAILED" }

// CredentialsMissingError reports that the cookies file is absent.
// It is a warning: the download proceeds without credentials.
type CredentialsMissingError struct {
	Path string
}

func (e *CredentialsMissingError) Error() string {
	return fmt.Sprintf("cookies file not found at %q", e.Path)
}

// Code identifies the error in handler summaries.
func (e *CredentialsMissingError) Code() string { return "CREDENTIALS_MISSING" }
