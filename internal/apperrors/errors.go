// Package apperrors defines the error taxonomy shared by the scraper components.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

const (
	// KindFetch is a network or non-2xx failure while talking to the catalog site.
	KindFetch Kind = "fetch"
	// KindParse is an unexpected document shape.
	KindParse Kind = "parse"
	// KindAuth is a failed token acquisition.
	KindAuth Kind = "auth"
	// KindRemote is a non-2xx or undecodable answer from the task/video services.
	KindRemote Kind = "remote"
	// KindMedia is a failure while storing or converting a media file.
	KindMedia Kind = "media"
	// KindValidation is a caller error that retrying cannot fix.
	KindValidation Kind = "validation"
)

// Error is the concrete error type returned by the scraper packages.
type Error struct {
	Kind   Kind
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, url string, status int, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, Status: status, Err: err}
}

// NewFetch creates a fetch error. status is 0 for transport failures.
func NewFetch(url string, status int, err error) *Error {
	return newError(KindFetch, "fetch", url, status, err)
}

func NewParse(op, url string, err error) *Error {
	return newError(KindParse, op, url, 0, err)
}

func NewAuth(url string, status int, err error) *Error {
	return newError(KindAuth, "authenticate", url, status, err)
}

func NewRemote(op, url string, status int, err error) *Error {
	return newError(KindRemote, op, url, status, err)
}

func NewMedia(op, path string, err error) *Error {
	return newError(KindMedia, op, path, 0, err)
}

func NewValidation(op, message string) *Error {
	return newError(KindValidation, op, "", 0, errors.New(message))
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsFetch(err error) bool      { return KindOf(err) == KindFetch }
func IsParse(err error) bool      { return KindOf(err) == KindParse }
func IsAuth(err error) bool       { return KindOf(err) == KindAuth }
func IsRemote(err error) bool     { return KindOf(err) == KindRemote }
func IsMedia(err error) bool      { return KindOf(err) == KindMedia }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
