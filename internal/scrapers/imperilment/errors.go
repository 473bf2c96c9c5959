package imperilment

import "errors"

var (
	// ErrTransport means the request never produced a response: connection refused,
	// DNS failure, timeout or cancellation.
	ErrTransport = errors.New("imperilment: transport failure")

	// ErrTokenNotFound means a served page had no anti-forgery token, usually because the
	// session expired and the remote answered with its sign in page instead.
	ErrTokenNotFound = errors.New("imperilment: anti-forgery token not found")

	// ErrIdExtractionFailed means a creation response did not redirect to the created resource.
	ErrIdExtractionFailed = errors.New("imperilment: could not extract created id")

	// ErrSubmissionRejected means a form post was answered without the success redirect.
	ErrSubmissionRejected = errors.New("imperilment: submission rejected")

	ErrAuthenticationFailed = errors.New("imperilment: authentication failed")
	ErrDiscoveryFailed      = errors.New("imperilment: could not discover latest game")
)
