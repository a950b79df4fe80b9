package domain

import "errors"

var (
	// ErrStorageUnavailable is fatal at startup: the process must not serve without a store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrWriteFailure       = errors.New("write failure")
	ErrReadFailure        = errors.New("read failure")

	// ErrMalformedPayload marks an inbound message that was discarded.
	ErrMalformedPayload = errors.New("malformed payload")

	ErrConnectionFailure   = errors.New("broker connection failure")
	ErrSubscriptionFailure = errors.New("subscription failure")
)
