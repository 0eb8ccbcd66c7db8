package models

import "errors"

var (
	// ErrInvalidInput is returned when a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is the storage level not-found error.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a storage uniqueness constraint is hit.
	ErrAlreadyExists = errors.New("record already exists")

	ErrWalletNotFound        = errors.New("wallet not found")
	ErrTopUpNotFound         = errors.New("top-up not found")
	ErrNotAWatcher           = errors.New("not a watcher")
	ErrNotWatchingThisWallet = errors.New("not watching this wallet")

	// ErrUpstream wraps storage and chain I/O failures.
	ErrUpstream = errors.New("upstream failure")
	// ErrDelivery is returned when a message could not be sent.
	ErrDelivery = errors.New("delivery failure")
	// ErrUnsupportedNetwork is returned for a top-up whose network has no backend.
	ErrUnsupportedNetwork = errors.New("unsupported network")
)
