package services

import "errors"

// Terminal validation errors — surfaced verbatim to the caller, never retried.
var (
	ErrInvalidAmount       = errors.New("purchase amount must be positive")
	ErrInvalidCode         = errors.New("referral code format is invalid")
	ErrSelfReferral        = errors.New("cannot bind your own referral code")
	ErrAlreadyBound        = errors.New("a referrer is already bound for this buyer")
	ErrUnknownReferrer     = errors.New("referral code does not belong to any player")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrNotFound            = errors.New("record not found")
)

// Retryable errors — retried internally with bounded backoff before surfacing.
var (
	ErrConflict         = errors.New("concurrent update conflict")
	ErrStoreUnavailable = errors.New("ledger store temporarily unavailable")
)
