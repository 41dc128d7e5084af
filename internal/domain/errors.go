package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrProductNotFound is returned when a catalog lookup has no hit
	ErrProductNotFound = errors.New("product not found in catalog")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when the mapping snapshot has never loaded
	ErrCacheUnavailable = errors.New("mapping cache unavailable")

	// ErrNoValidCandidates is returned when no candidate survives validation
	// before disambiguation
	ErrNoValidCandidates = errors.New("no valid candidates")

	// ErrDisambiguationFailed is returned when the disambiguation delegate
	// is unreachable, times out or misbehaves
	ErrDisambiguationFailed = errors.New("disambiguation failed")

	// ErrMalformedDelegateResponse is returned when the delegate's reply is
	// not the expected JSON shape
	ErrMalformedDelegateResponse = errors.New("malformed disambiguation response")

	// ErrBuildInProgress is returned when another mapping build holds the run lock
	ErrBuildInProgress = errors.New("mapping build already in progress")

	// ErrManualMappingNotFound is returned for unknown manual mapping ids
	ErrManualMappingNotFound = errors.New("manual mapping not found")

	// ErrManualMappingConflict is returned when a query already belongs to
	// another manual mapping
	ErrManualMappingConflict = errors.New("query already mapped manually")

	// ErrUnknownStore is returned for supermarkets other than tesco/sainsburys
	ErrUnknownStore = errors.New("unknown store")
)
