package domain

import "errors"

var (
	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when no enrichment is cached for a product hash
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when the enrichment cache cannot be reached
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrRateLimited is returned when a provider's request quota for the current window is spent
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrProviderFailure is returned when a text-generation provider request fails
	ErrProviderFailure = errors.New("provider request failed")

	// ErrReferenceFailure is returned when the reference food database request fails
	ErrReferenceFailure = errors.New("reference database request failed")

	// ErrProductNotFound is returned when a reference search yields no products
	ErrProductNotFound = errors.New("product not found in reference database")

	// ErrLowConfidence is returned when the match confidence is below the threshold
	ErrLowConfidence = errors.New("match confidence below threshold")

	// ErrStoreIO is returned when the record store cannot be read or written
	ErrStoreIO = errors.New("record store I/O failed")

	// ErrCategoryConfig is returned when the category configuration cannot be loaded
	ErrCategoryConfig = errors.New("invalid category configuration")

	// ErrMigrationInvalid is returned when migrated records fail category validation
	ErrMigrationInvalid = errors.New("migration produced invalid category assignments")

	// ErrValidationFailed is returned when a batch file does not pass the integration gate
	ErrValidationFailed = errors.New("batch validation failed")

	// ErrBatchFormat is returned when a batch file is missing or malformed
	ErrBatchFormat = errors.New("malformed batch file")
)
