package audit

import "errors"

var (
	// ErrStorageNotAvailable indicates the storage backend is unavailable
	ErrStorageNotAvailable = errors.New("audit.storage_unavailable")

	// ErrStorageTimeout indicates a storage operation did not finish in time
	ErrStorageTimeout = errors.New("audit.storage_timeout")

	// ErrInvalidEvent indicates the record misses required fields
	ErrInvalidEvent = errors.New("audit.invalid_event")

	// ErrTenantRequired indicates a query or purge without a tenant scope
	ErrTenantRequired = errors.New("audit.tenant_required")

	// ErrBufferFull indicates the async buffer is full and the write was dropped
	ErrBufferFull = errors.New("audit.buffer_full")

	// ErrArchiveFailed indicates expired records could not be archived
	ErrArchiveFailed = errors.New("audit.archive_failed")
)
