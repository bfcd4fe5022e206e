package tenant

import "errors"

// ErrNoTenant is returned when neither an explicit nor an ambient tenant is
// available.
var ErrNoTenant = errors.New("tenant: no tenant id")
