package phase

import "errors"

// ErrNotDriving is returned when a driver-only operation is attempted by a
// client that has not been promoted.
var ErrNotDriving = errors.New("client is not the elected driver")
