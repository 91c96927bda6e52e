package shared

import "time"

var testInstant = time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
