package graph

import "time"

// timeNow is swapped by tests to freeze UpdatedAt stamps.
var timeNow = time.Now
