package syncer

import "time"

// timeNow is swapped in tests for deterministic filenames.
var timeNow = time.Now
