package session

import "time"

// timeNow is a package-level var to allow test injection of timestamps.
var timeNow = time.Now
