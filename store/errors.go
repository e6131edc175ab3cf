package store

import "github.com/wtsi-hgi/shepherd/stateerr"

var errNoTasksAvailable = stateerr.ErrNoTasksAvailable
var errNoThroughputData = stateerr.ErrNoThroughputData
