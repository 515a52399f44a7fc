package indexing

import "time"

// Progress phase weights, in percent of a full index.
const (
	weightDiscovery  = 10.0
	weightListing    = 10.0
	weightExtraction = 70.0
	weightFinalize   = 10.0
)

const (
	// maxConcurrentRoots bounds concurrent VCS file listings.
	maxConcurrentRoots = 4

	// sniffSize is how much of a file is read to classify it.
	sniffSize = 512

	// Descriptor exhaustion retry: attempts and first backoff.
	maxOpenRetries   = 5
	openRetryBackoff = 10 * time.Millisecond

	// watchPattern subscribes to every file below the roots.
	watchPattern = "**/*"

	// incrementalQueueSize buffers filtered watch events.
	incrementalQueueSize = 1024
)

// generatedMarkers appear in the header of machine-written files.
var generatedMarkers = []string{
	"Code generated",
	"DO NOT EDIT",
	"@generated",
	"<auto-generated",
	"This file was automatically generated",
	"This file is automatically generated",
	"Autogenerated by",
	"AUTO-GENERATED FILE",
}
