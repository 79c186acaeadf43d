/*
Package randx provides the identifier generators used by the signaling relay.

Room and user identifiers are four random decimal segments joined by a dash.
Connection handles are UUID v4 strings issued once per WebSocket connection.
*/
package randx

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/google/uuid"
)

const (
	// IDSegments is the number of random segments in a generated identifier.
	IDSegments = 4

	// IDSegmentDigits is the fixed number of decimal digits per segment.
	IDSegmentDigits = 12

	// IDDelimiter joins the segments of a generated identifier.
	IDDelimiter = "-"

	segmentBound = uint64(1_000_000_000_000)
)

// GenerateID returns an opaque identifier built from four independently random
// decimal segments, e.g. "004187352211-918273645500-...". It never blocks and
// does not guarantee uniqueness; collisions are negligible at expected volumes.
func GenerateID() string {
	segments := make([]string, IDSegments)
	for i := range segments {
		segments[i] = fmt.Sprintf("%0*d", IDSegmentDigits, uint64(rand.Int63n(int64(segmentBound))))
	}
	return strings.Join(segments, IDDelimiter)
}

// IsValidID reports whether id has the shape produced by GenerateID.
func IsValidID(id string) bool {
	segments := strings.Split(id, IDDelimiter)
	if len(segments) != IDSegments {
		return false
	}

	for _, segment := range segments {
		if len(segment) != IDSegmentDigits {
			return false
		}
		for _, char := range segment {
			if char < '0' || char > '9' {
				return false
			}
		}
	}

	return true
}

// ConnectionHandle generates the per-socket key under which the registry stores a user.
func ConnectionHandle() string {
	return uuid.New().String()
}
