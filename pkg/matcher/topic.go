package matcher

import "strings"

// TopicMatches implements pub/sub topic pattern matching: "+" matches exactly
// one segment, "#" matches any remaining segments and is only valid as the
// final pattern segment.
func TopicMatches(pattern, topic string) bool {
	patParts := strings.Split(pattern, "/")
	topParts := strings.Split(topic, "/")

	pi, ti := 0, 0

	for pi < len(patParts) && ti < len(topParts) {
		switch patParts[pi] {
		case "#":
			// Multi-level wildcard in a non-final position is invalid.
			return pi == len(patParts)-1
		case "+":
			pi++
			ti++
		default:
			if patParts[pi] != topParts[ti] {
				return false
			}

			pi++
			ti++
		}
	}

	return pi == len(patParts) && ti == len(topParts)
}
