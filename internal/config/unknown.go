package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists every toml tag in Config.
var knownKeys = []string{
	"tenant_id", "client_id", "client_secret", "token_url",
	"site_id", "drive_id", "base_folder", "local_dir", "ignore_file", "history_db",
	"simple_upload_max", "chunk_size", "max_retries", "retry_base_delay", "bandwidth_limit",
	"log_level", "log_format", "log_file", "log_retention_days",
	"connect_timeout", "data_timeout", "user_agent",
}

// checkUnknownKeys reports every key the decoder did not consume, each with
// the closest known key as a suggestion when one is near enough.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		name := key.String()
		if len(key) > 0 {
			name = key[0]
		}

		if suggestion := closestMatch(name, sortedKnownKeys); suggestion != "" {
			errs = append(errs, fmt.Errorf("unknown config key %q, did you mean %q?", key.String(), suggestion))
		} else {
			errs = append(errs, fmt.Errorf("unknown config key %q", key.String()))
		}
	}

	return errors.Join(errs...)
}

var sortedKnownKeys = func() []string {
	keys := append([]string(nil), knownKeys...)
	sort.Strings(keys)

	return keys
}()

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		if d := levenshtein(unknown, k); d < bestDist {
			bestDist = d
			best = k
		}
	}

	return best
}

// levenshtein computes the edit distance between two strings using two
// rolling rows.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
