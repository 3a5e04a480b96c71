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

// knownSectionKeys lists the valid keys of every config section.
var knownSectionKeys = map[string]map[string]bool{
	"google": {
		"credentials_file": true, "token_file": true, "page_size": true, "show_deleted": true,
	},
	"store": {
		"db_path": true,
	},
	"sync": {
		"calendars": true, "skip_calendars": true, "poll_interval": true,
		"schedule": true, "max_pages": true,
	},
	"logging": {
		"log_level": true, "log_format": true,
	},
	"network": {
		"connect_timeout": true, "data_timeout": true, "user_agent": true, "max_retries": true,
		"requests_per_second": true,
	},
	"notify": {
		"nats_url": true, "subject": true,
	},
}

// knownSectionsList is the sorted list of section names. Sorted for
// deterministic suggestions when two candidates have the same edit distance.
var knownSectionsList = sortedKeys(knownSectionKeys)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. An unknown
// section is reported once, not once per key inside it.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	seenSections := make(map[string]bool)

	for _, key := range undecoded {
		if len(key) == 0 {
			continue
		}

		section := key[0]

		keys, ok := knownSectionKeys[section]
		if !ok || len(key) == 1 {
			if seenSections[section] {
				continue
			}

			seenSections[section] = true
			errs = append(errs, buildSectionError(section))

			continue
		}

		if !keys[key[1]] {
			errs = append(errs, buildKeyError(section, key[1], sortedKeys(keys)))
		}
	}

	return errors.Join(errs...)
}

func buildSectionError(section string) error {
	if suggestion := closestMatch(section, knownSectionsList); suggestion != "" {
		return fmt.Errorf("unknown config section %q, did you mean [%s]?", section, suggestion)
	}

	return fmt.Errorf("unknown config section %q", section)
}

func buildKeyError(section, key string, known []string) error {
	if suggestion := closestMatch(key, known); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", key, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", key, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization: two rows instead of a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 0; i < len(a); i++ {
		curr[0] = i + 1

		for j := 0; j < len(b); j++ {
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
