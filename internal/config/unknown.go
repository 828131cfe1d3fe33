package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every section.
var knownKeys = map[string][]string{
	"site": {"url", "library_root"},
	"auth": {"mode", "tenant_id", "client_id", "client_secret", "pfx_path", "pfx_password", "token_cache"},
	"tracking": {
		"local_root", "file_prefix", "ignore_folders", "ignore_patterns", "verify_hash",
		"action_after_processed", "done_folder", "error_folder", "poll_interval_seconds",
		"base_backoff", "max_backoff", "dir_permissions", "file_permissions",
	},
	"logging": {"log_level", "log_file", "log_format"},
	"network": {"connect_timeout", "data_timeout", "user_agent"},
	"state":   {"journal_path", "journal_retention_days"},
}

// knownSectionsList is the sorted section names, for deterministic
// suggestions when two candidates have the same edit distance.
var knownSectionsList = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns an
// error with "did you mean?" suggestions for each one.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	paths := make([][]string, 0, len(undecoded))
	for _, key := range undecoded {
		paths = append(paths, []string(key))
	}

	return unknownKeyErrors(paths)
}

// checkUnknownMapKeys does the same for a generically decoded document
// (YAML).
func checkUnknownMapKeys(raw map[string]any) error {
	var paths [][]string

	for section, v := range raw {
		paths = append(paths, []string{section})

		if _, known := knownKeys[section]; !known {
			continue
		}

		sub, ok := v.(map[string]any)
		if !ok {
			continue
		}

		for key := range sub {
			if !slices.Contains(knownKeys[section], key) {
				paths = append(paths, []string{section, key})
			}
		}
	}

	// Map iteration order is random; sort so error text is stable.
	sort.Slice(paths, func(i, j int) bool {
		return strings.Join(paths[i], ".") < strings.Join(paths[j], ".")
	})

	return unknownKeyErrors(paths)
}

// unknownKeyErrors builds one error per unknown section and per unknown key
// inside a known section. Keys below an unknown section are not reported
// separately.
func unknownKeyErrors(paths [][]string) error {
	var errs []error

	reported := make(map[string]bool)

	for _, p := range paths {
		if len(p) == 0 {
			continue
		}

		section := p[0]

		if _, known := knownKeys[section]; !known {
			if reported[section] {
				continue
			}

			reported[section] = true
			errs = append(errs, keyError("section", section, "", closestMatch(section, knownSectionsList)))

			continue
		}

		if len(p) < 2 {
			continue
		}

		key := p[1]
		if slices.Contains(knownKeys[section], key) {
			continue
		}

		full := section + "." + key
		if reported[full] {
			continue
		}

		reported[full] = true
		errs = append(errs, keyError("key", key, section, closestMatch(key, knownKeys[section])))
	}

	return errors.Join(errs...)
}

func keyError(kind, name, section, suggestion string) error {
	where := ""
	if section != "" {
		where = fmt.Sprintf(" in [%s]", section)
	}

	if suggestion != "" {
		return fmt.Errorf("unknown config %s %q%s, did you mean %q?", kind, name, where, suggestion)
	}

	return fmt.Errorf("unknown config %s %q%s", kind, name, where)
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

// levenshtein computes the edit distance between two strings using a single
// rolling row.
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
