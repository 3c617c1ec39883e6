// Package rxfacade is the narrow, stable surface application code calls
// instead of touching the cache tiers directly: MatchString, FindString,
// and ReplaceAllString, each transparently backed by the pattern and
// result caches underneath. It is the minimal demonstrative consumer
// standing in for whatever production call site would otherwise embed
// this logic directly.
package rxfacade

import (
	"fmt"

	"github.com/oskarlin/rxcache/internal/rxcache"
)

// MatchString reports whether input matches pattern under opts. It
// checks the result tier before falling back to actually running the
// compiled pattern, and stores the outcome for next time.
func MatchString(mgr *rxcache.CacheManager, pattern string, opts rxcache.Options, input string) (matched bool, err error) {
	h, err := mgr.GetOrCompile(pattern, opts)
	if err != nil {
		return false, err
	}
	defer mgr.Release(h)
	defer recoverInto(&err)

	if cached, ok := mgr.LookupResult(h.Key, input); ok {
		return cached, nil
	}

	matched = h.Artifact.MatchString(input)
	mgr.RecordResult(h.Key, input, matched)
	return matched, nil
}

// FindString returns the leftmost match of pattern in input. The bool
// distinguishes an actual empty-string match from no match at all.
// Unlike MatchString this never consults the result tier: it only
// memoizes booleans, not substrings.
func FindString(mgr *rxcache.CacheManager, pattern string, opts rxcache.Options, input string) (found string, ok bool, err error) {
	h, err := mgr.GetOrCompile(pattern, opts)
	if err != nil {
		return "", false, err
	}
	defer mgr.Release(h)
	defer recoverInto(&err)

	found, ok = h.Artifact.FindStringMatch(input)
	return found, ok, nil
}

// ReplaceAllString replaces every match of pattern in input with repl.
func ReplaceAllString(mgr *rxcache.CacheManager, pattern string, opts rxcache.Options, input, repl string) (result string, err error) {
	h, err := mgr.GetOrCompile(pattern, opts)
	if err != nil {
		return "", err
	}
	defer mgr.Release(h)
	defer recoverInto(&err)

	result = h.Artifact.ReplaceAllString(input, repl)
	return result, nil
}

// recoverInto converts a panic from the underlying engine into an error
// rather than letting it cross the facade boundary. Named so every
// caller can defer it right after the handle-releasing defer.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("rxfacade: engine panic: %v", r)
	}
}
