// Package canon defines the canonical artifact shape shared by every
// collector and the positional identity that keys the evidence store.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed marks an artifact that cannot be canonicalized. The caller
// drops that one artifact and keeps going.
var ErrMalformed = errors.New("canon: malformed artifact")

// Known sources. Collectors must emit one of these.
const (
	SourceGitHubRelease    = "github_release"
	SourceGitHubIssue      = "github_issue"
	SourceGitHubDiscussion = "github_discussion"
	SourceHackerNews       = "hackernews"
	SourceRSS              = "rss"
	SourceNVD              = "nvd"
)

// Artifact is one observed unit of upstream content. SourceID is the
// source-local identifier; together with Source it determines identity.
// Body and metadata are descriptive only and never feed the identity.
type Artifact struct {
	Source     string
	SourceID   string
	URL        string
	Title      string
	Body       string
	Metadata   map[string]any
	ObservedAt time.Time
}

// Identity returns the stable record key for (source, sourceID): the first
// 16 hex characters of SHA-256 over source, a NUL separator, and sourceID.
// The separator cannot occur in either field, so ("ab","c") and ("a","bc")
// can never collide. Content edits do not change identity.
func Identity(source, sourceID string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(sourceID))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ID returns the artifact's identity.
func (a *Artifact) ID() string {
	return Identity(a.Source, a.SourceID)
}

// Limits bounds the canonical shape of an artifact.
type Limits struct {
	MaxTitleLen     int
	MaxBodyLen      int
	MaxMetaValueLen int
	MaxMetaListLen  int
}

// DefaultLimits returns the limits the pipeline normally runs with.
func DefaultLimits() Limits {
	return Limits{
		MaxTitleLen:     300,
		MaxBodyLen:      10_000,
		MaxMetaValueLen: 512,
		MaxMetaListLen:  10,
	}
}

// truncMarker is appended to a body that was cut at MaxBodyLen.
const truncMarker = "\n[truncated]"

// metaKeys is the per-source metadata allow-list. Anything a collector
// attaches outside its list is dropped during normalization.
var metaKeys = map[string]map[string]bool{
	SourceGitHubRelease: {
		"repo": true, "tag": true, "prerelease": true, "author": true,
	},
	SourceGitHubIssue: {
		"repo": true, "labels": true, "reactions": true, "comments": true,
		"state": true, "author": true,
	},
	SourceGitHubDiscussion: {
		"repo": true, "category": true, "upvotes": true, "comments": true,
		"answered": true, "labels": true,
	},
	SourceHackerNews: {
		"score": true, "comments": true, "author": true, "search_keyword": true,
	},
	SourceRSS: {
		"feed": true, "feed_title": true, "author": true,
	},
	SourceNVD: {
		"cvss_score": true, "cvss_severity": true, "cwe": true, "products": true,
	},
}

// Normalize validates and bounds a into its canonical form, in place.
// Source, SourceID and Title are required; Source must be a known source.
// Title and Body are truncated by rune count so a pathological upstream
// payload cannot balloon a stored row.
func Normalize(a *Artifact, limits Limits) error {
	if a.Source == "" || a.SourceID == "" {
		return fmt.Errorf("%w: missing source or source id", ErrMalformed)
	}
	if _, ok := metaKeys[a.Source]; !ok {
		return fmt.Errorf("%w: unknown source %q", ErrMalformed, a.Source)
	}
	if a.Title == "" {
		return fmt.Errorf("%w: missing title (%s %s)", ErrMalformed, a.Source, a.SourceID)
	}

	a.Title = truncate(a.Title, limits.MaxTitleLen, "")
	a.Body = truncate(a.Body, limits.MaxBodyLen, truncMarker)
	a.Metadata = filterMeta(a.Source, a.Metadata, limits)
	if a.ObservedAt.IsZero() {
		a.ObservedAt = time.Now().UTC()
	}
	return nil
}

func truncate(s string, max int, marker string) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + marker
}

func filterMeta(source string, meta map[string]any, limits Limits) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	allowed := metaKeys[source]
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if !allowed[k] {
			continue
		}
		switch tv := v.(type) {
		case string:
			out[k] = truncate(tv, limits.MaxMetaValueLen, "")
		case []string:
			if len(tv) > limits.MaxMetaListLen {
				tv = tv[:limits.MaxMetaListLen]
			}
			capped := make([]string, len(tv))
			for i, s := range tv {
				capped[i] = truncate(s, limits.MaxMetaValueLen, "")
			}
			out[k] = capped
		default:
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MetaInt reads an integer-ish metadata value. JSON round-trips turn
// numbers into float64, so both forms are accepted.
func MetaInt(meta map[string]any, key string) (int, bool) {
	v, ok := meta[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// MetaFloat reads a float metadata value.
func MetaFloat(meta map[string]any, key string) (float64, bool) {
	v, ok := meta[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// MetaString reads a string metadata value.
func MetaString(meta map[string]any, key string) (string, bool) {
	s, ok := meta[key].(string)
	return s, ok
}

// MetaBool reads a bool metadata value.
func MetaBool(meta map[string]any, key string) (bool, bool) {
	b, ok := meta[key].(bool)
	return b, ok
}

// MetaStrings reads a string-list metadata value, accepting the []any form
// a JSON round-trip produces.
func MetaStrings(meta map[string]any, key string) []string {
	switch v := meta[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
