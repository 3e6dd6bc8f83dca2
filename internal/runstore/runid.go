package runstore

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// slugRegex matches characters that should be replaced with hyphens
	slugRegex = regexp.MustCompile(`[^a-z0-9]+`)
	// multiHyphenRegex matches multiple consecutive hyphens
	multiHyphenRegex = regexp.MustCompile(`-+`)
)

// Slugify converts a workflow name into a directory-friendly slug.
// Rules:
// - Lowercase
// - Replace spaces with hyphens
// - Remove special chars (keep a-z, 0-9, hyphen)
// - Collapse multiple hyphens
// - Trim leading/trailing hyphens
// - Max length: 40 chars
//
// Examples:
//
//	"Nightly Refactor" -> "nightly-refactor"
//	"Fix: Bug #123!"   -> "fix-bug-123"
func Slugify(name string) string {
	if name == "" {
		return ""
	}

	// Handle unicode: title-case first so the caser folds exotic letters
	caser := cases.Title(language.English)
	result := caser.String(strings.TrimSpace(name))

	result = strings.ToLower(result)
	result = slugRegex.ReplaceAllString(result, "-")
	result = multiHyphenRegex.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")

	if len(result) > 40 {
		// Cut at the last hyphen before the limit to avoid splitting a word
		cutoff := 40
		if idx := strings.LastIndex(result[:cutoff], "-"); idx > 0 {
			cutoff = idx
		}
		result = result[:cutoff]
	}

	return result
}

// NewRunID builds a run identifier that is both content- and time-derived:
// a UTC timestamp, the workflow-name slug, a prefix of the definition hash,
// and a random fragment that keeps same-second runs of the same document
// distinct.
//
//	20250310-142233-nightly-refactor-3f9ac2d1-b43a91c7
func NewRunID(workflowName, definitionHash string, now time.Time) string {
	slug := Slugify(workflowName)
	if slug == "" {
		slug = "run"
	}

	hash := definitionHash
	if len(hash) > 8 {
		hash = hash[:8]
	}

	return fmt.Sprintf("%s-%s-%s-%s",
		now.UTC().Format("20060102-150405"),
		slug,
		hash,
		uuid.NewString()[:8],
	)
}
