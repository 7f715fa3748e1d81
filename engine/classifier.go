package engine

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// The patterns below cover rsync --info=progress2, rsync -P per-file output
// and docker pull. They are heuristics: neither tool versions its progress
// format.
var (
	percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	speedPattern   = regexp.MustCompile(`(\d+(?:\.\d+)?\s*[A-Za-z]+/s)`)
	sizePattern    = regexp.MustCompile(`(\d+(?:\.\d+)?\s*[A-Za-z]+)\s*/\s*(\d+(?:\.\d+)?\s*[A-Za-z]+)`)
	etaPattern     = regexp.MustCompile(`(\d+:\d{2}:\d{2})\s*\(`)
	// rsync progress2 lines start with the bytes transferred so far.
	leadingBytesPattern = regexp.MustCompile(`^([\d,]+(?:\.\d+)?[KMGTP]?B?)\s+\d+(?:\.\d+)?%`)
)

type statusRule struct {
	category StatusCategory
	prefixes []string
	contains []string
}

// First matching rule wins, so specific phrases come before the generic
// fetch/pull substrings.
var statusRules = []statusRule{
	{
		category: CategoryBuildingFileList,
		prefixes: []string{"sending incremental file list", "receiving incremental file list"},
		contains: []string{"building file list"},
	},
	{
		category: CategoryFinalizing,
		prefixes: []string{"Number of files", "Total", "Digest:", "Status:", "sent "},
	},
	{
		category: CategoryTransferring,
		contains: []string{"Pull complete", "Download complete", "Downloading", "Extracting", "Verifying Checksum", "Already exists", "bytes/sec"},
	},
	{
		category: CategoryInfo,
		contains: []string{"Transfer completed"},
	},
	{
		category: CategoryFetching,
		contains: []string{"Pulling from", "Pulling fs layer", ": Waiting"},
	},
}

// Classify maps one raw output line to a ProgressEvent. Blank lines yield
// nil. It never panics; anything it cannot place becomes Unrecognized.
func Classify(line string) ProgressEvent {
	text := strings.TrimSpace(line)
	if text == "" {
		return nil
	}

	if m := percentPattern.FindStringSubmatch(text); m != nil {
		return percentUpdate(text, m[1])
	}

	if strings.Contains(text, "rsync error:") {
		return Completed{Success: false, Summary: text}
	}

	lower := strings.ToLower(text)
	if strings.Contains(lower, "speedup") || strings.Contains(lower, "done") {
		return Completed{Success: true, Summary: text}
	}

	for _, rule := range statusRules {
		if rule.matches(text) {
			return StatusLine{Category: rule.category, Text: text}
		}
	}
	if strings.Contains(lower, "fetch") || strings.Contains(lower, "pull") {
		return StatusLine{Category: CategoryFetching, Text: text}
	}

	return Unrecognized{Raw: text}
}

func (r statusRule) matches(text string) bool {
	for _, p := range r.prefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	for _, c := range r.contains {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}

func percentUpdate(text, raw string) PercentUpdate {
	ev := PercentUpdate{Percent: clampPercent(raw)}

	if m := speedPattern.FindStringSubmatch(text); m != nil {
		ev.Speed = m[1]
	}
	if m := sizePattern.FindStringSubmatch(text); m != nil {
		ev.BytesDone = m[1]
		ev.BytesTotal = m[2]
	} else if m := leadingBytesPattern.FindStringSubmatch(text); m != nil {
		ev.BytesDone = m[1]
	}
	if m := etaPattern.FindStringSubmatch(text); m != nil {
		ev.ETA = m[1]
	}
	return ev
}

func clampPercent(raw string) int {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(v)
}
