package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/atikulmunna/sitekeeper/internal/accesslog"
	"github.com/atikulmunna/sitekeeper/internal/model"
)

// Parser converts a raw access-log line into a structured AccessEntry.
type Parser interface {
	Parse(raw string, source string) model.AccessEntry
}

// ---------------------------------------------------------------------------
// Access Parser (sitekeeper's own format)
// ---------------------------------------------------------------------------

// AccessParser handles lines written by accesslog: <timestamp>:<METHOD> <uri>.
// The timestamp itself contains colons, so the method is found from the right.
type AccessParser struct {
	re *regexp.Regexp
}

func NewAccessParser() *AccessParser {
	return &AccessParser{
		re: regexp.MustCompile(`^(.+):([A-Z]+) (\S*)$`),
	}
}

func (p *AccessParser) Parse(raw string, source string) model.AccessEntry {
	entry := base(raw, source)

	matches := p.re.FindStringSubmatch(strings.TrimRight(raw, "\r\n"))
	if matches == nil {
		return entry
	}

	if t, err := time.Parse(accesslog.TimeLayout, matches[1]); err == nil {
		entry.Timestamp = t
	}
	entry.Method = matches[2]
	entry.Path = matches[3]

	return entry
}

// ---------------------------------------------------------------------------
// Regex Parser (user-defined patterns)
// ---------------------------------------------------------------------------

// RegexParser uses a user-supplied regex with named capture groups.
// Recognized groups: timestamp (RFC 3339), method, path. Others land in Fields.
type RegexParser struct {
	re *regexp.Regexp
}

func NewRegexParser(pattern string) (*RegexParser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	return &RegexParser{re: re}, nil
}

func (p *RegexParser) Parse(raw string, source string) model.AccessEntry {
	entry := base(raw, source)

	matches := p.re.FindStringSubmatch(raw)
	if matches == nil {
		return entry
	}

	for i, name := range p.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		val := matches[i]

		switch name {
		case "method":
			entry.Method = strings.ToUpper(val)
		case "path":
			entry.Path = val
		case "timestamp":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				entry.Timestamp = t
			}
		default:
			if entry.Fields == nil {
				entry.Fields = make(map[string]string)
			}
			entry.Fields[name] = val
		}
	}

	return entry
}

// base returns an AccessEntry with defaults populated. Unparsed lines keep
// an empty method.
func base(raw, source string) model.AccessEntry {
	return model.AccessEntry{
		Timestamp: time.Now(),
		Source:    source,
		Raw:       raw,
	}
}
