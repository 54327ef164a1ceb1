package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TemplateFile is the compiled update template every complete deployment
// directory carries. A directory without it cannot be applied.
const TemplateFile = "cloudformation-template-update-stack.json"

// ArtifactRoot is the first path segment of every deployment artifact key.
const ArtifactRoot = "serverless"

// isoMillis matches the writer's ISO-8601 rendering: UTC, always three
// fractional digits, literal Z.
const isoMillis = "2006-01-02T15:04:05.000Z"

// ObjectEntry is one raw listing result from the artifact store.
type ObjectEntry struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// DeploymentRecord groups the artifact files sharing one timestamped directory.
type DeploymentRecord struct {
	Directory string          `json:"directory"`
	Files     map[string]bool `json:"files"`
}

// Complete reports whether the record holds the update template.
func (d DeploymentRecord) Complete() bool {
	return d.Files[TemplateFile]
}

// FileNames returns the record's files in lexical order.
func (d DeploymentRecord) FileNames() []string {
	names := make([]string, 0, len(d.Files))
	for f := range d.Files {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

// Millis returns the epoch-millisecond prefix of the directory, or false
// when the directory does not start with one.
func (d DeploymentRecord) Millis() (int64, bool) {
	return DirectoryMillis(d.Directory)
}

// Timestamp returns the deployment time encoded in the directory name.
func (d DeploymentRecord) Timestamp() time.Time {
	ms, ok := d.Millis()
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// SelectionKey locates exactly one deployment of a service stage.
type SelectionKey struct {
	Service   string
	Stage     string
	Timestamp time.Time
}

// Prefix is the listing prefix for the key's service and stage.
func (k SelectionKey) Prefix() string {
	return ArtifactPrefix(k.Service, k.Stage)
}

// Directory is the canonical directory string for the key's timestamp.
func (k SelectionKey) Directory() string {
	return DirectoryName(k.Timestamp)
}

// ArtifactPrefix returns "<root>/<service>/<stage>".
func ArtifactPrefix(service, stage string) string {
	return ArtifactRoot + "/" + service + "/" + stage
}

// DirectoryName renders t as "<epochMillis>-<ISO8601UTC>".
func DirectoryName(t time.Time) string {
	t = t.UTC()
	return strconv.FormatInt(t.UnixMilli(), 10) + "-" + t.Format(isoMillis)
}

// DirectoryMillis parses the epoch-millisecond prefix of a directory name.
func DirectoryMillis(dir string) (int64, bool) {
	head, _, found := strings.Cut(dir, "-")
	if !found || head == "" {
		return 0, false
	}
	ms, err := strconv.ParseInt(head, 10, 64)
	if err != nil || ms < 0 {
		return 0, false
	}
	return ms, true
}

// Date-times without a zone are local time; a bare date is UTC midnight.
var timestampLayouts = []struct {
	layout string
	local  bool
}{
	{time.RFC3339Nano, false},
	{isoMillis, false},
	{"2006-01-02T15:04:05.000", true},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02", false},
}

// ParseTimestamp accepts epoch milliseconds or a calendar date.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp is empty")
	}
	if isDigits(s) {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, l := range timestampLayouts {
		loc := time.UTC
		if l.local {
			loc = time.Local
		}
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is neither epoch milliseconds nor an ISO-8601 date", s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
