// Package deployment turns raw artifact-store listings into deployment
// records and picks the one a rollback targets.
package deployment

import (
	"sort"
	"strings"

	"rewind/api/model"
)

// Group parses listing entries shaped "<root>/<service>/<stage>/<directory>/<file>"
// into records ordered by the directory's epoch-millisecond prefix.
// Entries for other services or stages are dropped.
func Group(entries []model.ObjectEntry, service, stage string) []model.DeploymentRecord {
	prefix := model.ArtifactPrefix(service, stage) + "/"

	byDir := make(map[string]map[string]bool)
	for _, e := range entries {
		dir, file, ok := splitKey(e.Key, prefix)
		if !ok {
			continue
		}
		files := byDir[dir]
		if files == nil {
			files = make(map[string]bool)
			byDir[dir] = files
		}
		files[file] = true
	}

	records := make([]model.DeploymentRecord, 0, len(byDir))
	for dir, files := range byDir {
		if len(files) == 0 {
			continue
		}
		records = append(records, model.DeploymentRecord{Directory: dir, Files: files})
	}

	sort.Slice(records, func(i, j int) bool {
		mi, _ := records[i].Millis()
		mj, _ := records[j].Millis()
		if mi != mj {
			return mi < mj
		}
		return records[i].Directory < records[j].Directory
	})
	return records
}

// splitKey extracts directory and filename from a key under prefix.
// Nested paths below the directory are not deployment files.
func splitKey(key, prefix string) (dir, file string, ok bool) {
	if !strings.HasPrefix(key, prefix) {
		return "", "", false
	}
	dir, file, found := strings.Cut(strings.TrimPrefix(key, prefix), "/")
	if !found || file == "" || strings.Contains(file, "/") {
		return "", "", false
	}
	if _, ok := model.DirectoryMillis(dir); !ok {
		return "", "", false
	}
	return dir, file, true
}
