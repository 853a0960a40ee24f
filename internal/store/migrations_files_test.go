package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		match := pattern.FindStringSubmatch(name)
		if match == nil {
			continue
		}
		version := match[1]
		direction := match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}

	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestEngagementMigrationEnforcesSingleWinner(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0002_engagement.up.sql"))
	if err != nil {
		t.Fatalf("read engagement migration: %v", err)
	}
	sql := string(data)
	if !strings.Contains(sql, "offers_one_accepted_idx") {
		t.Error("engagement migration must declare the single accepted offer index")
	}
	if !strings.Contains(sql, "WHERE status = 'accepted'") {
		t.Error("accepted offer index must be partial on status accepted")
	}
	if !strings.Contains(sql, "UNIQUE (request_id, direction)") {
		t.Error("ratings must be unique per request and direction")
	}
}
