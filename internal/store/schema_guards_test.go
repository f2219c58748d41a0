package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitMigrationEnforcesWorkflowGuards(t *testing.T) {
	migrationPath := filepath.Join("..", "..", "db", "migrations", "001_init.up.sql")
	sqlBytes, err := os.ReadFile(migrationPath)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	expectedSnippets := []string{
		"CHECK (status IN ('submitted', 'in-review', 'merged', 'parked', 'implemented'))",
		"CHECK (category IN ('idea', 'pain-point', 'challenge'))",
		"CHECK (votes >= 0)",
		"tags JSONB NOT NULL DEFAULT '[]'::jsonb",
		"PRIMARY KEY (user_id, idea_id)",
	}
	for _, snippet := range expectedSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if !strings.Contains(sqlText, "revoked_at") {
		t.Fatal("refresh sessions must carry a revocation marker")
	}
}
