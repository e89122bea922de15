package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "traders.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeRoster(t, `
editions:
  - name: season-1
    traders:
      - id: deepseek
        name: DeepSeek
        model: deepseek-chat
        strategy: momentum
      - id: qwen
        name: Qwen
        model: qwen-max
        strategy: mean-reversion
  - name: season-2
    traders:
      - id: deepseek
        name: DeepSeek
        model: deepseek-chat
        strategy: momentum
`)

	editions, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(editions) != 2 {
		t.Fatalf("editions = %d, expected 2", len(editions))
	}
	if editions[0].Name != "season-1" || len(editions[0].Traders) != 2 {
		t.Fatalf("first edition = %+v", editions[0])
	}
	if editions[0].Traders[1].Model != "qwen-max" {
		t.Fatalf("trader model = %q", editions[0].Traders[1].Model)
	}
}

func TestLoadRejectsBadRosters(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"empty file", "editions: []", "no editions"},
		{"nameless edition", "editions:\n  - traders: []", "empty name"},
		{"duplicate edition", `
editions:
  - name: season-1
  - name: season-1
`, "duplicate edition"},
		{"duplicate trader", `
editions:
  - name: season-1
    traders:
      - id: deepseek
      - id: deepseek
`, "duplicates trader"},
		{"trader without id", `
editions:
  - name: season-1
    traders:
      - name: Mystery
`, "empty id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeRoster(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("got %v, expected error containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/traders.yaml"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
