package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "batch.yaml")
	content := `
- id: c1
  tool: shell
  args:
    command: git status
- tool: read_file
  args:
    path: /etc/hostname
- tool: list_dir
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	requests, err := loadBatch(path)
	if err != nil {
		t.Fatalf("loadBatch: %v", err)
	}
	if len(requests) != 3 {
		t.Fatalf("got %d requests, want 3", len(requests))
	}
	if requests[0].ID != "c1" || requests[0].ToolName != "shell" {
		t.Errorf("first request = %+v", requests[0])
	}
	if got := stringArg(requests[0].Arguments, "command"); got != "git status" {
		t.Errorf("command = %q", got)
	}
	if requests[1].ID == "" {
		t.Error("missing ID was not generated")
	}
	if string(requests[2].Arguments) != `{}` {
		t.Errorf("empty args = %s, want {}", requests[2].Arguments)
	}
}

func TestLoadBatchMissingTool(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte("- id: c1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadBatch(path); err == nil {
		t.Error("loadBatch accepted an entry without a tool")
	}
}

func TestBuiltinRegistry(t *testing.T) {
	t.Parallel()

	r := builtinRegistry(t.TempDir())
	for _, name := range []string{"read_file", "write_file", "list_dir", "shell"} {
		if _, err := r.Get(name); err != nil {
			t.Errorf("builtin %s missing: %v", name, err)
		}
	}
}

func TestWorkspacePathValidator(t *testing.T) {
	t.Parallel()

	validate := workspacePathValidator("/srv/work")

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"relative inside", `{"path":"notes.txt"}`, false},
		{"absolute inside", `{"path":"/srv/work/sub/notes.txt"}`, false},
		{"workspace root itself", `{"path":"/srv/work"}`, false},
		{"missing path", `{}`, true},
		{"escape via dotdot", `{"path":"../other/secret"}`, true},
		{"absolute outside", `{"path":"/etc/passwd"}`, true},
		{"sibling prefix", `{"path":"/srv/workother/file"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validate([]byte(tt.args))
			if (err != nil) != tt.wantErr {
				t.Errorf("validate(%s) = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestStringArg(t *testing.T) {
	t.Parallel()

	if got := stringArg([]byte(`{"path":"/tmp/x"}`), "path"); got != "/tmp/x" {
		t.Errorf("stringArg = %q", got)
	}
	if got := stringArg([]byte(`{"path":42}`), "path"); got != "" {
		t.Errorf("mistyped field = %q, want empty", got)
	}
	if got := stringArg([]byte(`garbage`), "path"); got != "" {
		t.Errorf("garbage args = %q, want empty", got)
	}
}
