package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kallt/toolgate/internal/policy"
	"github.com/kallt/toolgate/internal/tool"
)

// builtinRegistry registers the host's built-in tools, confining file
// tools to the given workspace directory. Registration cannot fail here
// because every name is distinct and non-empty.
func builtinRegistry(workspace string) *tool.Registry {
	r := tool.NewRegistry()
	for _, t := range builtinTools(workspace) {
		if err := r.Register(t); err != nil {
			panic(fmt.Sprintf("registering builtin tool: %v", err))
		}
	}
	return r
}

func builtinTools(workspace string) []tool.Tool {
	requirePath := workspacePathValidator(workspace)
	return []tool.Tool{
		&tool.Func{
			ToolName: "read_file",
			Desc:     "Read a file and return its contents",
			ToolKind: tool.KindReadOnly,
			ParamSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"path": {"type": "string"}},
				"required": ["path"]
			}`),
			ValidateFn: requirePath,
			Fn: func(_ context.Context, args json.RawMessage) (tool.Output, error) {
				path := stringArg(args, "path")
				data, err := os.ReadFile(path)
				if err != nil {
					return tool.Output{}, err
				}
				return tool.Output{Content: string(data)}, nil
			},
		},
		&tool.Func{
			ToolName: "write_file",
			Desc:     "Write content to a file, creating it if needed",
			ToolKind: tool.KindEdit,
			ParamSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string"},
					"content": {"type": "string"}
				},
				"required": ["path", "content"]
			}`),
			ValidateFn: requirePath,
			DescribeFn: func(args json.RawMessage) string {
				return fmt.Sprintf("write %d bytes to %s",
					len(stringArg(args, "content")), stringArg(args, "path"))
			},
			Fn: func(_ context.Context, args json.RawMessage) (tool.Output, error) {
				path := stringArg(args, "path")
				if err := os.WriteFile(path, []byte(stringArg(args, "content")), 0o600); err != nil {
					return tool.Output{}, err
				}
				return tool.Output{Content: "wrote " + path}, nil
			},
		},
		&tool.Func{
			ToolName: "list_dir",
			Desc:     "List directory entries",
			ToolKind: tool.KindReadOnly,
			ParamSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"path": {"type": "string"}},
				"required": ["path"]
			}`),
			ValidateFn: requirePath,
			Fn: func(_ context.Context, args json.RawMessage) (tool.Output, error) {
				entries, err := os.ReadDir(stringArg(args, "path"))
				if err != nil {
					return tool.Output{}, err
				}
				names := make([]string, 0, len(entries))
				for _, e := range entries {
					name := e.Name()
					if e.IsDir() {
						name += "/"
					}
					names = append(names, name)
				}
				sort.Strings(names)
				return tool.Output{Content: strings.Join(names, "\n")}, nil
			},
		},
		&tool.Func{
			ToolName: "shell",
			Desc:     "Run a shell command and return its combined output",
			ToolKind: tool.KindExecute,
			ParamSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"command": {"type": "string"}},
				"required": ["command"]
			}`),
			ValidateFn: func(args json.RawMessage) error {
				if policy.CommandFromArgs(args) == "" {
					return fmt.Errorf("command is required")
				}
				return nil
			},
			DescribeFn: func(args json.RawMessage) string {
				return policy.CommandFromArgs(args)
			},
			Fn: func(ctx context.Context, args json.RawMessage) (tool.Output, error) {
				cmd := exec.CommandContext(ctx, "sh", "-c", policy.CommandFromArgs(args))
				out, err := cmd.CombinedOutput()
				if err != nil {
					return tool.Output{Content: string(out), IsError: true}, nil
				}
				return tool.Output{Content: string(out)}, nil
			},
		},
	}
}

// workspacePathValidator rejects missing paths and paths that resolve
// outside the workspace directory. Relative paths resolve against the
// workspace, so the request cannot escape it with "..".
func workspacePathValidator(workspace string) func(json.RawMessage) error {
	root := filepath.Clean(workspace)
	return func(args json.RawMessage) error {
		path := stringArg(args, "path")
		if path == "" {
			return fmt.Errorf("path is required")
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		path = filepath.Clean(path)
		if path != root && !strings.HasPrefix(path, root+string(filepath.Separator)) {
			return fmt.Errorf("path %s is outside the workspace", path)
		}
		return nil
	}
}

// stringArg extracts a string field from a JSON argument object.
// Missing or mistyped fields yield "".
func stringArg(args json.RawMessage, key string) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(args, &m); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(m[key], &s); err != nil {
		return ""
	}
	return s
}
