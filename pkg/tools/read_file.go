package tools

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// MaxReadLines bounds a single read_file call.
const MaxReadLines = 200

// ReadFile exposes read_file(path="...", start="1", end="40") over an afero filesystem.
// Lines are 1-based and inclusive; ranges wider than MaxReadLines are cut.
type ReadFile struct {
	fs afero.Fs
}

// NewReadFile creates the tool. Pass afero.NewReadOnlyFs to forbid writes elsewhere.
func NewReadFile(fs afero.Fs) *ReadFile {
	return &ReadFile{fs: fs}
}

func (r *ReadFile) Name() string  { return "read_file" }
func (r *ReadFile) Usage() string { return `read_file(path="...", start="1", end="40")` }
func (r *ReadFile) Description() string {
	return fmt.Sprintf("read a line range of a local file (at most %d lines per call)", MaxReadLines)
}

// Call returns the requested lines prefixed with their numbers.
func (r *ReadFile) Call(ctx context.Context, args map[string]string) (string, error) {
	path, err := requireArg(r.Name(), args, "path")
	if err != nil {
		return "", err
	}
	start, err := lineArg(args, "start", 1)
	if err != nil {
		return "", err
	}
	end, err := lineArg(args, "end", start+MaxReadLines-1)
	if err != nil {
		return "", err
	}
	if end < start {
		return "", &ToolError{Tool: r.Name(), Message: fmt.Sprintf("end (%d) before start (%d)", end, start)}
	}
	if end-start+1 > MaxReadLines {
		end = start + MaxReadLines - 1
	}

	f, err := r.fs.Open(path)
	if err != nil {
		return "", &ToolError{Tool: r.Name(), Message: err.Error()}
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		if n < start {
			continue
		}
		if n > end {
			break
		}
		fmt.Fprintf(&b, "%d: %s\n", n, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", &ToolError{Tool: r.Name(), Message: err.Error()}
	}
	if b.Len() == 0 {
		return fmt.Sprintf("No lines in range %d-%d (file has %d lines).", start, end, n), nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func lineArg(args map[string]string, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 0, &ToolError{Tool: "read_file", Message: fmt.Sprintf("%s must be a positive integer, got %q", key, v)}
	}
	return n, nil
}
