package agentrt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lumenanalytics/agentd/mode"
	"github.com/lumenanalytics/agentd/toolerrors"
	"github.com/lumenanalytics/agentd/toolkit"
)

// cliBashTimeout bounds how long a single run_bash_command invocation may
// run before being killed, matching a CLI assistant's expectation of fast,
// interactive commands rather than long-running jobs.
const cliBashTimeout = 30 * time.Second

// RunBashCommandParams is run_bash_command's payload: a shell command string
// and an optional working directory, matching original_source's bash tool.
type RunBashCommandParams struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

// RunBashCommandOutput carries the command's combined stdout/stderr and its
// exit code.
type RunBashCommandOutput struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

type runBashCommandTool struct {
	toolkit.AlwaysEnabled
}

func (t *runBashCommandTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolRunBashCommand,
		Description: "Runs a shell command and returns its combined stdout/stderr output and exit code.",
	}
}

func (t *runBashCommandTool) Execute(ctx context.Context, _ toolkit.CallMeta, params RunBashCommandParams) (RunBashCommandOutput, error) {
	if strings.TrimSpace(params.Command) == "" {
		return RunBashCommandOutput{}, toolerrors.New("run_bash_command: command is required")
	}
	ctx, cancel := context.WithTimeout(ctx, cliBashTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", params.Command)
	if params.Cwd != "" {
		cmd.Dir = params.Cwd
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return RunBashCommandOutput{Output: string(out), ExitCode: exitErr.ExitCode()}, nil
		}
		return RunBashCommandOutput{}, toolerrors.NewWithCause("run_bash_command: failed to run command", err)
	}
	return RunBashCommandOutput{Output: string(out), ExitCode: 0}, nil
}

// FindFilesGlobParams is find_files_glob's payload.
type FindFilesGlobParams struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
}

// FindFilesGlobOutput lists the matched paths, most recently modified first.
type FindFilesGlobOutput struct {
	Files []string `json:"files"`
}

type findFilesGlobTool struct {
	toolkit.AlwaysEnabled
}

func (t *findFilesGlobTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolFindFilesGlob,
		Description: "Fast file pattern matching tool. Returns matching file paths sorted by modification time, most recent first.",
	}
}

func (t *findFilesGlobTool) Execute(_ context.Context, _ toolkit.CallMeta, params FindFilesGlobParams) (FindFilesGlobOutput, error) {
	base, err := resolveBase(params.Path)
	if err != nil {
		return FindFilesGlobOutput{}, toolerrors.NewWithCause("find_files_glob: resolve base path", err)
	}
	matches, err := filepath.Glob(filepath.Join(base, params.Pattern))
	if err != nil {
		return FindFilesGlobOutput{}, toolerrors.NewWithCause(fmt.Sprintf("find_files_glob: invalid pattern %q", params.Pattern), err)
	}
	sortByModTimeDesc(matches)
	return FindFilesGlobOutput{Files: matches}, nil
}

// SearchFileContentGrepParams is search_file_content_grep's payload.
type SearchFileContentGrepParams struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path,omitempty"`
	Include string `json:"include,omitempty"`
}

// GrepMatch is one matched line from SearchFileContentGrepOutput.
type GrepMatch struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Content  string `json:"content"`
}

// SearchFileContentGrepOutput lists every matched line across every file
// search_file_content_grep considered.
type SearchFileContentGrepOutput struct {
	Matches []GrepMatch `json:"matches"`
}

type searchFileContentGrepTool struct {
	toolkit.AlwaysEnabled
}

func (t *searchFileContentGrepTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolSearchFileContentGrep,
		Description: "Fast content search tool that works with any codebase size. Searches file contents using a regular expression pattern.",
	}
}

func (t *searchFileContentGrepTool) Execute(_ context.Context, _ toolkit.CallMeta, params SearchFileContentGrepParams) (SearchFileContentGrepOutput, error) {
	base, err := resolveBase(params.Path)
	if err != nil {
		return SearchFileContentGrepOutput{}, toolerrors.NewWithCause("search_file_content_grep: resolve base path", err)
	}
	include := params.Include
	if include == "" {
		include = "*"
	}
	re, err := regexp.Compile(params.Pattern)
	if err != nil {
		return SearchFileContentGrepOutput{}, toolerrors.NewWithCause(fmt.Sprintf("search_file_content_grep: invalid pattern %q", params.Pattern), err)
	}
	files, err := filepath.Glob(filepath.Join(base, include))
	if err != nil {
		return SearchFileContentGrepOutput{}, toolerrors.NewWithCause(fmt.Sprintf("search_file_content_grep: invalid include pattern %q", include), err)
	}
	sortByModTimeDesc(files)

	var matches []GrepMatch
	for _, f := range files {
		info, statErr := os.Stat(f)
		if statErr != nil || info.IsDir() {
			continue
		}
		content, readErr := os.ReadFile(f)
		if readErr != nil {
			continue
		}
		for i, line := range strings.Split(string(content), "\n") {
			if re.MatchString(line) {
				matches = append(matches, GrepMatch{FilePath: f, Line: i + 1, Content: line})
			}
		}
	}
	return SearchFileContentGrepOutput{Matches: matches}, nil
}

// ListDirectoryParams is list_directory's payload.
type ListDirectoryParams struct {
	Path string `json:"path"`
}

// DirEntry is one entry returned by list_directory.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// ListDirectoryOutput lists path's direct children.
type ListDirectoryOutput struct {
	Entries []DirEntry `json:"entries"`
}

type listDirectoryTool struct {
	toolkit.AlwaysEnabled
}

func (t *listDirectoryTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolListDirectory,
		Description: "Lists the names of files and subdirectories directly within a specified directory path.",
	}
}

func (t *listDirectoryTool) Execute(_ context.Context, _ toolkit.CallMeta, params ListDirectoryParams) (ListDirectoryOutput, error) {
	if params.Path == "" {
		return ListDirectoryOutput{}, toolerrors.New("list_directory: path is required")
	}
	entries, err := os.ReadDir(params.Path)
	if err != nil {
		return ListDirectoryOutput{}, toolerrors.NewWithCause(fmt.Sprintf("list_directory: read %q", params.Path), err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return ListDirectoryOutput{Entries: out}, nil
}

// ReadFileContentParams is read_file_content's payload. Offset/Limit page
// through large files the way original_source's ViewTool does.
type ReadFileContentParams struct {
	FilePath string `json:"file_path"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ReadFileContentOutput is the file's content, formatted cat -n style with
// 1-based line numbers so the model can refer back to specific lines.
type ReadFileContentOutput struct {
	Content string `json:"content"`
}

type readFileContentTool struct {
	toolkit.AlwaysEnabled
}

func (t *readFileContentTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolReadFileContent,
		Description: "Reads a file from the local filesystem, returning its content with line numbers.",
	}
}

func (t *readFileContentTool) Execute(_ context.Context, _ toolkit.CallMeta, params ReadFileContentParams) (ReadFileContentOutput, error) {
	content, _, err := readExistingFile(params.FilePath, "read_file_content")
	if err != nil {
		return ReadFileContentOutput{}, err
	}
	lines := strings.Split(string(content), "\n")

	limit := params.Limit
	if limit <= 0 {
		limit = 2000
	}
	start := params.Offset
	if start < 0 || start > len(lines) {
		start = 0
	}
	end := start + limit
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	return ReadFileContentOutput{Content: b.String()}, nil
}

// Replacement is one find/replace step for edit_file_content.
type Replacement struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// EditFileContentParams is edit_file_content's payload: a file and a
// sequence of replacements applied in order.
type EditFileContentParams struct {
	FilePath     string        `json:"file_path"`
	Replacements []Replacement `json:"replacements"`
}

// EditFileContentOutput reports whether the edit succeeded. A failed edit
// (Success false) still returns a nil error: the ambiguity/not-found failure
// is business-level feedback for the model to correct itself with, not a
// tool-execution fault.
type EditFileContentOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type editFileContentTool struct {
	toolkit.AlwaysEnabled
}

func (t *editFileContentTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolEditFileContent,
		Description: "Edits an existing file by applying a list of content replacements. Each replacement's 'find' text must match exactly once in the current file content, or the file is left unchanged and a structured error is returned.",
	}
}

func (t *editFileContentTool) Execute(_ context.Context, _ toolkit.CallMeta, params EditFileContentParams) (EditFileContentOutput, error) {
	content, perm, err := readExistingFile(params.FilePath, "edit_file_content")
	if err != nil {
		return EditFileContentOutput{}, err
	}

	edited, applyErr := applyReplacements(string(content), params.Replacements)
	if applyErr != nil {
		return EditFileContentOutput{Success: false, Message: applyErr.Error()}, nil
	}
	if err := os.WriteFile(params.FilePath, []byte(edited), perm); err != nil {
		return EditFileContentOutput{}, toolerrors.NewWithCause(fmt.Sprintf("edit_file_content: write %q", params.FilePath), err)
	}
	return EditFileContentOutput{Success: true, Message: fmt.Sprintf("Successfully edited file: %s", params.FilePath)}, nil
}

// applyReplacements applies each replacement against content in order,
// requiring its Find text to appear exactly once in content at the moment
// it is applied (spec.md §6). A Find with zero or more than one occurrence
// stops immediately and content is discarded, leaving the file untouched.
func applyReplacements(content string, replacements []Replacement) (string, error) {
	for _, r := range replacements {
		count := strings.Count(content, r.Find)
		switch {
		case count == 0:
			return "", fmt.Errorf("Content to replace not found: %q", r.Find)
		case count > 1:
			return "", fmt.Errorf("Content to replace found multiple times (%d)", count)
		}
		content = strings.Replace(content, r.Find, r.Replace, 1)
	}
	return content, nil
}

// WriteFileContentParams is write_file_content's payload.
type WriteFileContentParams struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// WriteFileContentOutput reports the write's outcome.
type WriteFileContentOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type writeFileContentTool struct {
	toolkit.AlwaysEnabled
}

func (t *writeFileContentTool) Spec() toolkit.Spec {
	return toolkit.Spec{
		Name:        mode.ToolWriteFileContent,
		Description: "Writes content to a file, creating it (and any missing parent directories) if it does not exist, or overwriting it if it does.",
	}
}

func (t *writeFileContentTool) Execute(_ context.Context, _ toolkit.CallMeta, params WriteFileContentParams) (WriteFileContentOutput, error) {
	if params.FilePath == "" {
		return WriteFileContentOutput{}, toolerrors.New("write_file_content: file_path is required")
	}
	if dir := filepath.Dir(params.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return WriteFileContentOutput{}, toolerrors.NewWithCause(fmt.Sprintf("write_file_content: create parent directory for %q", params.FilePath), err)
		}
	}
	if err := os.WriteFile(params.FilePath, []byte(params.Content), 0o644); err != nil {
		return WriteFileContentOutput{}, toolerrors.NewWithCause(fmt.Sprintf("write_file_content: write %q", params.FilePath), err)
	}
	return WriteFileContentOutput{Success: true, Message: fmt.Sprintf("Successfully wrote file: %s", params.FilePath)}, nil
}

// resolveBase returns path, or the process's working directory when path is
// empty, matching original_source's glob/grep tools' "defaults to cwd"
// contract.
func resolveBase(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return os.Getwd()
}

// readExistingFile validates that filePath names an existing regular file
// and returns its content and file mode, or a structured toolerrors failure.
func readExistingFile(filePath, toolName string) ([]byte, os.FileMode, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, 0, toolerrors.NewWithCause(fmt.Sprintf("%s: %q does not exist", toolName, filePath), err)
	}
	if info.IsDir() {
		return nil, 0, toolerrors.New(fmt.Sprintf("%s: %q is not a file", toolName, filePath))
	}
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, 0, toolerrors.NewWithCause(fmt.Sprintf("%s: read %q", toolName, filePath), err)
	}
	return content, info.Mode(), nil
}

// sortByModTimeDesc sorts paths by modification time, most recent first,
// matching original_source's glob/grep tools' ordering.
func sortByModTimeDesc(paths []string) {
	sort.Slice(paths, func(i, j int) bool {
		iInfo, iErr := os.Stat(paths[i])
		jInfo, jErr := os.Stat(paths[j])
		if iErr != nil || jErr != nil {
			return false
		}
		return iInfo.ModTime().After(jInfo.ModTime())
	})
}

// RegisterCliTools registers the CliAssist mode's filesystem/shell toolkit
// (run_bash_command, find_files_glob, search_file_content_grep,
// list_directory, read_file_content, edit_file_content, write_file_content)
// against registry. Unlike RegisterDomainTools/RegisterTerminalTools, these
// tools carry no per-conversation state: they act directly on the local
// filesystem the agentd process runs on.
func RegisterCliTools(registry *toolkit.Registry) error {
	bash, err := toolkit.Register[RunBashCommandParams, RunBashCommandOutput](&runBashCommandTool{}, jsonCodec[RunBashCommandParams](), jsonCodec[RunBashCommandOutput]())
	if err != nil {
		return err
	}
	if err := registry.Add(bash); err != nil {
		return err
	}

	glob, err := toolkit.Register[FindFilesGlobParams, FindFilesGlobOutput](&findFilesGlobTool{}, jsonCodec[FindFilesGlobParams](), jsonCodec[FindFilesGlobOutput]())
	if err != nil {
		return err
	}
	if err := registry.Add(glob); err != nil {
		return err
	}

	grep, err := toolkit.Register[SearchFileContentGrepParams, SearchFileContentGrepOutput](&searchFileContentGrepTool{}, jsonCodec[SearchFileContentGrepParams](), jsonCodec[SearchFileContentGrepOutput]())
	if err != nil {
		return err
	}
	if err := registry.Add(grep); err != nil {
		return err
	}

	list, err := toolkit.Register[ListDirectoryParams, ListDirectoryOutput](&listDirectoryTool{}, jsonCodec[ListDirectoryParams](), jsonCodec[ListDirectoryOutput]())
	if err != nil {
		return err
	}
	if err := registry.Add(list); err != nil {
		return err
	}

	read, err := toolkit.Register[ReadFileContentParams, ReadFileContentOutput](&readFileContentTool{}, jsonCodec[ReadFileContentParams](), jsonCodec[ReadFileContentOutput]())
	if err != nil {
		return err
	}
	if err := registry.Add(read); err != nil {
		return err
	}

	edit, err := toolkit.Register[EditFileContentParams, EditFileContentOutput](&editFileContentTool{}, jsonCodec[EditFileContentParams](), jsonCodec[EditFileContentOutput]())
	if err != nil {
		return err
	}
	if err := registry.Add(edit); err != nil {
		return err
	}

	write, err := toolkit.Register[WriteFileContentParams, WriteFileContentOutput](&writeFileContentTool{}, jsonCodec[WriteFileContentParams](), jsonCodec[WriteFileContentOutput]())
	if err != nil {
		return err
	}
	return registry.Add(write)
}
