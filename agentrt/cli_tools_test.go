package agentrt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenanalytics/agentd/toolkit"
)

// TestEditFileContentRejectsAmbiguousMatch is spec.md §8 scenario S5: a file
// containing "foo\nfoo" edited with a single find/replace on "foo" must fail
// with a message naming the exact occurrence count and leave the file
// untouched.
func TestEditFileContentRejectsAmbiguousMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo\nfoo"), 0o644))

	tool := &editFileContentTool{}
	out, err := tool.Execute(context.Background(), toolkit.CallMeta{}, EditFileContentParams{
		FilePath:     path,
		Replacements: []Replacement{{Find: "foo", Replace: "bar"}},
	})
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Equal(t, "Content to replace found multiple times (2)", out.Message)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "foo\nfoo", string(content))
}

func TestEditFileContentAppliesUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "single.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	tool := &editFileContentTool{}
	out, err := tool.Execute(context.Background(), toolkit.CallMeta{}, EditFileContentParams{
		FilePath:     path,
		Replacements: []Replacement{{Find: "world", Replace: "there"}},
	})
	require.NoError(t, err)
	require.True(t, out.Success)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello there", string(content))
}

func TestEditFileContentReportsMissingMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	tool := &editFileContentTool{}
	out, err := tool.Execute(context.Background(), toolkit.CallMeta{}, EditFileContentParams{
		FilePath:     path,
		Replacements: []Replacement{{Find: "goodbye", Replace: "hi"}},
	})
	require.NoError(t, err)
	require.False(t, out.Success)
	require.Contains(t, out.Message, "not found")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(content))
}

func TestReadFileContentFormatsLineNumbers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha\nbeta\n"), 0o644))

	tool := &readFileContentTool{}
	out, err := tool.Execute(context.Background(), toolkit.CallMeta{}, ReadFileContentParams{FilePath: path})
	require.NoError(t, err)
	require.Contains(t, out.Content, "1\talpha")
	require.Contains(t, out.Content, "2\tbeta")
}

func TestReadFileContentRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	tool := &readFileContentTool{}
	_, err := tool.Execute(context.Background(), toolkit.CallMeta{}, ReadFileContentParams{FilePath: dir})
	require.Error(t, err)
}

func TestWriteFileContentCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	tool := &writeFileContentTool{}
	out, err := tool.Execute(context.Background(), toolkit.CallMeta{}, WriteFileContentParams{FilePath: path, Content: "payload"})
	require.NoError(t, err)
	require.True(t, out.Success)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "payload", string(content))
}

func TestListDirectoryListsEntries(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	tool := &listDirectoryTool{}
	out, err := tool.Execute(context.Background(), toolkit.CallMeta{}, ListDirectoryParams{Path: dir})
	require.NoError(t, err)
	require.Len(t, out.Entries, 2)

	var sawFile, sawDir bool
	for _, e := range out.Entries {
		switch e.Name {
		case "a.txt":
			sawFile = true
			require.False(t, e.IsDir)
		case "sub":
			sawDir = true
			require.True(t, e.IsDir)
		}
	}
	require.True(t, sawFile)
	require.True(t, sawDir)
}

func TestFindFilesGlobMatchesPattern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.txt"), []byte("x"), 0o644))

	tool := &findFilesGlobTool{}
	out, err := tool.Execute(context.Background(), toolkit.CallMeta{}, FindFilesGlobParams{Pattern: "*.go", Path: dir})
	require.NoError(t, err)
	require.Len(t, out.Files, 1)
	require.Equal(t, filepath.Join(dir, "one.go"), out.Files[0])
}

func TestSearchFileContentGrepFindsMatches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\nneedle here\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("nothing to see\n"), 0o644))

	tool := &searchFileContentGrepTool{}
	out, err := tool.Execute(context.Background(), toolkit.CallMeta{}, SearchFileContentGrepParams{Pattern: "needle", Path: dir})
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	require.Equal(t, 2, out.Matches[0].Line)
}

func TestRunBashCommandCapturesOutputAndExitCode(t *testing.T) {
	tool := &runBashCommandTool{}
	out, err := tool.Execute(context.Background(), toolkit.CallMeta{}, RunBashCommandParams{Command: "echo hi"})
	require.NoError(t, err)
	require.Equal(t, 0, out.ExitCode)
	require.Contains(t, out.Output, "hi")

	out, err = tool.Execute(context.Background(), toolkit.CallMeta{}, RunBashCommandParams{Command: "exit 7"})
	require.NoError(t, err)
	require.Equal(t, 7, out.ExitCode)
}

func TestRegisterCliToolsRegistersAllSeven(t *testing.T) {
	registry := toolkit.NewRegistry()
	require.NoError(t, RegisterCliTools(registry))
	for _, name := range []toolkit.Ident{
		"run_bash_command", "find_files_glob", "search_file_content_grep", "list_directory",
		"read_file_content", "edit_file_content", "write_file_content",
	} {
		_, ok := registry.Lookup(name)
		require.True(t, ok, "tool %s not registered", name)
	}
}
