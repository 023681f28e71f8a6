package git

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/colonyops/mend/internal/core/mergeset"
	"github.com/colonyops/mend/internal/core/session"
	"github.com/colonyops/mend/pkg/executil"
)

const defaultFileMode = "100644"

// Executor implements Git using the git command-line tool.
type Executor struct {
	gitPath string
	exec    executil.Executor
}

var _ Git = (*Executor)(nil)

// NewExecutor creates a new git executor with the specified git binary path.
func NewExecutor(gitPath string, exec executil.Executor) *Executor {
	if gitPath == "" {
		gitPath = "git"
	}
	return &Executor{gitPath: gitPath, exec: exec}
}

func (e *Executor) git(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := e.exec.RunDir(ctx, dir, e.gitPath, args...)
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(out), nil
}

func (e *Executor) Toplevel(ctx context.Context, dir string) (string, error) {
	out, err := e.git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (e *Executor) ConflictedBlob(ctx context.Context, repoID, path string) (string, session.Fingerprint, error) {
	full, err := worktreePath(repoID, path)
	if err != nil {
		return "", "", err
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), BlobFingerprint(data), nil
}

func (e *Executor) CurrentFingerprint(ctx context.Context, repoID, path string) (session.Fingerprint, error) {
	full, err := worktreePath(repoID, path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return BlobFingerprint(data), nil
}

// WriteBlob replaces the working-tree file atomically (temp file + rename,
// keeping the file mode) and hashes it into the object database.
func (e *Executor) WriteBlob(ctx context.Context, repoID, path, text string) (string, error) {
	full, err := worktreePath(repoID, path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := writeFileAtomic(full, []byte(text)); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}

	out, err := e.git(ctx, repoID, "hash-object", "-w", "--", filepath.ToSlash(path))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// StageBlob writes a stage-0 index entry for path, which drops the unmerged
// stages. The mode is taken from the existing index entries.
func (e *Executor) StageBlob(ctx context.Context, repoID, path, blobID string) error {
	if _, err := worktreePath(repoID, path); err != nil {
		return err
	}
	if blobID == "" {
		return fmt.Errorf("stage %s: empty blob id", path)
	}

	entries, err := e.indexEntries(ctx, repoID, path)
	if err != nil {
		return err
	}

	mode := defaultFileMode
	if len(entries) > 0 {
		mode = entries[0].mode
	}

	_, err = e.git(ctx, repoID, "update-index", "--cacheinfo", mode+","+blobID+","+filepath.ToSlash(path))
	return err
}

func (e *Executor) ConflictedFiles(ctx context.Context, repoID string) ([]string, error) {
	out, err := e.git(ctx, repoID, "diff", "--name-only", "--diff-filter=U", "-z")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, name := range strings.Split(out, "\x00") {
		if name != "" {
			files = append(files, name)
		}
	}
	return files, nil
}

func (e *Executor) IndexBlob(ctx context.Context, repoID, path string) (string, error) {
	if _, err := worktreePath(repoID, path); err != nil {
		return "", err
	}

	entries, err := e.indexEntries(ctx, repoID, path)
	if err != nil {
		return "", err
	}
	switch {
	case len(entries) == 0:
		return "", nil
	case len(entries) == 1 && entries[0].stage == "0":
		return entries[0].blob, nil
	default:
		return "", fmt.Errorf("%s is still unmerged", path)
	}
}

func (e *Executor) MergeParents(ctx context.Context, repoID string) (mergeset.Parents, error) {
	head, err := e.git(ctx, repoID, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return mergeset.Parents{}, err
	}

	// -q makes a missing ref exit non-zero without an error message.
	mergeHead, err := e.git(ctx, repoID, "rev-parse", "-q", "--verify", "MERGE_HEAD")
	if err != nil || strings.TrimSpace(mergeHead) == "" {
		return mergeset.Parents{}, ErrNoMerge
	}

	return mergeset.Parents{
		Current:  strings.TrimSpace(head),
		Incoming: strings.TrimSpace(mergeHead),
	}, nil
}

func (e *Executor) MergeMessage(ctx context.Context, repoID string) (string, error) {
	msgPath, err := e.gitDirFile(ctx, repoID, "MERGE_MSG")
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(msgPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read MERGE_MSG: %w", err)
	}
	return stripComments(string(data)), nil
}

// CreateMergeCommit verifies the staged blobs are what the index holds, then
// writes the tree, commits it with both parents, and moves HEAD from the
// current tip. The merge state files are removed afterwards.
func (e *Executor) CreateMergeCommit(ctx context.Context, repoID string, parents mergeset.Parents, staged []mergeset.File, message string) (string, error) {
	if parents.Current == "" || parents.Incoming == "" {
		return "", fmt.Errorf("merge commit needs two parents")
	}
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("merge commit needs a message")
	}

	for _, f := range staged {
		entries, err := e.indexEntries(ctx, repoID, f.Path)
		if err != nil {
			return "", err
		}
		// an empty blob records a conflict resolved by deleting the path
		if f.BlobID == "" {
			if len(entries) != 0 {
				return "", fmt.Errorf("%w: %s", ErrIndexMismatch, f.Path)
			}
			continue
		}
		if len(entries) != 1 || entries[0].stage != "0" || entries[0].blob != f.BlobID {
			return "", fmt.Errorf("%w: %s", ErrIndexMismatch, f.Path)
		}
	}

	tree, err := e.git(ctx, repoID, "write-tree")
	if err != nil {
		return "", err
	}

	out, err := e.git(ctx, repoID, "commit-tree", strings.TrimSpace(tree),
		"-p", parents.Current, "-p", parents.Incoming, "-m", message)
	if err != nil {
		return "", err
	}
	commit := strings.TrimSpace(out)

	reflog := "commit (merge): " + firstLine(message)
	if _, err := e.git(ctx, repoID, "update-ref", "-m", reflog, "HEAD", commit, parents.Current); err != nil {
		return "", err
	}

	// The commit exists and HEAD points at it; leftover merge state is
	// cleaned up best-effort.
	_, _ = e.git(ctx, repoID, "update-ref", "-d", "MERGE_HEAD")
	for _, name := range []string{"MERGE_MSG", "MERGE_MODE"} {
		if p, err := e.gitDirFile(ctx, repoID, name); err == nil {
			_ = os.Remove(p)
		}
	}

	return commit, nil
}

type indexEntry struct {
	mode  string
	blob  string
	stage string
}

// indexEntries parses `git ls-files --stage` for one path.
// Format: "<mode> <object> <stage>\t<path>".
func (e *Executor) indexEntries(ctx context.Context, repoID, path string) ([]indexEntry, error) {
	out, err := e.git(ctx, repoID, "ls-files", "--stage", "--", filepath.ToSlash(path))
	if err != nil {
		return nil, err
	}

	var entries []indexEntry
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		meta, _, ok := strings.Cut(sc.Text(), "\t")
		if !ok {
			continue
		}
		fields := strings.Fields(meta)
		if len(fields) != 3 {
			continue
		}
		entries = append(entries, indexEntry{mode: fields[0], blob: fields[1], stage: fields[2]})
	}
	return entries, sc.Err()
}

// gitDirFile resolves a file inside the git directory, honoring worktrees.
func (e *Executor) gitDirFile(ctx context.Context, repoID, name string) (string, error) {
	out, err := e.git(ctx, repoID, "rev-parse", "--git-path", name)
	if err != nil {
		return "", err
	}
	p := strings.TrimSpace(out)
	if !filepath.IsAbs(p) {
		p = filepath.Join(repoID, p)
	}
	return p, nil
}

// worktreePath joins path onto the worktree root, rejecting absolute paths
// and paths that climb out of it.
func worktreePath(repoID, path string) (string, error) {
	if repoID == "" {
		return "", fmt.Errorf("empty repository id")
	}
	if !filepath.IsLocal(filepath.FromSlash(path)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, path)
	}
	return filepath.Join(repoID, filepath.FromSlash(path)), nil
}

func writeFileAtomic(path string, data []byte) error {
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".mend-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func stripComments(msg string) string {
	var kept []string
	for _, line := range strings.Split(msg, "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
