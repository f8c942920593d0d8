// Package transfer copies finished chunk trees to an external destination
// with checksum verification and then moves them out of the output folder.
package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// DefaultMoveDir is where copied files are moved after a verified copy.
const DefaultMoveDir = "copied_mp3"

// Static errors for transfers.
var (
	// ErrSourceNotDir is returned when the source root is missing or not a directory.
	ErrSourceNotDir = errors.New("transfer: source directory not found")
	// ErrDestNotDir is returned when the copy destination is missing or not a directory.
	ErrDestNotDir = errors.New("transfer: destination directory not found")
	// ErrChecksumMismatch is returned when a copy does not hash like its source.
	ErrChecksumMismatch = errors.New("transfer: checksum mismatch")
)

// CopyReport summarizes a CopyWithVerify run.
type CopyReport struct {
	Total        int
	Copied       int
	Verified     int
	CopyErrors   int
	VerifyErrors int
}

// OK reports whether every file was copied and verified.
func (r CopyReport) OK() bool {
	return r.CopyErrors == 0 && r.VerifyErrors == 0
}

// MoveReport summarizes a MoveTree run.
type MoveReport struct {
	Total   int
	Moved   int
	Missing int
	Errors  int
}

// OK reports whether every file was moved.
func (r MoveReport) OK() bool {
	return r.Errors == 0
}

// Transferer copies and moves directory trees.
type Transferer struct {
	logger *slog.Logger
	walk   walkFunc
}

// walkFunc matches filepath.WalkDir.
type walkFunc func(root string, fn fs.WalkDirFunc) error

// New creates a Transferer.
func New(logger *slog.Logger) *Transferer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transferer{logger: logger, walk: filepath.WalkDir}
}

// CopyWithVerify copies every file below src into the same relative path
// below dst and compares SHA-256 digests of both sides. dst must already
// exist, so an unmounted drive is reported instead of silently created.
func (t *Transferer) CopyWithVerify(ctx context.Context, src, dst string) (CopyReport, error) {
	var report CopyReport
	if !isDir(src) {
		return report, fmt.Errorf("%w: %s", ErrSourceNotDir, src)
	}
	if !isDir(dst) {
		return report, fmt.Errorf("%w: %s", ErrDestNotDir, dst)
	}

	files, unreadable, err := listFiles(src, t.walk)
	if err != nil {
		return report, err
	}
	// unlisted files cannot be verified, so the copy is never OK
	for _, dir := range unreadable {
		report.CopyErrors++
		t.logger.Error("cannot read source directory", slog.String("dir", dir))
	}
	report.Total = len(files) + len(unreadable)
	t.logger.Info("copying files", slog.String("from", src), slog.String("to", dst), slog.Int("files", len(files)))

	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("transfer: %w", err)
		}
		from, to := filepath.Join(src, rel), filepath.Join(dst, rel)
		logger := t.logger.With(slog.String("file", rel), slog.Int("n", i+1), slog.Int("of", len(files)))

		if err := copyFile(from, to); err != nil {
			report.CopyErrors++
			logger.Error("copy failed", slog.String("error", err.Error()))
			continue
		}
		report.Copied++

		if err := verify(from, to); err != nil {
			report.VerifyErrors++
			logger.Error("verification failed", slog.String("error", err.Error()))
			continue
		}
		report.Verified++
		logger.Debug("copied and verified")
	}

	t.logger.Info("copy finished",
		slog.Int("total", report.Total),
		slog.Int("copied", report.Copied),
		slog.Int("verified", report.Verified),
		slog.Int("copy_errors", report.CopyErrors),
		slog.Int("verify_errors", report.VerifyErrors),
	)
	return report, nil
}

// MoveTree moves every file below src into the same relative path below dst,
// creating dst as needed. Emptied source directories are left in place.
func (t *Transferer) MoveTree(ctx context.Context, src, dst string) (MoveReport, error) {
	var report MoveReport
	if !isDir(src) {
		return report, fmt.Errorf("%w: %s", ErrSourceNotDir, src)
	}
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return report, fmt.Errorf("transfer: create %s: %w", dst, err)
	}

	files, unreadable, err := listFiles(src, t.walk)
	if err != nil {
		return report, err
	}
	for _, dir := range unreadable {
		report.Errors++
		t.logger.Error("cannot read source directory, left in place", slog.String("dir", dir))
	}
	report.Total = len(files) + len(unreadable)
	t.logger.Info("moving files", slog.String("from", src), slog.String("to", dst), slog.Int("files", len(files)))

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("transfer: %w", err)
		}
		from, to := filepath.Join(src, rel), filepath.Join(dst, rel)

		if _, err := os.Stat(from); errors.Is(err, fs.ErrNotExist) {
			report.Missing++
			t.logger.Warn("source vanished, skipping", slog.String("file", rel))
			continue
		}
		if err := moveFile(from, to); err != nil {
			report.Errors++
			t.logger.Error("move failed", slog.String("file", rel), slog.String("error", err.Error()))
			continue
		}
		report.Moved++
	}

	t.logger.Info("move finished",
		slog.Int("total", report.Total),
		slog.Int("moved", report.Moved),
		slog.Int("errors", report.Errors),
	)
	return report, nil
}

// CopyAndMove runs CopyWithVerify and, only when it fully succeeds, moves
// the source tree into moveDir.
func (t *Transferer) CopyAndMove(ctx context.Context, src, dst, moveDir string) (CopyReport, MoveReport, error) {
	copied, err := t.CopyWithVerify(ctx, src, dst)
	if err != nil {
		return copied, MoveReport{}, err
	}
	if !copied.OK() {
		t.logger.Warn("copy incomplete, files stay in place", slog.String("dir", src))
		return copied, MoveReport{}, nil
	}
	moved, err := t.MoveTree(ctx, src, moveDir)
	return copied, moved, err
}

// ListFiles returns the paths of all regular files below root, relative to
// root and sorted. Subdirectories that cannot be read are skipped and
// returned in unreadable; only an unreadable root is an error.
func ListFiles(root string) (files, unreadable []string, err error) {
	return listFiles(root, filepath.WalkDir)
}

func listFiles(root string, walk walkFunc) (files, unreadable []string, err error) {
	err = walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			rel, _ := filepath.Rel(root, path)
			unreadable = append(unreadable, rel)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("transfer: list %s: %w", root, err)
	}
	sort.Strings(files)
	return files, unreadable, nil
}

// SHA256File returns the hex SHA-256 digest of the file at path.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func verify(a, b string) error {
	ha, err := SHA256File(a)
	if err != nil {
		return fmt.Errorf("hash source: %w", err)
	}
	hb, err := SHA256File(b)
	if err != nil {
		return fmt.Errorf("hash copy: %w", err)
	}
	if ha != hb {
		return fmt.Errorf("%w: %s != %s", ErrChecksumMismatch, ha, hb)
	}
	return nil
}

// copyFile copies contents, permissions and modification time.
func copyFile(from, to string) error {
	info, err := os.Stat(from)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o750); err != nil {
		return err
	}

	in, err := os.Open(from) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(to, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(to, info.ModTime(), info.ModTime())
}

// moveFile renames, falling back to copy and delete across filesystems.
func moveFile(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o750); err != nil {
		return err
	}
	if err := os.Rename(from, to); err == nil {
		return nil
	}
	if err := copyFile(from, to); err != nil {
		return err
	}
	return os.Remove(from)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
