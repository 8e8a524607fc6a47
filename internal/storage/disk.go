package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"contentapi/internal/config"
)

// tempPrefix marks in-flight uploads. Hidden names are never listed or addressable.
const tempPrefix = ".upload-"

var errInvalidKey = fmt.Errorf("invalid key: %w", ErrObjectNotFound)

// diskStorage implements Storage on a local directory tree.
// Writes go to a hidden temp file that is hard-linked into place, so readers only ever see
// complete payloads and an existing name is never replaced.
type diskStorage struct {
	root string
}

// NewDisk creates the root directory and the given subdirectories, then returns a
// Storage rooted there.
func NewDisk(cfg config.StorageConfig, subdirs ...string) (Storage, error) {
	if cfg.UploadDir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	root, err := filepath.Abs(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload directory: %w", err)
	}
	for _, dir := range append([]string{""}, subdirs...) {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create upload directory: %w", err)
		}
	}
	return &diskStorage{root: root}, nil
}

// resolve maps a key to a path inside root. Empty, absolute, hidden and dot segments are
// rejected so a key can never escape the root or address a temp file.
func (d *diskStorage) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.ContainsAny(key, "\\\x00") {
		return "", errInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || strings.HasPrefix(seg, ".") {
			return "", errInvalidKey
		}
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

// Put streams r into a temp file next to the destination and links it into place.
func (d *diskStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	dst, err := d.resolve(key)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put %q: invalid key", key)
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ObjectInfo{}, fmt.Errorf("create directory: %w", err)
	}
	if _, err := os.Lstat(dst); err == nil {
		return ObjectInfo{}, ErrObjectExists
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("create temp file: %w", err)
	}
	// After a successful link the payload lives on under dst; on failure this is the cleanup.
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		return ObjectInfo{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return ObjectInfo{}, fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return ObjectInfo{}, fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return ObjectInfo{}, fmt.Errorf("close %s: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ObjectInfo{}, ErrObjectExists
		}
		return ObjectInfo{}, fmt.Errorf("commit %s: %w", key, err)
	}

	info := ObjectInfo{
		Key:         key,
		Size:        n,
		ContentType: opt.ContentType,
		Metadata:    opt.Metadata,
	}
	if st, err := os.Stat(dst); err == nil {
		info.LastModified = st.ModTime()
	}
	return info, nil
}

// Get opens a payload for streaming.
func (d *diskStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	p, err := d.resolve(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, ObjectInfo{}, mapNotExist(err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, err
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, ObjectInfo{}, ErrObjectNotFound
	}
	return f, fileInfo(key, st), nil
}

// Stat returns an object's size and modification time.
func (d *diskStorage) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	p, err := d.resolve(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	st, err := os.Lstat(p)
	if err != nil {
		return ObjectInfo{}, mapNotExist(err)
	}
	if !st.Mode().IsRegular() {
		return ObjectInfo{}, ErrObjectNotFound
	}
	return fileInfo(key, st), nil
}

// List reads one directory. A missing directory lists as empty.
func (d *diskStorage) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	prefix = strings.Trim(prefix, "/")
	dir := d.root
	if prefix != "" {
		p, err := d.resolve(prefix)
		if err != nil {
			return nil, err
		}
		dir = p
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory %s: %w", prefix, err)
	}

	out := make([]ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(e.Name(), ".") || !e.Type().IsRegular() {
			continue
		}
		st, err := e.Info()
		if err != nil {
			// Deleted between readdir and stat.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		out = append(out, fileInfo(path.Join(prefix, e.Name()), st))
	}
	return out, nil
}

// Delete removes a regular file.
func (d *diskStorage) Delete(ctx context.Context, key string) error {
	p, err := d.resolve(key)
	if err != nil {
		return err
	}
	st, err := os.Lstat(p)
	if err != nil {
		return mapNotExist(err)
	}
	if !st.Mode().IsRegular() {
		return ErrObjectNotFound
	}
	if err := os.Remove(p); err != nil {
		return mapNotExist(err)
	}
	return nil
}

func fileInfo(key string, st fs.FileInfo) ObjectInfo {
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		ContentType:  ct,
		LastModified: st.ModTime(),
	}
}

func mapNotExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrObjectNotFound
	}
	return err
}

// ctxReader stops a copy as soon as the context is cancelled, e.g. when the client
// disconnects mid-upload.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
