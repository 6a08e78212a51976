// internal/media/store.go
package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/TranscriptEditor/internal/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Handle is a revocable playback reference to an uploaded audio file.
type Handle struct {
	Token       string    `json:"token"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store keeps uploaded media in a scratch directory until revoked.
type Store struct {
	BaseDir   string
	URLPrefix string
	MaxSize   int64 // 0 means unlimited

	// per-file locks, token -> *sync.RWMutex
	fileLocks sync.Map

	handles map[string]Handle
	mu      sync.RWMutex
}

// NewStore creates the media directory and an empty store. urlPrefix is the
// public path playback URLs are built on, e.g. "/media".
func NewStore(baseDir, urlPrefix string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建媒体目录失败: %w", err)
	}

	return &Store{
		BaseDir:   baseDir,
		URLPrefix: strings.TrimRight(urlPrefix, "/"),
		MaxSize:   maxSize,
		handles:   make(map[string]Handle),
	}, nil
}

func (s *Store) getFileLock(token string) *sync.RWMutex {
	value, _ := s.fileLocks.LoadOrStore(token, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

func (s *Store) pathFor(token string) string {
	return filepath.Join(s.BaseDir, token+".media")
}

// Put copies r into the store under a fresh token. The content type is
// sniffed for serving only; no format validation happens here.
func (s *Store) Put(name string, r io.Reader) (Handle, error) {
	token := uuid.NewString()
	fullPath := s.pathFor(token)

	lock := s.getFileLock(token)
	lock.Lock()
	defer lock.Unlock()

	tempPath := fullPath + ".tmp"
	tmp, err := os.Create(tempPath)
	if err != nil {
		return Handle{}, fmt.Errorf("创建临时文件失败: %w", err)
	}

	src := r
	if s.MaxSize > 0 {
		src = io.LimitReader(r, s.MaxSize+1)
	}
	size, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()

	if copyErr == nil && s.MaxSize > 0 && size > s.MaxSize {
		copyErr = apperrors.NewTooLargeError(fmt.Sprintf("media file exceeds %d bytes", s.MaxSize), nil)
	}
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(tempPath)
		return Handle{}, copyErr
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(tempPath); err == nil {
		contentType = mtype.String()
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return Handle{}, fmt.Errorf("保存媒体文件失败: %w", err)
	}

	h := Handle{
		Token:       token,
		Name:        filepath.Base(name),
		Size:        size,
		ContentType: contentType,
		URL:         s.URLPrefix + "/" + token,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.handles[token] = h
	s.mu.Unlock()

	return h, nil
}

// Lookup returns the handle for token, if it is still live.
func (s *Store) Lookup(token string) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[token]
	return h, ok
}

// Open opens the stored file for reading. The caller closes it.
func (s *Store) Open(token string) (*os.File, Handle, error) {
	h, ok := s.Lookup(token)
	if !ok {
		return nil, Handle{}, apperrors.NewNotFoundError("media not found", nil)
	}

	lock := s.getFileLock(token)
	lock.RLock()
	defer lock.RUnlock()

	f, err := os.Open(s.pathFor(token))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Handle{}, apperrors.NewNotFoundError("media not found", err)
		}
		return nil, Handle{}, fmt.Errorf("打开媒体文件失败: %w", err)
	}
	return f, h, nil
}

// Revoke removes the handle and its file. Revoking an unknown token is a no-op.
func (s *Store) Revoke(token string) error {
	if token == "" {
		return nil
	}

	s.mu.Lock()
	_, ok := s.handles[token]
	delete(s.handles, token)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	lock := s.getFileLock(token)
	lock.Lock()
	defer func() {
		lock.Unlock()
		s.fileLocks.Delete(token)
	}()

	if err := os.Remove(s.pathFor(token)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除媒体文件失败: %w", err)
	}
	return nil
}

// Count returns the number of live handles.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Purge revokes every handle and removes leftovers from previous runs.
func (s *Store) Purge() error {
	s.mu.RLock()
	tokens := make([]string, 0, len(s.handles))
	for token := range s.handles {
		tokens = append(tokens, token)
	}
	s.mu.RUnlock()

	for _, token := range tokens {
		if err := s.Revoke(token); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return fmt.Errorf("读取媒体目录失败: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".media") || strings.HasSuffix(name, ".tmp")) {
			continue
		}
		os.Remove(filepath.Join(s.BaseDir, name))
	}
	return nil
}
