// Package storage はセッションごとの画像保存領域を管理する
//
// レイアウトは {root}/{session_id}/{ファイル名} のフラットな構造で、
// インデックスファイルは持たずディレクトリ一覧で列挙する。
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrInvalidName はパス区切りなどを含む不正な名前
var ErrInvalidName = errors.New("不正な名前です")

// ErrNotFound はセッションの保存領域が存在しない
var ErrNotFound = errors.New("セッションが見つかりません")

// SessionInfo はセッション保存領域の情報
type SessionInfo struct {
	ID         string    `json:"id"`
	ImageCount int       `json:"image_count"`
	ModTime    time.Time `json:"mod_time"`
}

// ImageInfo は保存済み画像の情報
type ImageInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// FileStore はローカルファイルシステム上のセッションストア
type FileStore struct {
	root string
}

// NewFileStore は新しいFileStoreを作成する
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root は保存先のルートを返す
func (s *FileStore) Root() string {
	return s.root
}

// NamespacePath はセッションの保存先パスを返す（I/Oは行わない）
func (s *FileStore) NamespacePath(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// EnsureNamespace はセッションの保存先ディレクトリを作成する
func (s *FileStore) EnsureNamespace(sessionID string) error {
	if err := validateName(sessionID); err != nil {
		return err
	}
	if err := os.MkdirAll(s.NamespacePath(sessionID), 0755); err != nil {
		return fmt.Errorf("セッションディレクトリの作成に失敗: %w", err)
	}
	return nil
}

// WriteImage は画像をセッションの保存先に書き込み、そのパスを返す
// 同名ファイルは上書きされる
func (s *FileStore) WriteImage(sessionID, name string, data []byte) (string, error) {
	if err := validateName(sessionID); err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}

	dir := s.NamespacePath(sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("セッションディレクトリの作成に失敗: %w", err)
	}

	// 書きかけのファイルが見えないよう一時ファイル経由で置き換える
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("一時ファイルの作成に失敗: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("画像の書き込みに失敗: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("画像の書き込みに失敗: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("画像の保存に失敗: %w", err)
	}

	return path, nil
}

// ListSessions は保存済みセッションを名前順（UUIDv7なので作成順）に返す
func (s *FileStore) ListSessions() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []SessionInfo{}, nil
		}
		return nil, fmt.Errorf("保存先の読み込みに失敗: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		images, err := s.ListImages(entry.Name())
		if err != nil {
			continue
		}

		sessions = append(sessions, SessionInfo{
			ID:         entry.Name(),
			ImageCount: len(images),
			ModTime:    info.ModTime(),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})

	return sessions, nil
}

// ListImages はセッション内の画像を名前順に返す
func (s *FileStore) ListImages(sessionID string) ([]ImageInfo, error) {
	if err := validateName(sessionID); err != nil {
		return nil, err
	}

	dir := s.NamespacePath(sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("セッションディレクトリの読み込みに失敗: %w", err)
	}

	images := make([]ImageInfo, 0, len(entries))
	for _, entry := range entries {
		// 書き込み中の一時ファイルは除外
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		images = append(images, ImageInfo{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Name < images[j].Name
	})

	return images, nil
}

// validateName はファイル名・ディレクトリ名として安全かを検証する
func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
