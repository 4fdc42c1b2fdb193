package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestInit_InvalidLevel(t *testing.T) {
	if _, err := Init(Config{Level: "loud"}); err == nil {
		t.Fatal("無効なログレベルでエラーが期待されました")
	}
}

func TestInit_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	closer, err := Init(Config{Level: "info", File: path})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer closer.Close()

	log := WithComponent("test")
	log.Info().Msg("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ログファイルの読み込みに失敗しました: %v", err)
	}
	if !bytes.Contains(data, []byte(`"component":"test"`)) {
		t.Errorf("componentフィールドがありません: %s", data)
	}
}

func TestWithComponent(t *testing.T) {
	closer, err := Init(Config{Level: "debug"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Errorf("ファイル出力なしのCloseでエラー: %v", err)
	}

	var buf bytes.Buffer
	SetOutput(&buf)

	log := WithComponent("session")
	log.Debug().Str("session_id", "abc").Msg("opened")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSONの解析に失敗しました: %v (%s)", err, buf.String())
	}
	if entry["component"] != "session" {
		t.Errorf("component = %v, want session", entry["component"])
	}
	if entry["session_id"] != "abc" {
		t.Errorf("session_id = %v, want abc", entry["session_id"])
	}
	if entry["level"] != "debug" {
		t.Errorf("level = %v, want debug", entry["level"])
	}
}
