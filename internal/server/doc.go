// Package server は、HTTPサーバーとハブの各コンポーネントの組み立てを担当します。
//
// 責務:
//   - 設定から端末レジストリ、セッション管理、ファンアウト、画像受信を組み立てる
//   - OpenAPI定義（internal/api）に沿ったginのルーティングとリクエスト検証
//   - 端末の読み取り専用APIの中継
//   - /metrics、/ws、ダッシュボードの配信
//   - グレースフルシャットダウン
//
// 仕様:
//   - ルーターはgin、端末への通信はresty
//   - モーション通知はクールダウン中なら429とRetry-Afterを返す
//   - 画像アップロードはアクティブなセッション、なければ新しいセッションに保存する
package server
