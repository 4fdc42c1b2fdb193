// Package session はキャプチャセッションの状態遷移とクールダウンを管理する
//
// # 責務
// - モーションイベントのクールダウン判定
// - セッションの開始・延長・アイドルタイムアウトによる終了
// - 画像受信時のフォールバックセッションの払い出し
//
// # 状態遷移
//
//	NoSession --モーション受付--> Active（アイドルタイマー開始）
//	Active    --モーション受付--> Active（タイマー再設定、IDは同じ）
//	Active    --タイマー発火--->  NoSession（発火したタイマーが最新の場合のみ）
//	NoSession --フォールバック--> Active
//
// # 仕様
// - 全ての状態変更は1つのmutexの内側で行う
// - 保存領域の作成などのI/Oはmutexの外で行う
// - 開始・終了の通知（フック、メトリクス）は遷移の順序どおりに届く
// - タイマーには世代番号を持たせ、延長後に発火した古いタイマーは無視する
package session
