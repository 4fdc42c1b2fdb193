// Package device はキャプチャ端末（Raspberry Pi）の登録情報と通信を担う
//
// # 責務
// - 起動時に読み込んだ端末一覧の保持（Registry）
// - 端末へのHTTPリクエスト（Client）
//
// # 仕様
// - 端末IDは登録順の1始まりの番号
// - Registryは生成後に変更されないため、ロックなしで並行に参照できる
// - Clientの全リクエストはタイムアウトとcontextで上限が決まる
package device
