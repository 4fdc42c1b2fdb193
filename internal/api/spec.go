// Package api はHTTP APIの契約（OpenAPI定義、リクエスト/レスポンス型、ルーティング）を提供する
package api

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var rawSpec []byte

// RawSpec は埋め込まれたOpenAPI定義（YAML）を返す
func RawSpec() []byte {
	return rawSpec
}

// GetSwagger は埋め込まれたOpenAPI定義を読み込み、検証して返す
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("OpenAPI定義の読み込みに失敗: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("OpenAPI定義が不正です: %w", err)
	}
	return doc, nil
}
