package server

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed dist/index.html
var embedFS embed.FS

// serveDashboard は埋め込みのダッシュボードを返す
func serveDashboard(c *gin.Context) {
	data, err := embedFS.ReadFile("dist/index.html")
	if err != nil {
		c.String(http.StatusInternalServerError, "ダッシュボードの読み込みに失敗しました")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}
