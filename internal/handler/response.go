// Package handler HTTP 处理器；响应统一为 {success, data} 或 {success:false, error}
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondOK(c *gin.Context, data any) {
	respond(c, http.StatusOK, data)
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// pathID 解析 :id 路径参数，失败时已写入 400
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid id parameter")
		return 0, false
	}
	return id, true
}
