package apiutil

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
)

// ID 前缀
const (
	PrefixUser      = "usr"
	PrefixModule    = "mod"
	PrefixEnrolment = "enr"
)

// GenerateID 生成带前缀的随机 ID
// 格式：prefix-xxxxxxxxxxxx（prefix + 12 字符 hex）
func GenerateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}

// PageParam 解析 ?page=N，缺省或非法时为 1
func PageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
