// Package apiutil HTTP 处理器公共工具
//
// 统一 JSON 响应、错误映射、请求校验和 ID 生成，各业务 Handler 共用。
package apiutil

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"nayaschool/internal/shared/apperr"
	"nayaschool/internal/shared/storage"
)

// 面向用户的错误提示
var userMessages = map[error]string{
	apperr.ErrModuleUnavailable:     "Module is full or unavailable.",
	apperr.ErrEnrolmentLimitReached: "You have reached the maximum of 4 current modules.",
	apperr.ErrForbidden:             "This action is unauthorized.",
	apperr.ErrNotFound:              "Resource not found.",
	apperr.ErrAlreadyCompleted:      "A result has already been recorded for this enrolment.",
	apperr.ErrUnauthorized:          "Unauthenticated.",
}

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError 写入错误响应
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// StatusOf 将业务错误映射为 HTTP 状态码
func StatusOf(err error) int {
	var verr *apperr.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrModuleUnavailable), errors.Is(err, apperr.ErrEnrolmentLimitReached):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyCompleted), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// messageOf 返回可展示给用户的错误信息
func messageOf(err error) string {
	for sentinel, msg := range userMessages {
		if err == sentinel {
			return msg
		}
	}
	for sentinel, msg := range userMessages {
		if errors.Is(err, sentinel) {
			// 带上下文的包装错误保留调用方的说明
			if detail := strings.TrimPrefix(err.Error(), sentinel.Error()+": "); detail != err.Error() {
				return detail
			}
			return msg
		}
	}
	if errors.Is(err, storage.ErrNotFound) {
		return userMessages[apperr.ErrNotFound]
	}
	return err.Error()
}

// WriteErr 按错误类型写入响应；5xx 只记录日志，不向客户端暴露内部细节
func WriteErr(w http.ResponseWriter, err error) {
	status := StatusOf(err)

	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		WriteJSON(w, status, map[string]interface{}{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}

	if status >= http.StatusInternalServerError {
		log.Printf("[api] internal error: %v", err)
		WriteError(w, status, "internal server error")
		return
	}
	WriteError(w, status, messageOf(err))
}

// WantsJSON 客户端是否期望 JSON 响应
//
// 浏览器表单提交（Accept 不含 JSON 且带 Referer）走重定向，其余一律返回 JSON。
func WantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") || strings.Contains(accept, "+json") {
		return true
	}
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return r.Header.Get("Referer") == ""
}

// Respond 成功时按内容协商返回 JSON 或 303 回跳
func Respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if !WantsJSON(r) {
		http.Redirect(w, r, r.Header.Get("Referer"), http.StatusSeeOther)
		return
	}
	WriteJSON(w, status, data)
}
