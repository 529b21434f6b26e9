package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/yanshicheng/archive-nova/common/handler/errorx"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// PanicRecoveryMiddleware 捕获 handler 中的 panic，统一返回 500
func PanicRecoveryMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logx.WithContext(r.Context()).Errorf("请求处理 panic, path=%s, panic=%v\n%s",
					r.URL.Path, rec, debug.Stack())
				httpx.ErrorCtx(r.Context(), w, errorx.Msg("服务内部错误"))
			}
		}()
		next(w, r)
	}
}
