package upload

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/logic/upload"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/types"
	"github.com/yanshicheng/archive-nova/common/handler/errorx"
	"github.com/yanshicheng/archive-nova/common/verify"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// 上传分片
func UploadChunkHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// 1. 解析表单参数（multipart/form-data）
		var req types.UploadChunkRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.ParamErr, "参数解析失败: "+err.Error()))
			return
		}

		// 2. 设置默认值并验证
		defaults.SetDefaults(&req)
		if err := svcCtx.Validator.Validate.StructCtx(r.Context(), &req); err != nil {
			strErr := verify.RemoveTopSaStr(err.(validator.ValidationErrors), svcCtx.Validator.Translator)
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.ParamErr, strErr))
			return
		}

		// 3. 调用 Logic（传入 Request 用于读取分片内容）
		l := upload.NewUploadChunkLogic(r.Context(), svcCtx, r)
		resp, err := l.UploadChunk(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
