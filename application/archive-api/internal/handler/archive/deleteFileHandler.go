package archive

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/logic/archive"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/types"
	"github.com/yanshicheng/archive-nova/common/handler/errorx"
	"github.com/yanshicheng/archive-nova/common/verify"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// 删除归档
func DeleteFileHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.DeleteFileRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.ParamErr, err.Error()))
			return
		}
		if err := svcCtx.Validator.Validate.StructCtx(r.Context(), &req); err != nil {
			strErr := verify.RemoveTopSaStr(err.(validator.ValidationErrors), svcCtx.Validator.Translator)
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.ParamErr, strErr))
			return
		}
		l := archive.NewDeleteFileLogic(r.Context(), svcCtx)
		resp, err := l.DeleteFile(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
