package archive

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/logic/archive"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/types"
	"github.com/yanshicheng/archive-nova/common/handler/errorx"
	"github.com/yanshicheng/archive-nova/common/verify"
	"github.com/zeromicro/go-zero/rest/httpx"
)

// 归档列表
func GetFilesHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.GetFilesRequest
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.ParamErr, err.Error()))
			return
		}
		// 设置默认值
		defaults.SetDefaults(&req)
		// validator验证
		if err := svcCtx.Validator.Validate.StructCtx(r.Context(), &req); err != nil {
			strErr := verify.RemoveTopSaStr(err.(validator.ValidationErrors), svcCtx.Validator.Translator)
			httpx.ErrorCtx(r.Context(), w, errorx.New(errorx.ParamErr, strErr))
			return
		}
		l := archive.NewGetFilesLogic(r.Context(), svcCtx)
		resp, err := l.GetFiles(&req)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
		} else {
			httpx.OkJsonCtx(r.Context(), w, resp)
		}
	}
}
