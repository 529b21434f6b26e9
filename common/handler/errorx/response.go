package errorx

import (
	"github.com/yanshicheng/archive-nova/common/handler/errorx/types"
)

func ErrHandler(err error) (int, any) {
	code := CodeFromError(err)
	return code.HTTPStatus(), types.Status{
		Success: false,
		Code:    int32(code.Code()),
		Message: code.Message(),
	}
}
