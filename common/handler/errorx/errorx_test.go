package errorx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yanshicheng/archive-nova/common/handler/errorx/types"
)

func TestErrHandlerStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int32
	}{
		{"session not found", New(SessionNotFound, "会话不存在"), http.StatusBadRequest, SessionNotFound},
		{"not found", New(NotFound, "记录不存在"), http.StatusNotFound, NotFound},
		{"persistence", New(PersistenceErr, "写入失败"), http.StatusInternalServerError, PersistenceErr},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, ServerErr},
		{"wrapped", fmt.Errorf("ctx: %w", New(ParamErr, "bad")), http.StatusBadRequest, ParamErr},
		{"odd code", New(7, "odd"), http.StatusInternalServerError, 7},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := ErrHandler(tc.err)
			assert.Equal(t, tc.status, status)
			s, ok := body.(types.Status)
			assert.True(t, ok)
			assert.False(t, s.Success)
			assert.Equal(t, tc.code, s.Code)
			assert.NotEmpty(t, s.Message)
		})
	}
}
