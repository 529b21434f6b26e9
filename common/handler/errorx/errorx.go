package errorx

import (
	"errors"
	"net/http"
)

// 通用错误码，前三位表示 HTTP 状态码
const (
	ServerErr = 50000
	ParamErr  = 40000
	NotFound  = 40400

	// 上传会话
	SessionNotFound   = 40010
	InvalidChunkIndex = 40011
	ChunkMismatch     = 40012
	ChunkTooLarge     = 40013

	// 远端存储、持久化、归档流程
	RemoteStoreErr  = 50010
	PersistenceErr  = 50020
	FinalizationErr = 50030
)

type CodeError struct {
	code int
	msg  string
}

func New(code int, msg string) *CodeError {
	return &CodeError{code: code, msg: msg}
}

// Msg 返回服务端通用错误
func Msg(msg string) *CodeError {
	return &CodeError{code: ServerErr, msg: msg}
}

func (e *CodeError) Error() string {
	return e.msg
}

func (e *CodeError) Code() int {
	return e.code
}

func (e *CodeError) Message() string {
	return e.msg
}

// HTTPStatus 由错误码推导 HTTP 状态码
func (e *CodeError) HTTPStatus() int {
	status := e.code / 100
	if status < 400 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}

// FromError 包装任意错误，已是 CodeError 时原样返回
func FromError(err error) *CodeError {
	if err == nil {
		return nil
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce
	}
	return Msg(err.Error())
}

func CodeFromError(err error) *CodeError {
	if ce := FromError(err); ce != nil {
		return ce
	}
	return Msg("未知错误")
}
