package model

import "github.com/zeromicro/go-zero/core/stores/sqlx"

var ErrNotFound = sqlx.ErrNotFound

const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
)
