package service

import "errors"

// 业务层通用错误，边缘层（REST handler / ws 帧路由）据此映射状态码或错误事件。
var (
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalid             = errors.New("invalid request")
)
