package svc

import "errors"

// ErrFeedInitFailed 错误：价格源初始化失败
var ErrFeedInitFailed = errors.New("feed initialization failed")

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

// ErrNotifierInitFailed 错误：通知通道初始化失败
var ErrNotifierInitFailed = errors.New("notifier initialization failed")
