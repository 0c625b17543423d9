// Package eino 以全局回调记录生成链路中每次模型与 Embedding 调用的指标和 span
package eino

import (
	"sync/atomic"

	einocb "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
)

var installed atomic.Bool

// Init 安装全局回调；重复调用只生效一次，返回本次是否安装
func Init() bool {
	if !installed.CompareAndSwap(false, true) {
		return false
	}
	einocb.AppendGlobalHandlers(cbtemplate.NewHandlerHelper().
		ChatModel(chatModelHandler()).
		Embedding(embeddingHandler()).
		Handler())
	return true
}
