package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var onlyOneSignalHandler = make(chan struct{})

// SetupSignalHandler 注册 SIGINT/SIGTERM 信号处理，返回关闭用 context。
// 第一次收到信号时取消 context，第二次直接退出进程。
func SetupSignalHandler() context.Context {
	close(onlyOneSignalHandler) // 只允许调用一次

	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()

	return ctx
}
