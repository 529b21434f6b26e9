package main

import (
	"flag"
	"fmt"

	_ "github.com/joho/godotenv/autoload"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/config"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/crontab/jobs"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/handler"
	"github.com/yanshicheng/archive-nova/application/archive-api/internal/svc"
	"github.com/yanshicheng/archive-nova/common/handler/errorx"
	middlewarex "github.com/yanshicheng/archive-nova/common/middleware"
	"github.com/yanshicheng/archive-nova/common/vars"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/rest/httpx"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/rest"
)

var configFile = flag.String("f", "etc/archive-api.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c, conf.UseEnv())

	server := rest.MustNewServer(c.RestConf)
	defer server.Stop()

	// 自定义全局中间件
	server.Use(middlewarex.PanicRecoveryMiddleware)

	// 自定义错误
	httpx.SetErrorHandler(errorx.ErrHandler)

	ctx := svc.NewServiceContext(c)
	handler.RegisterHandlers(server, ctx)

	// 注册定时任务（在 ServiceContext 创建之后，避免循环导入）
	jobCount := jobs.SetupCronJobs(ctx, ctx.CronManager)
	logx.Infof("[Crontab] 定时任务注册完成, 成功注册 %d 个任务", jobCount)
	if err := ctx.StartCronManager(); err != nil {
		logx.Errorf("[Crontab] 启动定时任务失败: %v", err)
	}
	// 优雅退出时停止定时任务
	proc.AddShutdownListener(ctx.Stop)

	fmt.Printf("Starting %s %s at %s:%d...\n", vars.ProjectName, vars.ProjectVer, c.Host, c.Port)
	server.Start()
}
