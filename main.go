// @title AI 面试平台后端 API
// @version 1.0
// @description 计时面试会话引擎与监考完整性引擎的后端服务。
// @termsOfService http://swagger.io/terms/

// @contact.name API支持
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"ai_interview_backend/internal/app"
	"ai_interview_backend/internal/config"
	"ai_interview_backend/pkg/configwatcher"
	"ai_interview_backend/pkg/logger"
	"flag"
	"log"
)

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if *migrateOnly {
		log.Println("数据库迁移完成，退出程序")
		return
	}

	// 热加载面试与监考的阈值类配置，其余字段需重启生效
	go configwatcher.WatchConfig("configs/config.yaml", cfg, func(newCfg interface{}) {
		reloaded, ok := newCfg.(*config.Config)
		if !ok {
			return
		}
		cfg.Interview = reloaded.Interview
		cfg.Proctor.HighMotionThreshold = reloaded.Proctor.HighMotionThreshold
		cfg.Proctor.MismatchThreshold = reloaded.Proctor.MismatchThreshold
		cfg.Proctor.PeriodicSaveSeconds = reloaded.Proctor.PeriodicSaveSeconds
		cfg.Proctor.StateIdleMinutes = reloaded.Proctor.StateIdleMinutes
		logger.Log.Info("配置已热加载")
	})

	application.Run()
}
