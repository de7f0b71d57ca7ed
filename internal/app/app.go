package app

import (
	"ai_interview_backend/internal/config"
	"ai_interview_backend/internal/controller"
	"ai_interview_backend/internal/repository"
	"ai_interview_backend/internal/service"
	"ai_interview_backend/pkg/database"
	"ai_interview_backend/pkg/logger"
	"ai_interview_backend/pkg/monitoring"
	"ai_interview_backend/pkg/security"
	"ai_interview_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services
	cron     *cron.Cron
}

type repositories struct {
	user      *repository.UserRepository
	job       *repository.JobRepository
	result    *repository.ResultRepository
	interview *repository.InterviewRepository
	proctor   *repository.ProctorRepository
}

type services struct {
	auth      *service.AuthService
	storage   *service.StorageService
	ai        *service.AIService
	interview *service.InterviewService
	proctor   *service.ProctorService
	arena     *service.ProctorStateArena
	hub       *service.ProctorHub
}

type controllers struct {
	auth      *controller.AuthController
	interview *controller.InterviewController
	proctor   *controller.ProctorController
	hr        *controller.HRController
	health    *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		job:       repository.NewJobRepository(db),
		result:    repository.NewResultRepository(db),
		interview: repository.NewInterviewRepository(db),
		proctor:   repository.NewProctorRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg, logger.Log)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.ai = service.NewAIService(cfg.AI)

	var generator service.QuestionGenerator
	if cfg.AI.BaseURL != "" && cfg.AI.APIKey != "" {
		generator = service.NewAIQuestionGenerator(s.ai)
	} else {
		logger.Log.Warn("未配置出题服务，题库耗尽后将使用本地兜底题")
	}

	s.arena = service.NewProctorStateArena()
	s.hub = service.NewProctorHub(rdb)
	go s.hub.Run()

	s.interview = service.NewInterviewService(
		cfg, repos.user, repos.job, repos.result, repos.interview,
		generator, s.arena, rdb, logger.Log,
	)

	var detector service.FaceDetector = service.NoopFaceDetector{}
	if cfg.Proctor.CascadeFile != "" {
		d, err := service.NewPigoFaceDetector(cfg.Proctor.CascadeFile)
		if err != nil {
			logger.Log.Warn("级联模型加载失败，人脸检查降级",
				zap.String("cascadeFile", cfg.Proctor.CascadeFile), zap.Error(err))
		} else {
			detector = d
		}
	} else {
		logger.Log.Warn("未配置级联模型，人脸检查降级")
	}

	s.proctor = service.NewProctorService(
		cfg, repos.interview, repos.proctor,
		service.NewFrameAnalyzer(detector), s.arena, s.storage, s.hub, logger.Log,
	)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth, s.storage),
		interview: controller.NewInterviewController(s.interview),
		proctor:   controller.NewProctorController(s.proctor, s.interview),
		hr:        controller.NewHRController(repos.job, repos.result, s.interview, s.proctor, s.hub),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 10000
	}
	windowMinutes := cfg.RateLimit.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 1
	}
	router.Use(security.RateLimiter(maxRequests, time.Duration(windowMinutes)*time.Minute))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 定时任务：监考内存状态回收 + 超时会话收尾
func (a *App) startBackgroundTasks(s *services) {
	a.cron = cron.New()

	a.cron.AddFunc("@every 1m", func() {
		if removed := s.arena.EvictIdle(time.Duration(a.Config.Proctor.StateIdleMinutes) * time.Minute); removed > 0 {
			logger.Log.Info("回收空闲监考状态", zap.Int("count", removed))
		}
	})

	a.cron.AddFunc("@every 1m", func() {
		if closed := s.interview.CompleteStaleSessions(2 * time.Minute); closed > 0 {
			logger.Log.Info("收尾超时会话", zap.Int("count", closed))
		}
	})

	a.cron.Start()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis 缺席时锁与推送走进程内兜底，不阻止启动
		logger.Log.Warn("Redis 不可用，会话锁与事件推送退化为单实例模式", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, repos, db, rdb)

	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		_, err := tracing.InitTracer("interview-platform", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if a.cron != nil {
		a.cron.Stop()
	}
	if a.services != nil && a.services.hub != nil {
		a.services.hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
