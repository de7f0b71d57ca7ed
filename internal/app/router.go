package app

import (
	"ai_interview_backend/docs"
	"ai_interview_backend/internal/config"
	"ai_interview_backend/internal/middleware"
	"ai_interview_backend/internal/model"
	"ai_interview_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由（无需登录）
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/me", c.auth.Me)

		// 候选人接口
		candidate := authGroup.Group("/")
		candidate.Use(middleware.RoleMiddleware(model.Candidate))
		{
			candidate.POST("/resume", c.auth.UploadResume)
			candidate.POST("/interview/sessions", c.interview.StartSession)
			candidate.POST("/interview/sessions/:id/questions/:questionId/answer", c.interview.SubmitAnswer)
			candidate.POST("/interview/sessions/:id/frames", c.proctor.UploadFrame)
		}

		// 会话查看：候选人只能看自己的，HR 不受限，控制器内判权
		authGroup.GET("/interview/sessions/:id", c.interview.GetSession)

		// HR 接口
		hr := authGroup.Group("/hr")
		hr.Use(middleware.RoleMiddleware(model.HR))
		{
			hr.POST("/jobs", c.hr.CreateJob)
			hr.GET("/jobs", c.hr.ListJobs)
			hr.GET("/jobs/:jobId/results", c.hr.ListResults)
			hr.POST("/results", c.hr.CreateResult)
			hr.PUT("/results/:id/shortlist", c.hr.Shortlist)
			hr.GET("/sessions/:id/report", c.hr.SessionReport)
			hr.GET("/sessions/:id/proctoring", c.hr.ProctorTimeline)
			hr.GET("/sessions/:id/live", c.hr.WatchLive)
		}
	}
}
