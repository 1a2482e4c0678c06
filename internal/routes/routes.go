package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vigilo/proctor_backend_v1/internal/config"
	"github.com/vigilo/proctor_backend_v1/internal/controllers"
	"github.com/vigilo/proctor_backend_v1/internal/middleware"
	"github.com/vigilo/proctor_backend_v1/internal/proctor"
	"github.com/vigilo/proctor_backend_v1/internal/ws"
)

func Register(r *gin.Engine, db *gorm.DB, cfg *config.Config, orc *proctor.Orchestrator, hubs *ws.Hubs, log *zap.Logger) {
	authCtrl := &controllers.AuthController{
		DB:            db,
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.RefreshJWTSecret,
		AccessTTL:     time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
		RefreshTTL:    time.Duration(cfg.RefreshTokenTTLDays) * 24 * time.Hour,
	}
	adminCtrl := &controllers.AdminController{DB: db}
	sessionCtrl := &controllers.SessionController{Orc: orc, Log: log}
	monitorCtrl := &controllers.MonitoringController{DB: db, Orc: orc}
	enrollCtrl := &controllers.EnrollmentController{DB: db}
	releaseCtrl := &controllers.ReleaseCodeController{DB: db, Orc: orc}
	cfgCtrl := &controllers.ConfigController{Cfg: cfg}

	// Public
	auth := r.Group("/api/v1/auth")
	{
		// Registration restricted to admin; lives under /api/v1/admin/users
		auth.POST("/login", authCtrl.Login)
		auth.POST("/refresh", authCtrl.Refresh)
	}
	r.GET("/api/v1/config/public", cfgCtrl.Get)

	// Protected
	authMW := middleware.AuthMiddleware(db, middleware.AuthConfig{
		JWTSecret:    cfg.JWTSecret,
		JWTExpiresIn: time.Duration(cfg.AccessTokenTTLMinutes) * time.Minute,
	})
	api := r.Group("/api/v1", authMW)
	{
		api.GET("/auth/me", authCtrl.Me)
		api.POST("/auth/logout", authCtrl.Logout)

		// Admin-only
		admin := api.Group("/admin", middleware.RequireRoles("admin"))
		{
			admin.GET("/users", adminCtrl.ListUsers)
			admin.POST("/users", authCtrl.Register) // admin-only registration (supports role/active)
			admin.POST("/users/import", adminCtrl.ImportUsers)
			admin.GET("/users/:user_id", adminCtrl.GetUser)
			admin.PUT("/users/:user_id", adminCtrl.UpdateUser)
			admin.DELETE("/users/:user_id", adminCtrl.DeleteUser)
		}

		// Student session lifecycle
		student := api.Group("/sessions", middleware.RequireRoles("student"))
		{
			student.POST("", sessionCtrl.Start)
			student.GET("/me", sessionCtrl.Status)
			student.POST("/frames", sessionCtrl.Frame)
			student.POST("/enroll", sessionCtrl.Enroll)
			student.POST("/verify", sessionCtrl.Verify)
			student.POST("/signals", sessionCtrl.Signal)
			student.POST("/submit", sessionCtrl.Submit)
			student.GET("/enrollment", enrollCtrl.Mine)
			student.POST("/release", releaseCtrl.Consume)
		}

		// Proctor dashboard (and admin)
		proctorGrp := api.Group("/proctor", middleware.RequireRoles("proctor", "admin"))
		{
			proctorGrp.GET("/live", monitorCtrl.ListLive)
			proctorGrp.GET("/sessions", monitorCtrl.ListSessions)
			proctorGrp.GET("/sessions/:session_id", monitorCtrl.GetSession)
			proctorGrp.POST("/sessions/:session_id/force-submit", monitorCtrl.ForceSubmit)
			proctorGrp.GET("/enrollments/:student_id", enrollCtrl.Get)
			proctorGrp.DELETE("/enrollments/:student_id", enrollCtrl.Delete)

			proctorGrp.POST("/release-codes/generate", releaseCtrl.Generate)
			proctorGrp.GET("/release-codes", releaseCtrl.List)
			proctorGrp.POST("/release-codes/:id/revoke", releaseCtrl.Revoke)
		}

		// Websockets
		api.GET("/ws/proctor", ws.ProctorHandler(hubs.Proctor))
		api.GET("/ws/student", ws.StudentHandler(hubs))
		api.GET("/ws/worker", ws.WorkerHandler(orc, cfg.MinWorkerVersion, log))
	}
}
