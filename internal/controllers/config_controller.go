package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vigilo/proctor_backend_v1/internal/config"
)

// ConfigController exposes the knobs the exam client and worker need before
// they authenticate: version floor and capture pacing. Thresholds stay
// server-side.
type ConfigController struct {
	Cfg *config.Config
}

func (cc *ConfigController) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"min_worker_version":    cc.Cfg.MinWorkerVersion,
		"capture_frames":        cc.Cfg.CaptureFrames,
		"capture_frame_delay":   cc.Cfg.CaptureFrameDelay.Milliseconds(),
		"feed_stale_after":      cc.Cfg.FeedStaleAfter.Milliseconds(),
		"silent_check_interval": cc.Cfg.SilentCheckInterval.Milliseconds(),
		"schema_version":        1,
	})
}
