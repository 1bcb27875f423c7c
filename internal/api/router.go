package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 挂载 /metrics 与全部 /api 路由
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/metrics", MetricsAccessMiddleware(), gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/hello", h.Hello)

	requireUser := h.AuthMiddleware()
	requireAdmin := h.AdminMiddleware()
	requireClient := h.ClientMiddleware()

	// 用户
	user := api.Group("/user")
	{
		user.POST("/register", h.Register)
		user.POST("/login", h.Login)
		user.POST("/logout", requireUser, h.Logout)
		user.GET("/info/:id", requireUser, h.GetUserInfo)
		user.POST("/update", requireUser, h.UpdateSelf)
		user.POST("/update/password", requireUser, h.UpdatePassword)
		user.POST("/avatar", requireUser, h.UploadAvatar)

		user.GET("/list", requireAdmin, h.ListUsers)
		user.POST("/ban", requireAdmin, h.BanUser)
		user.POST("/unBan", requireAdmin, h.UnbanUser)
		user.POST("/admin/update", requireAdmin, h.AdminUpdateUser)
		user.POST("/delete", requireAdmin, h.DeleteUser)
	}

	// 服务器列表
	server := api.Group("/server")
	{
		server.GET("/list", requireUser, h.ListServers)
		server.POST("", requireUser, h.CreateServer)
		server.POST("/about", requireUser, h.CreateServerAbout)
		server.GET("/about/multi/:serverId", requireUser, h.ListServerAbouts)
		server.GET("/:serverId", requireUser, h.GetServer)
		server.PUT("/:serverId", requireUser, h.UpdateServer)
		server.DELETE("/:serverId", requireUser, h.DeleteServer)

		admin := server.Group("/admin", requireAdmin)
		admin.GET("/list", h.AdminListServers)
		admin.POST("/audit/:serverId", h.AuditServer)
		admin.POST("/audit/about/:aboutId", h.AuditServerAbout)
		admin.GET("/:serverId", h.AdminGetServer)
		admin.PUT("/:serverId", h.AdminUpdateServer)
		admin.DELETE("/:serverId", h.AdminDeleteServers)

		client := server.Group("/client", requireClient)
		client.GET("/list", h.ClientListServers)
		client.GET("/:serverId", h.ClientGetServer)
	}

	// 设备
	equipment := api.Group("/equipment", requireAdmin)
	{
		equipment.GET("/info", h.ListEquipmentInfo)
		equipment.POST("/info", h.AddEquipmentInfo)
		equipment.GET("/disposition", h.ListEquipmentDispositions)
		equipment.POST("/disposition", h.AddEquipmentDisposition)
		equipment.PUT("/disposition/:infoUUID", h.UpdateEquipmentDisposition)
		equipment.POST("/register", h.AdminRegisterEquipment)
	}
	api.POST("/system/register", requireClient, h.ClientRegisterEquipment)

	// 版本与镜像
	version := api.Group("/version")
	{
		version.GET("/github/mirror", requireAdmin, h.GetMirror)
		version.GET("/github/mirror/list", requireAdmin, h.ListMirrors)
		version.POST("/github/mirror", requireAdmin, h.AddMirror)
		version.GET("/getLatestList", h.GetLatestList)
		version.POST("/getLatest", requireClient, h.GetLatest)
	}
}
