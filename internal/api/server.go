package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// ヘルスチェック
	// (GET /health)
	HealthCheck(c *gin.Context)
	// モーション検知の通知
	// (POST /api/motion_detected)
	MotionDetected(c *gin.Context)
	// クールダウンを無視して全端末へ撮影を指示する
	// (POST /api/trigger_capture)
	TriggerCapture(c *gin.Context)
	// 端末からの画像アップロード
	// (POST /api/receive_image)
	ReceiveImage(c *gin.Context)
	// 端末の生存通知
	// (POST /api/heartbeat)
	PostHeartbeat(c *gin.Context)
	// 端末ごとの生存状態
	// (GET /api/heartbeats)
	ListHeartbeats(c *gin.Context)
	// アクティブなセッション
	// (GET /api/session)
	GetCurrentSession(c *gin.Context)
	// 保存済みセッションの一覧
	// (GET /api/sessions)
	ListSessions(c *gin.Context)
	// セッションに保存された画像の一覧
	// (GET /api/sessions/{session_id}/images)
	ListSessionImages(c *gin.Context, sessionId string)
	// 登録済みの端末
	// (GET /api/devices)
	ListDevices(c *gin.Context)
	// 端末のヘルス情報を中継する
	// (GET /api/health/{device_id})
	GetDeviceHealth(c *gin.Context, deviceId int)
	// 端末のネットワーク設定を中継する
	// (GET /api/network_settings/{device_id})
	GetDeviceNetworkSettings(c *gin.Context, deviceId int)
	// 端末のNTP同期状態を中継する
	// (GET /api/ntp_check/{device_id})
	GetDeviceNtpCheck(c *gin.Context, deviceId int)
	// 端末のカメラ状態を中継する
	// (GET /api/camera_check/{device_id})
	GetDeviceCameraCheck(c *gin.Context, deviceId int)
	// 1台の端末で撮影し、画像を返す
	// (GET /api/take_photo/{device_id})
	TakeDevicePhoto(c *gin.Context, deviceId int)

	// (GET /api/take_photos_all)
	TakeAllPhotos(c *gin.Context)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandler       func(*gin.Context, error, int)
}

// MiddlewareFunc はハンドラの前に実行される
type MiddlewareFunc func(c *gin.Context)

func (siw *ServerInterfaceWrapper) runMiddlewares(c *gin.Context) bool {
	for _, middleware := range siw.HandlerMiddlewares {
		middleware(c)
		if c.IsAborted() {
			return false
		}
	}
	return true
}

// HealthCheck operation middleware
func (siw *ServerInterfaceWrapper) HealthCheck(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.HealthCheck(c)
	}
}

// MotionDetected operation middleware
func (siw *ServerInterfaceWrapper) MotionDetected(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.MotionDetected(c)
	}
}

// TriggerCapture operation middleware
func (siw *ServerInterfaceWrapper) TriggerCapture(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.TriggerCapture(c)
	}
}

// ReceiveImage operation middleware
func (siw *ServerInterfaceWrapper) ReceiveImage(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.ReceiveImage(c)
	}
}

// PostHeartbeat operation middleware
func (siw *ServerInterfaceWrapper) PostHeartbeat(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.PostHeartbeat(c)
	}
}

// ListHeartbeats operation middleware
func (siw *ServerInterfaceWrapper) ListHeartbeats(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.ListHeartbeats(c)
	}
}

// GetCurrentSession operation middleware
func (siw *ServerInterfaceWrapper) GetCurrentSession(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.GetCurrentSession(c)
	}
}

// ListSessions operation middleware
func (siw *ServerInterfaceWrapper) ListSessions(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.ListSessions(c)
	}
}

// ListSessionImages operation middleware
func (siw *ServerInterfaceWrapper) ListSessionImages(c *gin.Context) {
	var sessionId string

	err := runtime.BindStyledParameterWithOptions("simple", "session_id", c.Param("session_id"), &sessionId, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("Invalid format for parameter session_id: %w", err), http.StatusBadRequest)
		return
	}

	if siw.runMiddlewares(c) {
		siw.Handler.ListSessionImages(c, sessionId)
	}
}

// ListDevices operation middleware
func (siw *ServerInterfaceWrapper) ListDevices(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.ListDevices(c)
	}
}

// bindDeviceID は device_id パスパラメータを整数として取り出す
func (siw *ServerInterfaceWrapper) bindDeviceID(c *gin.Context) (int, bool) {
	var deviceId int

	err := runtime.BindStyledParameterWithOptions("simple", "device_id", c.Param("device_id"), &deviceId, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("Invalid format for parameter device_id: %w", err), http.StatusBadRequest)
		return 0, false
	}

	return deviceId, siw.runMiddlewares(c)
}

// GetDeviceHealth operation middleware
func (siw *ServerInterfaceWrapper) GetDeviceHealth(c *gin.Context) {
	if id, ok := siw.bindDeviceID(c); ok {
		siw.Handler.GetDeviceHealth(c, id)
	}
}

// GetDeviceNetworkSettings operation middleware
func (siw *ServerInterfaceWrapper) GetDeviceNetworkSettings(c *gin.Context) {
	if id, ok := siw.bindDeviceID(c); ok {
		siw.Handler.GetDeviceNetworkSettings(c, id)
	}
}

// GetDeviceNtpCheck operation middleware
func (siw *ServerInterfaceWrapper) GetDeviceNtpCheck(c *gin.Context) {
	if id, ok := siw.bindDeviceID(c); ok {
		siw.Handler.GetDeviceNtpCheck(c, id)
	}
}

// GetDeviceCameraCheck operation middleware
func (siw *ServerInterfaceWrapper) GetDeviceCameraCheck(c *gin.Context) {
	if id, ok := siw.bindDeviceID(c); ok {
		siw.Handler.GetDeviceCameraCheck(c, id)
	}
}

// TakeDevicePhoto operation middleware
func (siw *ServerInterfaceWrapper) TakeDevicePhoto(c *gin.Context) {
	if id, ok := siw.bindDeviceID(c); ok {
		siw.Handler.TakeDevicePhoto(c, id)
	}
}

// TakeAllPhotos operation middleware
func (siw *ServerInterfaceWrapper) TakeAllPhotos(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.TakeAllPhotos(c)
	}
}

// GinServerOptions provides options for the Gin server.
type GinServerOptions struct {
	BaseURL      string
	Middlewares  []MiddlewareFunc
	ErrorHandler func(*gin.Context, error, int)
}

// RegisterHandlers creates http.Handler with routing matching the OpenAPI definition.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, GinServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router gin.IRouter, si ServerInterface, options GinServerOptions) {
	errorHandler := options.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(c *gin.Context, err error, statusCode int) {
			c.JSON(statusCode, gin.H{"error": err.Error()})
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandler:       errorHandler,
	}

	router.GET(options.BaseURL+"/health", wrapper.HealthCheck)
	router.POST(options.BaseURL+"/api/motion_detected", wrapper.MotionDetected)
	router.POST(options.BaseURL+"/api/trigger_capture", wrapper.TriggerCapture)
	router.POST(options.BaseURL+"/api/receive_image", wrapper.ReceiveImage)
	router.POST(options.BaseURL+"/api/heartbeat", wrapper.PostHeartbeat)
	router.GET(options.BaseURL+"/api/heartbeats", wrapper.ListHeartbeats)
	router.GET(options.BaseURL+"/api/session", wrapper.GetCurrentSession)
	router.GET(options.BaseURL+"/api/sessions", wrapper.ListSessions)
	router.GET(options.BaseURL+"/api/sessions/:session_id/images", wrapper.ListSessionImages)
	router.GET(options.BaseURL+"/api/devices", wrapper.ListDevices)
	router.GET(options.BaseURL+"/api/health/:device_id", wrapper.GetDeviceHealth)
	router.GET(options.BaseURL+"/api/network_settings/:device_id", wrapper.GetDeviceNetworkSettings)
	router.GET(options.BaseURL+"/api/ntp_check/:device_id", wrapper.GetDeviceNtpCheck)
	router.GET(options.BaseURL+"/api/camera_check/:device_id", wrapper.GetDeviceCameraCheck)
	router.GET(options.BaseURL+"/api/take_photo/:device_id", wrapper.TakeDevicePhoto)
	router.GET(options.BaseURL+"/api/take_photos_all", wrapper.TakeAllPhotos)
}
