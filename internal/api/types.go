package api

import (
	"time"
)

// CaptureResultOutcome は端末1台分の撮影結果の種類
type CaptureResultOutcome string

// CaptureResultOutcome の定数定義
const (
	Success      CaptureResultOutcome = "success"
	HttpError    CaptureResultOutcome = "http_error"
	NetworkError CaptureResultOutcome = "network_error"
	Timeout      CaptureResultOutcome = "timeout"
)

// HealthResponseStatus はヘルスチェックの状態
type HealthResponseStatus string

// HealthResponseStatus の定数定義
const (
	Healthy HealthResponseStatus = "healthy"
)

// HeartbeatStatusLiveness は端末の生存状態
type HeartbeatStatusLiveness string

// HeartbeatStatusLiveness の定数定義
const (
	Alive   HeartbeatStatusLiveness = "alive"
	Stale   HeartbeatStatusLiveness = "stale"
	Unknown HeartbeatStatusLiveness = "unknown"
)

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error   string  `json:"error"`
	Message *string `json:"message,omitempty"`
}

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// MotionRequest defines model for MotionRequest.
type MotionRequest struct {
	ClientId *string `json:"client_id,omitempty"`
}

// CaptureResult defines model for CaptureResult.
type CaptureResult struct {
	DeviceId   int                  `json:"device_id"`
	Endpoint   string               `json:"endpoint"`
	Outcome    CaptureResultOutcome `json:"outcome"`
	StatusCode *int                 `json:"status_code,omitempty"`
	Error      *string              `json:"error,omitempty"`
	DurationMs int64                `json:"duration_ms"`
}

// CaptureResponse defines model for CaptureResponse.
type CaptureResponse struct {
	Captures  []CaptureResult `json:"captures"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// MotionResponse defines model for MotionResponse.
type MotionResponse struct {
	Accepted  bool            `json:"accepted"`
	SessionId string          `json:"session_id"`
	Created   bool            `json:"created"`
	Captures  []CaptureResult `json:"captures"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
}

// CooldownResponse defines model for CooldownResponse.
type CooldownResponse struct {
	Error        string `json:"error"`
	Reason       string `json:"reason"`
	RetryAfterMs int64  `json:"retry_after_ms"`
}

// ReceiveImageRequest defines model for ReceiveImageRequest.
type ReceiveImageRequest struct {
	Image    *string `json:"image,omitempty"`
	ClientId *string `json:"client_id,omitempty"`
}

// ReceiveImageResponse defines model for ReceiveImageResponse.
type ReceiveImageResponse struct {
	Status      string  `json:"status"`
	FilePath    string  `json:"file_path"`
	SessionId   string  `json:"session_id"`
	ContentType *string `json:"content_type,omitempty"`
	Size        *int    `json:"size,omitempty"`
}

// HeartbeatRequest defines model for HeartbeatRequest.
type HeartbeatRequest struct {
	ClientId *string `json:"client_id,omitempty"`
}

// HeartbeatStatus defines model for HeartbeatStatus.
type HeartbeatStatus struct {
	ClientId   string                  `json:"client_id"`
	LastSeenAt time.Time               `json:"last_seen_at"`
	Liveness   HeartbeatStatusLiveness `json:"liveness"`
}

// HeartbeatsResponse defines model for HeartbeatsResponse.
type HeartbeatsResponse struct {
	Heartbeats []HeartbeatStatus `json:"heartbeats"`
}

// Session defines model for Session.
type Session struct {
	Id           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	StoragePath  string    `json:"storage_path"`
	IdleDeadline time.Time `json:"idle_deadline"`
}

// StoredSession defines model for StoredSession.
type StoredSession struct {
	Id         string    `json:"id"`
	ImageCount int       `json:"image_count"`
	ModTime    time.Time `json:"mod_time"`
}

// SessionsResponse defines model for SessionsResponse.
type SessionsResponse struct {
	Sessions []StoredSession `json:"sessions"`
}

// StoredImage defines model for StoredImage.
type StoredImage struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ImagesResponse defines model for ImagesResponse.
type ImagesResponse struct {
	SessionId string        `json:"session_id"`
	Images    []StoredImage `json:"images"`
}

// DeviceInfo defines model for DeviceInfo.
type DeviceInfo struct {
	Id       int    `json:"id"`
	ClientId string `json:"client_id"`
	Endpoint string `json:"endpoint"`
}

// DevicesResponse defines model for DevicesResponse.
type DevicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

// DevicePhoto defines model for DevicePhoto.
type DevicePhoto struct {
	ClientId string  `json:"client_id"`
	Error    *string `json:"error,omitempty"`
	Photo    *string `json:"photo,omitempty"`
}

// TakePhotoResponse defines model for TakePhotoResponse.
type TakePhotoResponse struct {
	Status string `json:"status"`
	Photo  string `json:"photo"`
}

// RelayResponse は端末の応答をそのまま中継する
type RelayResponse map[string]interface{}

// MotionDetectedJSONRequestBody defines body for MotionDetected for application/json ContentType.
type MotionDetectedJSONRequestBody = MotionRequest

// ReceiveImageJSONRequestBody defines body for ReceiveImage for application/json ContentType.
type ReceiveImageJSONRequestBody = ReceiveImageRequest

// PostHeartbeatJSONRequestBody defines body for PostHeartbeat for application/json ContentType.
type PostHeartbeatJSONRequestBody = HeartbeatRequest
