package server

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"capturehub/internal/api"
	"capturehub/internal/config"
	"capturehub/internal/device"
	"capturehub/internal/dispatch"
	"capturehub/internal/events"
	"capturehub/internal/heartbeat"
	"capturehub/internal/intake"
	"capturehub/internal/metrics"
	"capturehub/internal/session"
	"capturehub/internal/storage"
)

// CaptureHubHandler はapi.ServerInterfaceを実装する
type CaptureHubHandler struct {
	config     *config.Config
	registry   *device.Registry
	client     *device.Client
	dispatcher *dispatch.Dispatcher
	store      *storage.FileStore
	sessions   *session.Manager
	intake     *intake.Intake
	heartbeats *heartbeat.Tracker
	metrics    *metrics.Metrics
	hub        *events.Hub
	now        func() time.Time
	log        zerolog.Logger
}

var _ api.ServerInterface = (*CaptureHubHandler)(nil)

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *CaptureHubHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: h.now(),
	})
}

// MotionDetected はモーション検知を受けて全端末へ撮影を指示する
func (h *CaptureHubHandler) MotionDetected(c *gin.Context) {
	var body api.MotionDetectedJSONRequestBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	clientID := stringValue(body.ClientId, "unknown")

	decision := h.sessions.OnMotionEvent(h.now())
	if !decision.Accepted {
		h.log.Info().
			Str("client_id", clientID).
			Dur("retry_after", decision.RetryAfter).
			Msg("クールダウン中のためモーションを無視しました")
		h.hub.Publish(events.TypeMotionRejected, gin.H{
			"client_id":      clientID,
			"reason":         decision.Reason,
			"retry_after_ms": decision.RetryAfter.Milliseconds(),
		})

		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, api.CooldownResponse{
			Error:        "cooldown_active",
			Reason:       decision.Reason,
			RetryAfterMs: decision.RetryAfter.Milliseconds(),
		})
		return
	}

	h.log.Info().
		Str("client_id", clientID).
		Str("session_id", decision.SessionID).
		Bool("created", decision.Created).
		Msg("モーションを検知しました。全端末へ撮影を指示します")

	captures := h.captureAll(c.Request.Context(), decision.SessionID)

	c.JSON(http.StatusOK, api.MotionResponse{
		Accepted:  true,
		SessionId: decision.SessionID,
		Created:   decision.Created,
		Captures:  captures.Captures,
		Succeeded: captures.Succeeded,
		Failed:    captures.Failed,
	})
}

// TriggerCapture はクールダウンもセッションも介さずに全端末へ撮影を指示する
func (h *CaptureHubHandler) TriggerCapture(c *gin.Context) {
	h.log.Info().Msg("手動で全端末へ撮影を指示します")
	c.JSON(http.StatusOK, h.captureAll(c.Request.Context(), ""))
}

// captureAll はファンアウトを実行し、結果をAPIの型に変換する
// 呼び出し元の切断ではキャンセルせず、設定のタイムアウトでのみ打ち切る
func (h *CaptureHubHandler) captureAll(ctx context.Context, sessionID string) api.CaptureResponse {
	results := h.dispatcher.CaptureAll(context.WithoutCancel(ctx), h.registry.Devices(), h.config.Dispatch.Timeout)
	succeeded, failed := dispatch.Summarize(results)

	resp := api.CaptureResponse{
		Captures:  toCaptureResults(results),
		Succeeded: succeeded,
		Failed:    failed,
	}

	h.hub.Publish(events.TypeCaptureCompleted, gin.H{
		"session_id": sessionID,
		"succeeded":  succeeded,
		"failed":     failed,
	})

	return resp
}

// ReceiveImage は端末からアップロードされた画像を保存する
func (h *CaptureHubHandler) ReceiveImage(c *gin.Context) {
	var body api.ReceiveImageJSONRequestBody
	if !bindOptionalJSON(c, &body) {
		return
	}

	stored, err := h.intake.StoreImage(c.Request.Context(), stringValue(body.ClientId, ""), stringValue(body.Image, ""))
	if err != nil {
		switch {
		case errors.Is(err, intake.ErrEmptyPayload):
			respondError(c, http.StatusBadRequest, intake.ErrEmptyPayload.Error(), "")
		case errors.Is(err, intake.ErrUndecodable):
			respondError(c, http.StatusBadRequest, intake.ErrUndecodable.Error(), err.Error())
		case errors.Is(err, intake.ErrMissingDevice):
			respondError(c, http.StatusBadRequest, intake.ErrMissingDevice.Error(), "")
		default:
			respondError(c, http.StatusInternalServerError, "storage_failed", err.Error())
		}
		return
	}

	h.hub.Publish(events.TypeImageStored, stored)

	c.JSON(http.StatusOK, api.ReceiveImageResponse{
		Status:      "Image received and saved",
		FilePath:    stored.Path,
		SessionId:   stored.SessionID,
		ContentType: &stored.ContentType,
		Size:        &stored.Size,
	})
}

// PostHeartbeat は端末の生存通知を記録する
func (h *CaptureHubHandler) PostHeartbeat(c *gin.Context) {
	var body api.PostHeartbeatJSONRequestBody
	if !bindOptionalJSON(c, &body) {
		return
	}

	clientID := stringValue(body.ClientId, "")
	if clientID == "" {
		respondError(c, http.StatusBadRequest, intake.ErrMissingDevice.Error(), "")
		return
	}

	now := h.now()
	h.heartbeats.Record(clientID, now)
	h.metrics.Heartbeat()

	status := api.HeartbeatStatus{
		ClientId:   clientID,
		LastSeenAt: now,
		Liveness:   api.HeartbeatStatusLiveness(h.heartbeats.Liveness(clientID, now, h.config.Heartbeat.StaleAfter)),
	}
	h.hub.Publish(events.TypeHeartbeat, status)

	c.JSON(http.StatusOK, status)
}

// ListHeartbeats は通知のあった端末の生存状態を返す
func (h *CaptureHubHandler) ListHeartbeats(c *gin.Context) {
	snapshot := h.heartbeats.Snapshot(h.now(), h.config.Heartbeat.StaleAfter)

	heartbeats := make([]api.HeartbeatStatus, 0, len(snapshot))
	for _, st := range snapshot {
		heartbeats = append(heartbeats, api.HeartbeatStatus{
			ClientId:   st.DeviceID,
			LastSeenAt: st.LastSeenAt,
			Liveness:   api.HeartbeatStatusLiveness(st.Liveness),
		})
	}

	c.JSON(http.StatusOK, api.HeartbeatsResponse{Heartbeats: heartbeats})
}

// GetCurrentSession はアクティブなセッションを返す
func (h *CaptureHubHandler) GetCurrentSession(c *gin.Context) {
	sess, ok := h.sessions.Current()
	if !ok {
		respondError(c, http.StatusNotFound, "no_active_session", "アクティブなセッションはありません")
		return
	}

	c.JSON(http.StatusOK, toAPISession(sess))
}

// ListSessions は保存済みのセッションを返す
func (h *CaptureHubHandler) ListSessions(c *gin.Context) {
	infos, err := h.store.ListSessions()
	if err != nil {
		h.log.Error().Err(err).Msg("セッション一覧の取得に失敗しました")
		respondError(c, http.StatusInternalServerError, "storage_failed", err.Error())
		return
	}

	sessions := make([]api.StoredSession, 0, len(infos))
	for _, info := range infos {
		sessions = append(sessions, api.StoredSession{
			Id:         info.ID,
			ImageCount: info.ImageCount,
			ModTime:    info.ModTime,
		})
	}

	c.JSON(http.StatusOK, api.SessionsResponse{Sessions: sessions})
}

// ListSessionImages はセッションに保存された画像を返す
func (h *CaptureHubHandler) ListSessionImages(c *gin.Context, sessionId string) {
	infos, err := h.store.ListImages(sessionId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			respondError(c, http.StatusNotFound, "session_not_found", "指定されたセッションが見つかりません")
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionId).Msg("画像一覧の取得に失敗しました")
		respondError(c, http.StatusInternalServerError, "storage_failed", err.Error())
		return
	}

	images := make([]api.StoredImage, 0, len(infos))
	for _, info := range infos {
		images = append(images, api.StoredImage{
			Name:    info.Name,
			Path:    info.Path,
			Size:    info.Size,
			ModTime: info.ModTime,
		})
	}

	c.JSON(http.StatusOK, api.ImagesResponse{SessionId: sessionId, Images: images})
}

// ListDevices は登録済みの端末を返す
func (h *CaptureHubHandler) ListDevices(c *gin.Context) {
	devices := h.registry.Devices()

	infos := make([]api.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, api.DeviceInfo{
			Id:       d.ID,
			ClientId: d.Label(),
			Endpoint: d.Endpoint,
		})
	}

	c.JSON(http.StatusOK, api.DevicesResponse{Devices: infos})
}

// GetDeviceHealth は端末のヘルス情報を中継する
func (h *CaptureHubHandler) GetDeviceHealth(c *gin.Context, deviceId int) {
	h.relay(c, deviceId, "health")
}

// GetDeviceNetworkSettings は端末のネットワーク設定を中継する
func (h *CaptureHubHandler) GetDeviceNetworkSettings(c *gin.Context, deviceId int) {
	h.relay(c, deviceId, "network_settings")
}

// GetDeviceNtpCheck は端末のNTP同期状態を中継する
func (h *CaptureHubHandler) GetDeviceNtpCheck(c *gin.Context, deviceId int) {
	h.relay(c, deviceId, "ntp_check")
}

// GetDeviceCameraCheck は端末のカメラ状態を中継する
func (h *CaptureHubHandler) GetDeviceCameraCheck(c *gin.Context, deviceId int) {
	h.relay(c, deviceId, "camera_check")
}

// relay は端末の読み取り専用APIの応答を client_id を付けて返す
// 端末に到達できない場合は Offline を返す
func (h *CaptureHubHandler) relay(c *gin.Context, deviceID int, name string) {
	d, ok := h.registry.Get(deviceID)
	if !ok {
		respondError(c, http.StatusNotFound, "Invalid device_id", "")
		return
	}

	data, err := h.client.Fetch(c.Request.Context(), d, name)
	if err != nil {
		h.log.Warn().Err(err).
			Int("device_id", d.ID).
			Str("endpoint", name).
			Msg("端末から応答がありません")
		c.JSON(http.StatusOK, api.RelayResponse{
			"client_id": d.Label(),
			"status":    "Offline",
		})
		return
	}

	data["client_id"] = d.Label()
	c.JSON(http.StatusOK, api.RelayResponse(data))
}

// TakeDevicePhoto は1台の端末で撮影し、その画像を返す
func (h *CaptureHubHandler) TakeDevicePhoto(c *gin.Context, deviceId int) {
	d, ok := h.registry.Get(deviceId)
	if !ok {
		respondError(c, http.StatusNotFound, "Invalid device_id", "")
		return
	}

	photo, err := h.client.TakePhoto(c.Request.Context(), d)
	if err != nil {
		h.log.Warn().Err(err).Int("device_id", d.ID).Msg("撮影に失敗しました")
		respondError(c, http.StatusBadGateway, "Failed to capture photo", err.Error())
		return
	}

	c.JSON(http.StatusOK, api.TakePhotoResponse{Status: "success", Photo: photo})
}

// TakeAllPhotos は全端末で並行して撮影し、端末ごとの画像またはエラーを登録順に返す
// 一部の端末が失敗しても200を返す
func (h *CaptureHubHandler) TakeAllPhotos(c *gin.Context) {
	devices := h.registry.Devices()
	photos := make([]api.DevicePhoto, len(devices))

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.config.Dispatch.Timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range devices {
		i, d := i, d
		g.Go(func() error {
			photos[i] = h.takePhoto(gctx, d)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.log.Error().Err(err).Msg("撮影結果の待機に失敗しました")
	}

	c.JSON(http.StatusOK, photos)
}

// takePhoto は1台分の撮影結果を作る
func (h *CaptureHubHandler) takePhoto(ctx context.Context, d device.Device) api.DevicePhoto {
	result := api.DevicePhoto{ClientId: d.Label()}

	photo, err := h.client.TakePhoto(ctx, d)
	if err != nil {
		h.log.Warn().Err(err).Int("device_id", d.ID).Msg("撮影に失敗しました")
		msg := err.Error()
		result.Error = &msg
		return result
	}

	result.Photo = &photo
	return result
}

// ヘルパー関数

// bindOptionalJSON はボディが空なら何もせず、不正なJSONなら400を返す
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func respondError(c *gin.Context, status int, code, message string) {
	resp := api.ErrorResponse{Error: code}
	if message != "" {
		resp.Message = &message
	}
	c.JSON(status, resp)
}

func stringValue(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}

func toAPISession(s session.Session) api.Session {
	return api.Session{
		Id:           s.ID,
		CreatedAt:    s.CreatedAt,
		StoragePath:  s.StoragePath,
		IdleDeadline: s.IdleDeadline,
	}
}

func toCaptureResults(results []dispatch.Result) []api.CaptureResult {
	out := make([]api.CaptureResult, 0, len(results))
	for _, r := range results {
		cr := api.CaptureResult{
			DeviceId:   r.DeviceID,
			Endpoint:   r.Endpoint,
			Outcome:    api.CaptureResultOutcome(r.Outcome),
			DurationMs: r.Duration.Milliseconds(),
		}
		if r.StatusCode != 0 {
			code := r.StatusCode
			cr.StatusCode = &code
		}
		if r.Error != "" {
			msg := r.Error
			cr.Error = &msg
		}
		out = append(out, cr)
	}
	return out
}
