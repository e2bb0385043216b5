package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/hotp"

	"github.com/apimgr/notifyengine/internal/notifyengine/apierr"
	"github.com/apimgr/notifyengine/internal/notifyengine/engine"
	"github.com/apimgr/notifyengine/internal/notifyengine/intake"
	"github.com/apimgr/notifyengine/internal/notifyengine/model"
	"github.com/apimgr/notifyengine/internal/notifyengine/template"
)

// Handlers holds the engine every route dispatches against.
type Handlers struct {
	Engine *engine.Engine
}

// createNotificationRequest is the wire shape for POST /notifications.
type createNotificationRequest struct {
	UserID           string                 `json:"user_id" binding:"required"`
	Type             string                 `json:"type" binding:"required"`
	Channel          string                 `json:"channel" binding:"required"`
	FallbackChannels []string               `json:"fallback_channels"`
	Priority         string                 `json:"priority"`
	TemplateID       string                 `json:"template_id"`
	Variables        map[string]interface{} `json:"variables"`
	Recipient        string                 `json:"recipient"`
	Subject          string                 `json:"subject"`
	Body             string                 `json:"body"`
	ScheduledAt      *time.Time             `json:"scheduled_at"`
	ExpiresAt        *time.Time             `json:"expires_at"`
	MaxRetries       int                    `json:"max_retries"`
}

func (r createNotificationRequest) toIntakeRequest() intake.Request {
	fallback := make([]model.Channel, 0, len(r.FallbackChannels))
	for _, c := range r.FallbackChannels {
		fallback = append(fallback, model.Channel(c))
	}
	return intake.Request{
		UserID:           r.UserID,
		Type:             r.Type,
		Channel:          model.Channel(r.Channel),
		FallbackChannels: fallback,
		Priority:         parsePriority(r.Priority),
		TemplateID:       r.TemplateID,
		Variables:        r.Variables,
		Recipient:        r.Recipient,
		Subject:          r.Subject,
		Body:             r.Body,
		ScheduledAt:      r.ScheduledAt,
		ExpiresAt:        r.ExpiresAt,
		MaxRetries:       r.MaxRetries,
	}
}

func parsePriority(s string) model.Priority {
	switch s {
	case "low":
		return model.PriorityLow
	case "high":
		return model.PriorityHigh
	case "urgent":
		return model.PriorityUrgent
	case "critical":
		return model.PriorityCritical
	default:
		return model.PriorityNormal
	}
}

// CreateNotification handles POST /notifications.
func (h *Handlers) CreateNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.Engine.Intake.Admit(c.Request.Context(), req.toIntakeRequest())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"notification_id": id})
}

// CreateNotificationsBulk handles POST /notifications/bulk, admitting a
// list of requests in one call instead of one round trip per
// notification.
func (h *Handlers) CreateNotificationsBulk(c *gin.Context) {
	var reqs []createNotificationRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	type result struct {
		NotificationID string `json:"notification_id,omitempty"`
		Error          string `json:"error,omitempty"`
	}
	results := make([]result, len(reqs))
	for i, req := range reqs {
		id, err := h.Engine.Intake.Admit(c.Request.Context(), req.toIntakeRequest())
		if err != nil {
			results[i] = result{Error: err.Error()}
			continue
		}
		results[i] = result{NotificationID: id}
	}
	c.JSON(http.StatusAccepted, gin.H{"results": results})
}

// GetNotification handles GET /notifications/:id.
func (h *Handlers) GetNotification(c *gin.Context) {
	n, err := h.Engine.Notifications.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// CancelNotification handles POST /notifications/:id/cancel.
func (h *Handlers) CancelNotification(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.Engine.Notifications.Get(ctx, c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	if n.State.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "notification already in a terminal state"})
		return
	}
	if err := h.Engine.Notifications.UpdateState(ctx, n.ID, model.StateCancelled, n.RetryCount); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification_id": n.ID, "state": model.StateCancelled})
}

// RetryNotification handles POST /notifications/:id/retry, forcing an
// immediate requeue of a Failed-Retryable (or Failed-Final, operator
// override) notification outside the normal backoff schedule.
func (h *Handlers) RetryNotification(c *gin.Context) {
	ctx := c.Request.Context()
	n, err := h.Engine.Notifications.Get(ctx, c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	if n.State != model.StateFailedRetryable && n.State != model.StateFailedFinal {
		c.JSON(http.StatusConflict, gin.H{"error": "notification is not in a retryable state"})
		return
	}
	if err := h.Engine.Notifications.UpdateState(ctx, n.ID, model.StateQueued, n.RetryCount); err != nil {
		writeErr(c, err)
		return
	}
	h.Engine.Queue.Enqueue(n.ID, n.Priority)
	c.JSON(http.StatusOK, gin.H{"notification_id": n.ID, "state": model.StateQueued})
}

// ListUserNotifications handles GET /users/:user_id/notifications.
func (h *Handlers) ListUserNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	list, err := h.Engine.Notifications.ListByUser(c.Request.Context(), c.Param("user_id"),
		c.Query("channel"), c.Query("status"), limit)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// GetPreference handles GET /users/:user_id/preferences/:type.
func (h *Handlers) GetPreference(c *gin.Context) {
	p, err := h.Engine.Preferences.Get(c.Request.Context(), c.Param("user_id"), c.Param("type"))
	if errors.Is(err, apierr.ErrNotFound) {
		c.JSON(http.StatusOK, defaultPreference(c.Param("user_id"), c.Param("type")))
		return
	}
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type putPreferenceRequest struct {
	Enabled    bool              `json:"enabled"`
	Channels   []string          `json:"channels"`
	QuietHours model.QuietHours  `json:"quiet_hours"`
	Batch      string            `json:"batch"`
}

// PutPreference handles PUT /users/:user_id/preferences/:type.
func (h *Handlers) PutPreference(c *gin.Context) {
	var req putPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channels := make([]model.Channel, 0, len(req.Channels))
	for _, ch := range req.Channels {
		channels = append(channels, model.Channel(ch))
	}

	p := &model.UserPreference{
		UserID:     c.Param("user_id"),
		Type:       c.Param("type"),
		Enabled:    req.Enabled,
		Channels:   channels,
		QuietHours: req.QuietHours,
		Batch:      model.BatchWindow(req.Batch),
	}
	if err := h.Engine.Preferences.Put(c.Request.Context(), p); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListTemplates handles GET /templates.
func (h *Handlers) ListTemplates(c *gin.Context) {
	list, err := h.Engine.Templates.List(c.Request.Context())
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": list})
}

// GetTemplate handles GET /templates/:type/:channel.
func (h *Handlers) GetTemplate(c *gin.Context) {
	t, schema, err := h.Engine.Templates.GetActive(c.Request.Context(), c.Param("type"), model.Channel(c.Param("channel")))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template": t, "schema": schema})
}

type setTemplateRequest struct {
	Subject  string                    `json:"subject"`
	Body     string                    `json:"body" binding:"required"`
	Schema   template.Schema           `json:"schema"`
	Activate bool                      `json:"activate"`
}

// SetTemplate handles PUT /templates/:type/:channel, creating a new
// template version.
func (h *Handlers) SetTemplate(c *gin.Context) {
	var req setTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := &model.Template{
		Type:    c.Param("type"),
		Channel: model.Channel(c.Param("channel")),
		Subject: req.Subject,
		Body:    req.Body,
	}
	if err := h.Engine.Templates.Set(c.Request.Context(), t, req.Schema, req.Activate); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// ActivateTemplate handles POST /templates/:type/:channel/activate.
func (h *Handlers) ActivateTemplate(c *gin.Context) {
	var body struct {
		TemplateID string `json:"template_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Engine.Templates.Activate(c.Request.Context(), body.TemplateID); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template_id": body.TemplateID, "active": true})
}

// PreviewTemplate handles POST /templates/:type/:channel/preview, a
// dry-run render against caller-supplied sample variables that persists
// nothing.
func (h *Handlers) PreviewTemplate(c *gin.Context) {
	var body struct {
		Variables map[string]interface{} `json:"variables"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tmpl, schema, err := h.Engine.Templates.GetActive(c.Request.Context(), c.Param("type"), model.Channel(c.Param("channel")))
	if err != nil {
		writeErr(c, err)
		return
	}

	def := template.Definition{
		Name:    tmpl.ID,
		Channel: tmpl.Channel,
		Subject: tmpl.Subject,
		Body:    tmpl.Body,
		Schema:  schema,
	}
	subject, renderedBody, err := template.Render(def, body.Variables)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": subject, "body": renderedBody})
}

// InboundWebhook handles POST /webhooks/inbound/:channel, a provider
// delivery-status callback verified against a per-provider shared secret
// before applying a state transition.
func (h *Handlers) InboundWebhook(c *gin.Context) {
	ch := c.Param("channel")
	secret := h.Engine.Config.Channels[ch].Options["webhook_secret"]

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if secret != "" && !verifySignature(secret, raw, c.GetHeader("X-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	if hotpSecret := h.Engine.Config.Channels[ch].Options["webhook_hotp_secret"]; hotpSecret != "" {
		if !verifyReplayCounter(hotpSecret, c.GetHeader("X-Replay-Counter"), c.GetHeader("X-Replay-Code")) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or replayed counter"})
			return
		}
	}

	var payload struct {
		NotificationID string `json:"notification_id" binding:"required"`
		Status         string `json:"status" binding:"required"`
	}
	if err := bindJSONBytes(raw, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	n, err := h.Engine.Notifications.Get(ctx, payload.NotificationID)
	if err != nil {
		writeErr(c, err)
		return
	}

	newState := providerStatusToState(payload.Status)
	if newState == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unrecognized status"})
		return
	}
	if err := h.Engine.Notifications.UpdateState(ctx, n.ID, newState, n.RetryCount); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification_id": n.ID, "state": newState})
}

func providerStatusToState(status string) model.State {
	switch status {
	case "delivered":
		return model.StateDelivered
	case "read", "opened", "clicked":
		return model.StateRead
	case "failed", "bounced":
		return model.StateFailedFinal
	default:
		return ""
	}
}

func verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// verifyReplayCounter checks a provider-supplied monotonic counter against
// an HOTP code derived from the shared secret, an optional second factor on
// top of the HMAC body signature that also rejects a replayed callback: a
// counter the engine has already seen fails providerCounters.accept even
// if the HOTP code is otherwise valid.
func verifyReplayCounter(secret, counterHeader, code string) bool {
	if counterHeader == "" || code == "" {
		return false
	}
	counter, err := strconv.ParseUint(counterHeader, 10, 64)
	if err != nil {
		return false
	}
	if !providerCounters.accept(secret, counter) {
		return false
	}
	expected, err := hotp.GenerateCode(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(secret)), counter)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(code))
}

// replayCounterStore tracks the highest accepted HOTP counter per shared
// secret, so a callback cannot be accepted twice.
type replayCounterStore struct {
	mu   sync.Mutex
	last map[string]uint64
}

var providerCounters = &replayCounterStore{last: make(map[string]uint64)}

func (s *replayCounterStore) accept(secret string, counter uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.last[secret]
	if seen && counter <= last {
		return false
	}
	s.last[secret] = counter
	return true
}

// Stats handles GET /stats, summarizing per-channel metrics over the last
// 24 hours.
func (h *Handlers) Stats(c *gin.Context) {
	end := time.Now()
	start := end.Add(-24 * time.Hour)

	out := gin.H{}
	for _, ch := range h.Engine.Channels.Channels() {
		summary, err := h.Engine.Metrics.Query(c.Request.Context(), ch, start, end)
		if err != nil {
			writeErr(c, err)
			return
		}
		out[string(ch)] = summary
	}
	c.JSON(http.StatusOK, gin.H{
		"window_start": start,
		"window_end":   end,
		"channels":     out,
		"queue_depth":  h.Engine.Queue.Len(),
	})
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	if err := h.Engine.DB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "queue_depth": h.Engine.Queue.Len()})
}

func defaultPreference(userID, notifType string) *model.UserPreference {
	return &model.UserPreference{
		UserID:  userID,
		Type:    notifType,
		Enabled: true,
		Batch:   model.BatchNone,
	}
}

func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apierr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apierr.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apierr.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apierr.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func bindJSONBytes(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}
