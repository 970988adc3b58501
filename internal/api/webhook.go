package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"botweave/internal/adapter/qq"
	"botweave/internal/domain"
	"botweave/internal/log"
	"botweave/internal/orchestration/tracing"
)

// maxWebhookBody caps inbound callback bodies. Platform events are a
// few KB; anything near the limit is not a legitimate callback.
const maxWebhookBody = 1 << 20

// webhookResponse acknowledges a dispatch envelope. Status is one of
// success, duplicate, ignored, or error.
type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// envelopeSink is the slice of the qq adapter the webhook route feeds.
type envelopeSink interface {
	HandleEnvelope(env qq.Envelope) bool
}

// QQWebhook terminates the QQ platform push callback. Identity routing
// and signature verification run before anything else touches the
// payload; only verified envelopes reach the handshake, dedup, and
// adapter paths.
// POST /webhook/qq
func (h *Handler) QQWebhook(w http.ResponseWriter, r *http.Request) {
	reqID := tracing.NewTraceID()
	ctx := tracing.WithTraceID(r.Context(), reqID)
	ctx, span := h.tracer.Start(ctx, tracing.SpanWebhookReceive, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	appID := r.Header.Get(qq.HeaderAppID)
	if appID == "" {
		h.writeError(w, http.StatusBadRequest, "missing_app_id", "Missing "+qq.HeaderAppID+" header", "")
		return
	}
	span.SetAttributes(attribute.String(tracing.AttrWebhookAppID, appID))

	if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "QQBot-Callback") {
		log.Warn(log.CatWebhook, "unexpected webhook user agent", "user_agent", ua, "app_id", appID)
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "body_read_failed", "Failed to read request body", err.Error())
		return
	}

	bot, ok := h.routeWebhook(ctx, appID)
	if !ok {
		log.Warn(log.CatWebhook, "webhook for unknown app id", "app_id", appID, "trace_id", reqID)
		h.writeError(w, http.StatusNotFound, "unknown_bot", "No bot matches the app id", "")
		return
	}
	span.SetAttributes(attribute.Int64(tracing.AttrBotID, bot.ID))

	secret := bot.ConfigString("app_secret")
	if !qq.VerifySignature(secret, r.Header.Get(qq.HeaderTimestamp), body, r.Header.Get(qq.HeaderSignature)) {
		log.Warn(log.CatWebhook, "webhook signature rejected", "bot_id", bot.ID, "app_id", appID, "trace_id", reqID)
		h.writeError(w, http.StatusUnauthorized, "invalid_signature", "Signature verification failed", "")
		return
	}

	var env qq.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid envelope body", err.Error())
		return
	}
	span.SetAttributes(attribute.Int(tracing.AttrWebhookOp, env.Op))

	if env.Op == qq.OpCallbackVerify {
		hs, err := qq.AnswerHandshake(secret, env)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_handshake", "Invalid handshake payload", err.Error())
			return
		}
		span.SetAttributes(attribute.String(tracing.AttrWebhookStatus, "verified"))
		log.Info(log.CatWebhook, "webhook callback verified", "bot_id", bot.ID, "app_id", appID)
		h.writeJSON(w, http.StatusOK, hs)
		return
	}

	resp := h.acceptEnvelope(ctx, span, bot, env)
	span.SetAttributes(attribute.String(tracing.AttrWebhookStatus, resp.Status))
	log.Debug(log.CatWebhook, "webhook acknowledged",
		"bot_id", bot.ID, "type", env.Type, "event_id", env.ID, "status", resp.Status, "trace_id", reqID)
	h.writeJSON(w, http.StatusOK, resp)
}

// routeWebhook resolves the app id header to a bot record through the
// route cache, falling back to the store on miss.
func (h *Handler) routeWebhook(ctx context.Context, appID string) (*domain.Bot, bool) {
	botID, err := h.routes.Get(ctx, appID, routeCacheTTL)
	if err != nil {
		return nil, false
	}
	bot, err := h.bots.FindByID(botID)
	if err != nil {
		// The row went away after the cache picked it up.
		_ = h.routes.Invalidate(ctx, appID)
		return nil, false
	}
	return bot, true
}

// lookupBotByAppID is the route-cache loader.
func (h *Handler) lookupBotByAppID(ctx context.Context, appID string) (int64, error) {
	bot, err := h.bots.FindByAppID(domain.ProtocolQQ, appID)
	if err != nil {
		return 0, err
	}
	return bot.ID, nil
}

// acceptEnvelope dedups one verified dispatch envelope and feeds it to
// the bot's running adapter. The dedup key is written before handoff,
// so a crash after the write loses the event rather than replaying it.
func (h *Handler) acceptEnvelope(ctx context.Context, span trace.Span, bot *domain.Bot, env qq.Envelope) webhookResponse {
	if env.ID != "" {
		stored, err := h.kv.SetNX(ctx, qq.DedupKey(env.ID, time.Now()), "1", qq.DedupTTL)
		if err != nil {
			log.ErrorErr(log.CatWebhook, "dedup store unavailable", err, "event_id", env.ID)
		} else if !stored {
			if h.counters != nil {
				h.counters.DuplicateDropped()
			}
			span.AddEvent(tracing.EventDuplicateDropped)
			log.Info(log.CatWebhook, "duplicate event dropped", "bot_id", bot.ID, "event_id", env.ID)
			return webhookResponse{Status: "duplicate", Message: "Event already processed"}
		}
	}

	ad, running := h.adapters.Get(bot.ID)
	if !running {
		log.Info(log.CatWebhook, "event for stopped bot ignored", "bot_id", bot.ID, "type", env.Type)
		return webhookResponse{Status: "ignored", Reason: "bot_not_running"}
	}
	sink, isQQ := ad.(envelopeSink)
	if !isQQ {
		log.Warn(log.CatWebhook, "webhook bot is not on the qq protocol", "bot_id", bot.ID, "protocol", ad.Protocol())
		return webhookResponse{Status: "ignored", Reason: "wrong_protocol"}
	}

	if !sink.HandleEnvelope(env) {
		return webhookResponse{Status: "ignored", Message: "Unhandled event type: " + env.Type}
	}
	return webhookResponse{Status: "success"}
}
