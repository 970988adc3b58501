package qq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"botweave/internal/adapter"
	"botweave/internal/event"
	"botweave/internal/log"
	"botweave/internal/message"
)

// Adapter serves one bot on the QQ platform. There is no long-lived
// connection to hold: inbound events are pushed to the webhook route,
// which injects them through HandleEnvelope. Start authenticates and
// resolves the bot's own account so a bad credential fails fast.
type Adapter struct {
	botID  int64
	cfg    Config
	client *Client

	mu        sync.Mutex
	handler   adapter.Handler
	running   bool
	startedAt time.Time
	selfID    string
	username  string
	messages  int64
	lastError string
}

// New constructs the adapter for one bot. It is registered with the
// manager under the "qq" protocol.
func New(botID int64, config map[string]any) (adapter.Adapter, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	return &Adapter{botID: botID, cfg: cfg, client: NewClient(cfg.AppID, cfg.AppSecret)}, nil
}

func (a *Adapter) Protocol() string      { return Protocol }
func (a *Adapter) CacheKeyField() string { return ConfigKeyField }

// Secret returns the app secret used for webhook signature checks.
func (a *Adapter) Secret() string { return a.cfg.AppSecret }

// SelfID returns the bot's platform account id, known after Start.
func (a *Adapter) SelfID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selfID
}

func (a *Adapter) SetHandler(h adapter.Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

// Start authenticates against the platform and fetches the bot account.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.client.Authenticate(ctx); err != nil {
		a.setError(err)
		return err
	}
	info, err := a.client.BotInfo(ctx)
	if err != nil {
		a.setError(err)
		return err
	}

	a.mu.Lock()
	a.running = true
	a.startedAt = time.Now()
	a.selfID = str(info, "id")
	a.username = str(info, "username")
	a.lastError = ""
	a.mu.Unlock()

	log.Info(log.CatQQ, "qq adapter started", "bot_id", a.botID, "self_id", str(info, "id"), "username", str(info, "username"))
	return nil
}

// Stop marks the adapter stopped. Webhook traffic for the bot is
// dropped until the next Start.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	log.Info(log.CatQQ, "qq adapter stopped", "bot_id", a.botID)
	return nil
}

// HandleEnvelope feeds one dispatch envelope from the webhook route into
// the event pipeline. It reports whether the envelope produced an event.
func (a *Adapter) HandleEnvelope(env Envelope) bool {
	a.mu.Lock()
	h := a.handler
	selfID := a.selfID
	running := a.running
	a.mu.Unlock()

	if !running {
		log.Warn(log.CatQQ, "dropping event for stopped adapter", "bot_id", a.botID, "type", env.Type)
		return false
	}

	ev, ok := ParseEvent(a.botID, selfID, env)
	if !ok {
		return false
	}

	a.mu.Lock()
	a.messages++
	a.mu.Unlock()

	if h != nil {
		h(ev)
	}
	return true
}

// Send delivers a message into the conversation ev arrived from.
func (a *Adapter) Send(ctx context.Context, ev event.Event, msg message.Message) error {
	target, ok := event.ReplyTarget(ev)
	if !ok {
		return fmt.Errorf("%s events have no reply target", ev.Kind())
	}
	return a.SendTo(ctx, target, msg)
}

// SendTo delivers a message to an explicit target. Scheduled workflows
// use it when they name their own destination.
func (a *Adapter) SendTo(ctx context.Context, target event.Target, msg message.Message) error {
	payload, err := message.ToQQPayload(msg)
	if err != nil {
		return err
	}
	if _, err := a.client.SendMessage(ctx, target, payload); err != nil {
		a.setError(err)
		return err
	}
	return nil
}

// CallAPI invokes a platform action with raw parameters.
func (a *Adapter) CallAPI(ctx context.Context, action string, params map[string]any) (any, error) {
	switch action {
	case "get_bot_info":
		return a.client.BotInfo(ctx)

	case "get_token_status":
		return a.client.TokenStatus(), nil

	case "recall_message", "delete_msg":
		id := str(params, "message_id")
		if id == "" {
			return nil, errors.New("recall_message requires message_id")
		}
		if err := a.client.RecallMessage(ctx, id); err != nil {
			a.setError(err)
			return nil, err
		}
		return map[string]any{"message_id": id}, nil

	case "upload_media":
		return a.callUploadMedia(ctx, params)

	case "send_message", "send_msg":
		return a.callSendMessage(ctx, params)

	default:
		return nil, fmt.Errorf("unsupported qq action %q", action)
	}
}

func (a *Adapter) callUploadMedia(ctx context.Context, params map[string]any) (any, error) {
	fileType, ok := asInt(params["file_type"])
	if !ok || fileType <= 0 {
		return nil, errors.New("upload_media requires file_type")
	}
	target, err := targetFromParams(params)
	if err != nil {
		return nil, err
	}
	up := &message.QQUpload{
		FileType: int(fileType),
		URL:      str(params, "url"),
		FileData: str(params, "file_data"),
	}
	if up.URL == "" && up.FileData == "" {
		return nil, errors.New("upload_media requires url or file_data")
	}
	info, err := a.client.UploadMedia(ctx, target, up)
	if err != nil {
		a.setError(err)
		return nil, err
	}
	return map[string]any{"file_info": info}, nil
}

func (a *Adapter) callSendMessage(ctx context.Context, params map[string]any) (any, error) {
	target, err := targetFromParams(params)
	if err != nil {
		return nil, err
	}
	target.ReplyTo = str(params, "msg_id")

	content := str(params, "content")
	if content == "" {
		return nil, errors.New("send_message requires content")
	}
	payload, err := message.ToQQPayload(message.Message{message.Text(content)})
	if err != nil {
		return nil, err
	}
	out, err := a.client.SendMessage(ctx, target, payload)
	if err != nil {
		a.setError(err)
		return nil, err
	}
	return out, nil
}

// targetFromParams resolves the destination named in API call params.
func targetFromParams(params map[string]any) (event.Target, error) {
	kind := firstNonEmpty(str(params, "message_type"), str(params, "target_type"))
	id := firstNonEmpty(str(params, "target_id"), str(params, "group_openid"), str(params, "openid"), str(params, "channel_id"), str(params, "guild_id"))
	if id == "" {
		return event.Target{}, errors.New("missing target_id")
	}

	switch kind {
	case "group":
		return event.Target{Kind: event.ContextGroup, ID: id}, nil
	case "user", "private", "c2c":
		return event.Target{Kind: event.ContextPrivate, ID: id}, nil
	case "channel":
		return event.Target{Kind: event.ContextChannel, ID: id}, nil
	case "direct", "dm":
		return event.Target{Kind: event.ContextDirect, ID: id, GuildID: id}, nil
	default:
		return event.Target{}, fmt.Errorf("unsupported target type %q", kind)
	}
}

func (a *Adapter) Status() adapter.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	detail := map[string]any{
		"app_id": a.cfg.AppID,
		"token":  a.client.TokenStatus(),
	}
	if a.username != "" {
		detail["username"] = a.username
	}
	return adapter.Status{
		Protocol:  Protocol,
		Running:   a.running,
		Connected: a.running,
		StartedAt: a.startedAt,
		Messages:  a.messages,
		LastError: a.lastError,
		Detail:    detail,
	}
}

func (a *Adapter) setError(err error) {
	a.mu.Lock()
	a.lastError = err.Error()
	a.mu.Unlock()
}
