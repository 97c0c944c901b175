package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"grocery-planner/internal/config"
	"grocery-planner/internal/metrics"
	"grocery-planner/internal/planner"
	"grocery-planner/internal/workflow"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// API is the part of the Telegram client the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// LoginLinker builds the retailer login link.
type LoginLinker interface {
	LoginURL() string
}

// Bot drives the workflow core from Telegram chats.
type Bot struct {
	api          API
	core         *workflow.Core
	login        LoginLinker
	metricsStore *metrics.Store
	cfg          *config.Config
	logger       logrus.FieldLogger

	mu       sync.Mutex
	lastChat int64
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, core *workflow.Core, login LoginLinker, metricsStore *metrics.Store, logger logrus.FieldLogger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}
	logger.WithField("account", api.Self.UserName).Info("Authorized on Telegram")

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook for %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	logger.WithField("description", resp.Description).Info("Webhook set")

	return newBot(api, cfg, core, login, metricsStore, logger), nil
}

func newBot(api API, cfg *config.Config, core *workflow.Core, login LoginLinker, metricsStore *metrics.Store, logger logrus.FieldLogger) *Bot {
	return &Bot{
		api:          api,
		core:         core,
		login:        login,
		metricsStore: metricsStore,
		cfg:          cfg,
		logger:       logger,
	}
}

// Router serves the webhook, a health check and the retailer's
// authorization return page.
func (b *Bot) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/webhook", b.handleWebhook).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	if b.cfg.AuthReturnPath != "" {
		r.HandleFunc(b.cfg.AuthReturnPath, b.handleAuthReturn).Methods(http.MethodGet)
	}
	return r
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.WithError(err).Warn("Error parsing update")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)

	go b.HandleUpdate(context.Background(), update)
}

var connectedPage = template.Must(template.New("connected").Parse(`<!DOCTYPE html>
<html>
<head><title>Kroger Connected</title></head>
<body>
<h1>{{if .Authenticated}}Kroger Connected!{{else}}Not connected yet{{end}}</h1>
<p>{{.StatusMessage}}</p>
<p>You can close this window and return to Telegram.</p>
</body>
</html>
`))

// handleAuthReturn is where the retailer's login hand-off lands. Visiting it
// re-checks the session and tells the last active chat.
func (b *Bot) handleAuthReturn(w http.ResponseWriter, r *http.Request) {
	if _, err := b.core.OnNavigate(r.Context(), r.URL.String()); err != nil {
		b.logger.WithError(err).Warn("Session check after login failed")
	}
	s := b.core.Snapshot().Session

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := connectedPage.Execute(w, s); err != nil {
		b.logger.WithError(err).Error("Failed to render auth return page")
	}

	if chatID := b.chat(); chatID != 0 {
		b.send(tgbotapi.NewMessage(chatID, statusIcon(s.Authenticated)+" "+s.StatusMessage))
	}
}

// HandleUpdate processes one update synchronously.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if q := update.CallbackQuery; q != nil {
		if q.From == nil || !b.allowed(q.From.ID) || q.Message == nil {
			return
		}
		b.handleCallbackQuery(ctx, q)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if !b.allowed(msg.From.ID) {
		b.logger.WithFields(logrus.Fields{
			"user_id":  msg.From.ID,
			"username": msg.From.UserName,
		}).Warn("Unauthorized access attempt")
		return
	}
	b.setChat(msg.Chat.ID)
	b.processMessage(ctx, msg)
}

func (b *Bot) allowed(userID int64) bool {
	if b.cfg.TelegramAllowUserID == 0 {
		return true
	}
	return userID == b.cfg.TelegramAllowUserID || userID == b.cfg.AdminTelegramID
}

func (b *Bot) processMessage(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg.Chat.ID)
	case "login":
		b.sendLogin(msg.Chat.ID, "Log in with Kroger, then come back here.")
	case "status":
		b.handleStatus(ctx, msg.Chat.ID)
	case "stores":
		b.handleStores(ctx, msg.Chat.ID, msg.CommandArguments())
	case "plan":
		b.handlePlan(ctx, msg.Chat.ID, msg.CommandArguments())
	case "stage":
		b.handleStage(ctx, msg.Chat.ID)
	case "report":
		b.handleReport(ctx, msg.Chat.ID)
	case "metrics":
		b.handleMetricsRequest(msg)
	default:
		b.sendMarkdown(msg.Chat.ID, helpText)
	}
}

func (b *Bot) chat() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastChat
}

func (b *Bot) setChat(id int64) {
	b.mu.Lock()
	b.lastChat = id
	b.mu.Unlock()
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.WithError(err).Warn("Failed to send Telegram message")
	}
}

func (b *Bot) sendMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	b.send(msg)
}

func (b *Bot) sendError(chatID int64, action string, err error) {
	safeErr := strings.ReplaceAll(err.Error(), "`", "'")
	b.sendMarkdown(chatID, fmt.Sprintf("❌ *Error %s:*\n```\n%v\n```", action, safeErr))
}

func (b *Bot) sendLogin(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("🔑 Log in with Kroger", b.login.LoginURL()),
		),
	)
	msg.ReplyMarkup = kb
	b.send(msg)
}

func (b *Bot) defaultKind() planner.MealKind {
	kind, err := planner.ParseMealKind(b.cfg.DefaultMealKind)
	if err != nil {
		return planner.KindDinner
	}
	return kind
}
