package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"grocery-planner/internal/metrics"
	"grocery-planner/internal/workflow"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `🛒 *Grocery Planner*

/login - connect your Kroger account
/status - check the connection
/stores <zip> - pick a store near you
/plan <kind> <count> <description> - generate meals
/stage - send the selected ingredients to your cart
/report - download the meal plan report`

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	b.sendMarkdown(chatID, helpText)
	b.handleStatus(ctx, chatID)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	s, err := b.core.CheckSession(ctx)
	if errors.Is(err, workflow.ErrSuperseded) {
		return
	}
	if !s.Authenticated {
		b.sendLogin(chatID, statusIcon(false)+" "+s.StatusMessage)
		return
	}
	b.send(tgbotapi.NewMessage(chatID, statusIcon(true)+" "+s.StatusMessage))
}

func (b *Bot) handleStores(ctx context.Context, chatID int64, args string) {
	zip := strings.TrimSpace(args)
	if zip == "" {
		zip = b.cfg.DefaultZip
	}
	if zip == "" {
		b.send(tgbotapi.NewMessage(chatID, "Usage: /stores <zip>"))
		return
	}

	_, err := b.core.SearchStores(ctx, zip)
	if errors.Is(err, workflow.ErrSuperseded) {
		return
	}
	res := b.core.Snapshot().Stores

	msg := tgbotapi.NewMessage(chatID, res.StatusMessage)
	if err == nil && res.OffersSelection() {
		msg.ReplyMarkup = storesKeyboard(res.Candidates)
	}
	b.send(msg)
}

func (b *Bot) handlePlan(ctx context.Context, chatID int64, args string) {
	req, err := parsePlanArgs(args, b.defaultKind(), b.cfg.DefaultMealCount)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, err.Error()))
		return
	}

	statusText := "🧑‍🍳 *Thinking...* \n(Generating your meal plan)"
	reply := tgbotapi.NewMessage(chatID, statusText)
	reply.ParseMode = tgbotapi.ModeMarkdown
	sent, err := b.api.Send(reply)
	if err != nil {
		b.logger.WithError(err).Warn("Failed to send initial reply")
		return
	}

	b.logger.WithField("kind", req.Kind).Info("Generating plan from chat")
	_, err = b.core.GeneratePlan(ctx, req.Description, req.Kind, req.Count)
	switch {
	case errors.Is(err, workflow.ErrSuperseded):
		return
	case errors.Is(err, workflow.ErrNotAuthenticated):
		b.send(tgbotapi.NewEditMessageText(chatID, sent.MessageID, "🔒 Connect your Kroger account first."))
		b.sendLogin(chatID, "Log in with Kroger, then run /plan again.")
		return
	case err != nil:
		safeErr := strings.ReplaceAll(err.Error(), "`", "'")
		edit := tgbotapi.NewEditMessageText(chatID, sent.MessageID, fmt.Sprintf("❌ *Error generating plan:*\n```\n%v\n```", safeErr))
		edit.ParseMode = tgbotapi.ModeMarkdown
		b.send(edit)
		return
	}

	b.send(b.planEdit(chatID, sent.MessageID))
}

// planEdit renders the current plan into an existing message.
func (b *Bot) planEdit(chatID int64, messageID int) tgbotapi.EditMessageTextConfig {
	snap := b.core.Snapshot()
	kb := planKeyboard(snap.PlanGen, snap.Rows)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, formatPlan(snap.Plan, snap.MealKind), kb)
	return edit
}

func (b *Bot) handleStage(ctx context.Context, chatID int64) {
	resp, err := b.core.StageCart(ctx)
	switch {
	case errors.Is(err, workflow.ErrSuperseded):
		return
	case errors.Is(err, workflow.ErrNoPlan):
		b.send(tgbotapi.NewMessage(chatID, "There is no plan yet. Use /plan first."))
		return
	case err != nil:
		b.sendError(chatID, "staging cart", err)
		return
	}

	snap := b.core.Snapshot()
	text := fmt.Sprintf("✅ Cart staged with %d ingredients.", len(snap.Selection.IncludedKeys()))
	if store, ok := snap.Stores.Selected(); ok {
		text += "\nStore: " + store.Label()
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📄 Get report", "report")),
	)
	b.logger.WithField("bytes", len(resp)).Debug("Cart response received")
	b.send(msg)
}

func (b *Bot) handleReport(ctx context.Context, chatID int64) {
	rep, err := b.core.RequestReport(ctx)
	switch {
	case errors.Is(err, workflow.ErrSuperseded):
		return
	case errors.Is(err, workflow.ErrNothingStaged):
		b.send(tgbotapi.NewMessage(chatID, "Nothing is staged yet. Stage your cart before requesting a report."))
		return
	case err != nil:
		b.sendError(chatID, "requesting report", err)
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  rep.Artifact.Filename,
		Bytes: rep.Artifact.Data,
	})
	doc.Caption = "📄 Your meal plan report"
	b.send(doc)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	b.setChat(chatID)

	// Answer callback to remove spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.WithError(err).Debug("Failed to answer callback")
	}

	action, payload, _ := strings.Cut(query.Data, "|")
	switch action {
	case "toggle", "expand":
		gen, key, err := parseNodeCallback(payload)
		if err != nil {
			b.logger.WithError(err).Warn("Bad plan callback")
			return
		}
		if action == "toggle" {
			_, err = b.core.ToggleLeafAt(gen, key)
		} else {
			err = b.core.ToggleExpandedAt(gen, key)
		}
		switch {
		case errors.Is(err, workflow.ErrStalePlan):
			b.send(tgbotapi.NewMessage(chatID, "That plan has been replaced. Use the buttons on the latest plan."))
			return
		case err != nil:
			b.sendError(chatID, "updating selection", err)
			return
		}
		b.send(b.planEdit(chatID, messageID))
	case "store":
		if err := b.core.SelectStore(payload); err != nil {
			b.send(tgbotapi.NewMessage(chatID, "That store is no longer in the results. Search again with /stores."))
			return
		}
		store, _ := b.core.Snapshot().Stores.Selected()
		b.send(tgbotapi.NewEditMessageText(chatID, messageID, "🏬 Store selected: "+store.Label()))
	case "stage":
		b.handleStage(ctx, chatID)
	case "report":
		b.handleReport(ctx, chatID)
	default:
		b.logger.WithField("data", query.Data).Warn("Unknown callback")
	}
}

func (b *Bot) handleMetricsRequest(msg *tgbotapi.Message) {
	if msg.From.ID != b.cfg.AdminTelegramID {
		b.sendMarkdown(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}

	usage, err := b.metricsStore.GetDailyUsage(7)
	if err != nil {
		b.send(tgbotapi.NewMessage(msg.Chat.ID, "❌ Error fetching metrics."))
		return
	}
	health := metrics.GetSysHealth(b.cfg.DatabasePath, b.cfg.DownloadDir)
	b.sendMarkdown(msg.Chat.ID, formatMetrics(usage, health))
}
