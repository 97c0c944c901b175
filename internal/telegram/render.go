package telegram

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"grocery-planner/internal/metrics"
	"grocery-planner/internal/planner"
	"grocery-planner/internal/selection"
	"grocery-planner/internal/stores"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// planArgs is a parsed /plan command.
type planArgs struct {
	Kind        planner.MealKind
	Count       int
	Description string
}

// parsePlanArgs reads "<kind> <count> <description>". Kind and count may be
// left out, in that order.
func parsePlanArgs(args string, defaultKind planner.MealKind, defaultCount int) (planArgs, error) {
	req := planArgs{Kind: defaultKind, Count: defaultCount}
	fields := strings.Fields(args)

	if len(fields) > 0 {
		if kind, err := planner.ParseMealKind(fields[0]); err == nil {
			req.Kind = kind
			fields = fields[1:]
		}
	}
	if len(fields) > 0 {
		if n, err := strconv.Atoi(fields[0]); err == nil {
			if n < 1 {
				return req, errors.New("Meal count must be at least 1.")
			}
			req.Count = n
			fields = fields[1:]
		}
	}
	req.Description = strings.Join(fields, " ")
	if req.Description == "" {
		return req, fmt.Errorf("Usage: /plan <kind> <count> <description>\nKinds: %s", kindList())
	}
	if req.Count < 1 {
		req.Count = 1
	}
	return req, nil
}

func kindList() string {
	names := make([]string, len(planner.MealKinds))
	for i, k := range planner.MealKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// formatPlan renders the plan as plain text. Ingredient selection lives in
// the keyboard.
func formatPlan(plan *planner.MealPlan, kind planner.MealKind) string {
	if plan == nil {
		return "No plan yet."
	}
	var pb strings.Builder
	pb.WriteString(fmt.Sprintf("📅 Meal Plan (%s)\n\n", kind))
	for _, meal := range plan.Meals {
		pb.WriteString(fmt.Sprintf("%d. %s\n", meal.MealNumber, meal.Name))
		if text := planner.PlainText(meal.Instructions); text != "" {
			pb.WriteString(text)
			pb.WriteString("\n")
		}
		pb.WriteString("\n")
	}
	pb.WriteString("Tap an ingredient to leave it out of your cart.")
	return pb.String()
}

// planKeyboard has one button per visible row plus the stage and report
// actions. Row callbacks carry the plan generation so taps on an older plan's
// message can be refused.
func planKeyboard(gen uint64, rows []selection.Node) tgbotapi.InlineKeyboardMarkup {
	var kb [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		indent := strings.Repeat("  ", row.Depth)
		var btn tgbotapi.InlineKeyboardButton
		switch row.Kind {
		case selection.NodeLeaf:
			btn = tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s%s %s", indent, row.State.Mark(), row.Label),
				nodeCallback("toggle", gen, row.Key),
			)
		default:
			arrow := "▸"
			if row.Expanded {
				arrow = "▾"
			}
			btn = tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s%s %s %s", indent, arrow, row.State.Mark(), row.Label),
				nodeCallback("expand", gen, row.Key),
			)
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(btn))
	}
	kb = append(kb, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🛒 Stage cart", "stage"),
		tgbotapi.NewInlineKeyboardButtonData("📄 Report", "report"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

func nodeCallback(action string, gen uint64, key selection.Key) string {
	return fmt.Sprintf("%s|%d|%s", action, gen, key)
}

// parseNodeCallback splits the payload of a toggle or expand callback.
func parseNodeCallback(payload string) (uint64, selection.Key, error) {
	genText, key, ok := strings.Cut(payload, "|")
	if !ok {
		return 0, "", fmt.Errorf("malformed callback payload %q", payload)
	}
	gen, err := strconv.ParseUint(genText, 10, 64)
	if err != nil || gen == 0 {
		return 0, "", fmt.Errorf("malformed plan generation in %q", payload)
	}
	return gen, selection.Key(key), nil
}

func storesKeyboard(candidates []stores.StoreCandidate) tgbotapi.InlineKeyboardMarkup {
	var kb [][]tgbotapi.InlineKeyboardButton
	for _, c := range candidates {
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Label(), "store|"+c.LocationID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(kb...)
}

func statusIcon(ok bool) string {
	if ok {
		return "🟢"
	}
	return "🔴"
}

func formatMetrics(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Backend Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d calls, %d failed (avg %dms)\n", d.Date, d.Requests, d.Failures, d.AvgLatencyMS))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))

	paths := make([]string, 0, len(health.DiskUsage))
	for p := range health.DiskUsage {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		sb.WriteString(fmt.Sprintf("• Disk %s: %s\n", p, health.DiskUsage[p]))
	}
	return sb.String()
}
