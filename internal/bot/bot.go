package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"mhdcoin-bot/internal/engine"
	"mhdcoin-bot/internal/ledger"
	"mhdcoin-bot/internal/models"
)

type Bot struct {
	Instance *telego.Bot
	Engine   *engine.Engine
	Log      *zap.SugaredLogger
}

func NewBot(token string, eng *engine.Engine, log *zap.SugaredLogger) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance: tgBot,
		Engine:   eng,
		Log:      log,
	}, nil
}

func mainKeyboard() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("⛏️ Tap to mine").WithCallbackData("mine"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("💰 My balance").WithCallbackData("balance"),
			tu.InlineKeyboardButton("👥 Invite friends").WithCallbackData("referral"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🏆 Leaderboard").WithCallbackData("leaderboard"),
			tu.InlineKeyboardButton("ℹ️ Project info").WithCallbackData("info"),
		),
	)
}

func (b *Bot) Start() {
	updates, _ := b.Instance.UpdatesViaLongPolling(context.Background(), nil)

	handler, _ := th.NewBotHandler(b.Instance, updates)

	// /start command: register the user, crediting the referrer when a
	// deep-link payload names one.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message
		from := message.From

		referralCode := ""
		if parts := strings.Split(message.Text, " "); len(parts) > 1 {
			referralCode = parts[1]
		}

		res, err := b.Engine.Register(ctx.Context(), engine.RegisterParams{
			TelegramID:   from.ID,
			Username:     from.Username,
			FirstName:    from.FirstName,
			LastName:     from.LastName,
			ReferralCode: referralCode,
		})
		if err != nil {
			b.Log.Errorw("registration failed", "user", from.ID, "error", err)
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
				tu.ID(message.Chat.ID),
				"❌ Something went wrong, please try again.",
			))
			return nil
		}

		var welcome string
		if res.AlreadyRegistered {
			welcome = fmt.Sprintf("👋 Hi %s!\n\nWelcome back! Ready to mine some more? ⛏️", from.FirstName)
		} else {
			welcome = fmt.Sprintf(
				"👋 Hi %s!\n\nWelcome to the MHD Coin mining bot! 🎯\n\n"+
					"Every tap earns you %s cents.\n"+
					"You can tap once every %d seconds! 🕒\n\n"+
					"Invite your friends to earn even more! 💰",
				from.FirstName, models.FormatAmount(b.Engine.Policy().TapReward),
				int(b.Engine.Policy().Cooldown.Seconds()),
			)
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			fmt.Sprintf("%s\n\n%s", welcome, statsBlock(res.User.TotalTaps, res.User.TotalMined)),
		).WithReplyMarkup(mainKeyboard()))
		return nil
	}, th.CommandEqual("start"))

	// /stats command: ledger-wide totals.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		message := update.Message

		totals, err := b.Engine.Stats(ctx.Context())
		if err != nil {
			b.Log.Errorw("stats failed", "error", err)
			_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
				tu.ID(message.Chat.ID),
				"❌ Something went wrong, please try again.",
			))
			return nil
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(
			tu.ID(message.Chat.ID),
			fmt.Sprintf("📊 Overall stats:\n• Users: %d\n• Taps: %d\n• Mined: %s cents",
				totals.Users, totals.TotalTaps, models.FormatAmount(totals.TotalMined)),
		))
		return nil
	}, th.CommandEqual("stats"))

	// Mine button.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID

		res, err := b.Engine.Tap(ctx.Context(), telegramID, time.Now())
		msg := ""
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			msg = "❌ You are not registered yet. Send /start first."
		case err != nil:
			b.Log.Errorw("tap failed", "user", telegramID, "error", err)
			msg = "❌ Something went wrong, please try again."
		case !res.Accepted:
			msg = fmt.Sprintf("⏳ Please wait %d more seconds!", int(res.RetryAfter.Seconds()))
		default:
			msg = fmt.Sprintf("✅ Tap counted! +%s\n\n%s",
				models.FormatAmount(b.Engine.Policy().TapReward),
				statsBlock(res.TotalTaps, res.TotalMined))
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), msg).WithReplyMarkup(mainKeyboard()))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("mine"))

	// Balance button.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID

		bal, err := b.Engine.Balance(ctx.Context(), telegramID)
		msg := ""
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			msg = "❌ You are not registered yet. Send /start first."
		case err != nil:
			b.Log.Errorw("balance failed", "user", telegramID, "error", err)
			msg = "❌ Something went wrong, please try again."
		default:
			msg = fmt.Sprintf("💰 Balance:\n%s", statsBlock(bal.TotalTaps, bal.TotalMined))
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), msg).WithReplyMarkup(mainKeyboard()))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("balance"))

	// Referral button.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID

		botUsername := "mhdcoin_bot"
		if info, err := b.Instance.GetMe(ctx.Context()); err == nil {
			botUsername = info.Username
		}
		inviteLink := fmt.Sprintf("https://t.me/%s?start=%d", botUsername, telegramID)

		msg := fmt.Sprintf(
			"👥 Invite your friends and earn rewards!\n"+
				"Each invite = %s cents 🎁\n\n"+
				"Your link:\n%s",
			models.FormatAmount(b.Engine.Policy().ReferralBonus), inviteLink,
		)

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), msg).WithReplyMarkup(mainKeyboard()))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("referral"))

	// Leaderboard button.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID

		entries, err := b.Engine.Leaderboard(ctx.Context(), 0)
		msg := ""
		if err != nil {
			b.Log.Errorw("leaderboard failed", "error", err)
			msg = "❌ Something went wrong, please try again."
		} else {
			var sb strings.Builder
			sb.WriteString("🏆 Leaderboard:\n\n")
			for i, e := range entries {
				fmt.Fprintf(&sb, "%d. %s — %s cents\n", i+1, e.Name, models.FormatAmount(e.TotalMined))
			}
			msg = sb.String()
		}

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), msg).WithReplyMarkup(mainKeyboard()))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("leaderboard"))

	// Info button.
	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		telegramID := callback.From.ID

		msg := "ℹ️ MHD Coin is an experimental blockchain project.\n\n" +
			"📊 Details:\n" +
			"• Network: ERC-20\n" +
			"• Supply: 100M\n" +
			"• Mining share: 10%\n\n" +
			"🌐 Website: https://mhdcoin.com"

		_, _ = ctx.Bot().SendMessage(ctx.Context(), tu.Message(tu.ID(telegramID), msg).WithReplyMarkup(mainKeyboard()))
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual("info"))

	handler.Start()
}

func statsBlock(taps, mined int64) string {
	return fmt.Sprintf("📊 Your stats:\n• Taps: %d\n• Mined: %s cents", taps, models.FormatAmount(mined))
}
