package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"betpool/internal/config"
	"betpool/internal/logger"
	"betpool/internal/service"
	"betpool/internal/storage"

	"gopkg.in/telebot.v3"
)

const deadlineLayout = "2006-01-02 15:04"

// Bot is the Telegram command surface. It renders store/service results as
// user-facing text; all betting and resolution rules live below it.
type Bot struct {
	tb        *telebot.Bot
	store     *storage.Store
	cfg       *config.Config
	payouts   *service.PayoutService
	referrals *service.ReferralService
	notifier  *service.NotificationService

	mu       sync.Mutex
	sessions map[int64]*session
}

// session is the short-lived per-user input context for multi-step flows
// (draft creation, bet amount, wallet capture). It is keyed by Telegram ID
// and entirely separate from the prediction lifecycle: abandoning a flow
// leaves at most an inert draft.
type session struct {
	state        sessionState
	draftID      int64
	optionA      string
	predictionID int64
	choice       string
}

type sessionState int

const (
	stateQuestion sessionState = iota + 1
	stateOptionA
	stateOptionB
	stateDeadline
	stateBetAmount
	stateWallet
)

// New creates the bot and registers all command handlers.
func New(cfg *config.Config, store *storage.Store, payouts *service.PayoutService, referrals *service.ReferralService) (*Bot, error) {
	tb, err := telebot.NewBot(telebot.Settings{
		Token: cfg.Telegram.BotToken,
		Poller: &telebot.LongPoller{
			Timeout: 10,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		tb:        tb,
		store:     store,
		cfg:       cfg,
		payouts:   payouts,
		referrals: referrals,
		sessions:  make(map[int64]*session),
	}
	b.registerHandlers()
	return b, nil
}

// Telebot returns the underlying telebot instance (shared with the notifier).
func (b *Bot) Telebot() *telebot.Bot {
	return b.tb
}

// SetNotificationService wires the notifier used after manual resolutions.
func (b *Bot) SetNotificationService(ns *service.NotificationService) {
	b.notifier = ns
}

// Start begins long-polling. Blocks until Stop is called.
func (b *Bot) Start() {
	logger.Debug(0, "bot_started", "")
	b.tb.Start()
}

// Stop stops the poller.
func (b *Bot) Stop() {
	b.tb.Stop()
}

func (b *Bot) setSession(telegramID int64, s *session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s == nil {
		delete(b.sessions, telegramID)
	} else {
		b.sessions[telegramID] = s
	}
}

func (b *Bot) getSession(telegramID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[telegramID]
}

// userMessage maps the expected error kinds to specific user-facing text so
// the user always learns what exactly to fix.
func (b *Bot) userMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds):
		return "You don't have enough tokens for that bet."
	case errors.Is(err, storage.ErrDuplicateBet):
		return "You already placed a bet on this prediction."
	case errors.Is(err, storage.ErrInvalidAmount):
		return fmt.Sprintf("Invalid amount. Please enter a value between %d and %d.", b.cfg.Betting.MinBet, b.cfg.Betting.MaxBet)
	case errors.Is(err, storage.ErrInvalidChoice):
		return "That choice is not one of the prediction's options."
	case errors.Is(err, storage.ErrInvalidState):
		return "This prediction is not accepting that action anymore."
	case errors.Is(err, storage.ErrPermissionDenied):
		return "You don't have permission to do that."
	case errors.Is(err, storage.ErrSelfReferral):
		return "You cannot refer yourself."
	case errors.Is(err, storage.ErrNotFound):
		return "Not found. Please check the ID and try again."
	default:
		return "Something went wrong. Please try again."
	}
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/help", b.handleHelp)
	b.tb.Handle("/balance", b.handleBalance)
	b.tb.Handle("/predict", b.handlePredict)
	b.tb.Handle("/create", b.handleCreate)
	b.tb.Handle("/resolve", b.handleResolve)
	b.tb.Handle("/addwallet", b.handleAddWallet)
	b.tb.Handle("/refer", b.handleRefer)
	b.tb.Handle("/leaderboard", b.handleLeaderboard)
	b.tb.Handle("/grant_kol", func(c telebot.Context) error { return b.handleGrant(c, storage.RoleKOL) })
	b.tb.Handle("/grant_admin", func(c telebot.Context) error { return b.handleGrant(c, storage.RoleAdmin) })
	b.tb.Handle(telebot.OnCallback, b.handleCallback)
	b.tb.Handle(telebot.OnText, b.handleText)
}

// currentUser loads (or creates on first contact) the sender's account.
func (b *Bot) currentUser(c telebot.Context) (*storage.User, error) {
	sender := c.Sender()
	user, err := b.store.GetOrCreateUser(sender.ID, sender.Username, sender.FirstName)
	if err != nil {
		return nil, err
	}
	if sender.ID == b.cfg.Telegram.OwnerID && user.Role != storage.RoleOwner {
		if err := b.store.EnsureOwner(sender.ID); err != nil {
			return nil, err
		}
		user.Role = storage.RoleOwner
	}
	return user, nil
}

func (b *Bot) handleStart(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_start", fmt.Sprintf("username=%s payload=%s", c.Sender().Username, c.Message().Payload))

	user, err := b.currentUser(c)
	if err != nil {
		logger.Error(telegramID, "start_failed", err)
		return c.Send("Error retrieving user data. Please try again.")
	}

	// Referral deep link: t.me/<bot>?start=ref_<referrer telegram id>
	if payload := c.Message().Payload; strings.HasPrefix(payload, "ref_") {
		b.recordReferralFromPayload(user, payload)
	}

	welcome := fmt.Sprintf("Welcome to the Prediction Bot, %s! 🎉\n\nYou have %d tokens and %d points.\n\nCommands:\n/predict - bet on open predictions\n/create - create a prediction (KOL only)\n/refer - invite friends\n/help - all commands",
		user.FirstName, user.Balance, user.Points)

	if b.cfg.Telegram.WebAppURL != "" {
		btn := telebot.InlineButton{
			Text:   "🎯 Open Prediction Market",
			WebApp: &telebot.WebApp{URL: b.cfg.Telegram.WebAppURL},
		}
		return c.Send(welcome, &telebot.ReplyMarkup{
			InlineKeyboard: [][]telebot.InlineButton{{btn}},
		})
	}
	return c.Send(welcome)
}

func (b *Bot) recordReferralFromPayload(user *storage.User, payload string) {
	referrerTelegramID, err := strconv.ParseInt(strings.TrimPrefix(payload, "ref_"), 10, 64)
	if err != nil {
		logger.Debug(user.TelegramID, "referral_bad_payload", payload)
		return
	}
	referrer, err := b.store.GetUserByTelegramID(referrerTelegramID)
	if err != nil || referrer == nil {
		logger.Debug(user.TelegramID, "referral_unknown_referrer", payload)
		return
	}
	if _, err := b.referrals.RecordReferral(context.Background(), user.ID, referrer.ID); err != nil {
		logger.Error(user.TelegramID, "referral_failed", err)
	}
}

func (b *Bot) handleHelp(c telebot.Context) error {
	helpText := "📚 *Available Commands*\n\n" +
		"/start - Start the bot and receive your welcome tokens\n" +
		"/balance - Check your tokens and points\n" +
		"/predict - View open predictions and place bets\n" +
		"/create - Create a new prediction (KOL only)\n" +
		"/resolve - Resolve your own predictions\n" +
		"/addwallet - Save your wallet address\n" +
		"/refer - Get your referral link\n" +
		"/leaderboard - Top users by tokens\n" +
		"/help - Show this help message"
	return c.Send(helpText, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
}

func (b *Bot) handleBalance(c telebot.Context) error {
	user, err := b.currentUser(c)
	if err != nil {
		return c.Send("Error retrieving user data. Please try again.")
	}
	tokens, points, err := b.store.GetBalance(user.ID)
	if err != nil {
		return c.Send(b.userMessage(err))
	}
	return c.Send(fmt.Sprintf("Your balance:\nTokens: %d\nPoints: %d", tokens, points))
}

func (b *Bot) handlePredict(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_predict", "")

	if _, err := b.currentUser(c); err != nil {
		return c.Send("Error retrieving user data. Please try again.")
	}

	open, err := b.store.ListOpen()
	if err != nil {
		logger.Error(telegramID, "list_open_failed", err)
		return c.Send("Error retrieving predictions. Please try again.")
	}
	if len(open) == 0 {
		return c.Send("No active predictions available.")
	}

	for _, p := range open {
		markup := &telebot.ReplyMarkup{
			InlineKeyboard: [][]telebot.InlineButton{{
				{Text: p.OptionA, Data: fmt.Sprintf("bet:%d:%s", p.ID, p.OptionA)},
				{Text: p.OptionB, Data: fmt.Sprintf("bet:%d:%s", p.ID, p.OptionB)},
			}},
		}
		text := fmt.Sprintf("Prediction #%d: %s\nPool: %s %d | %s %d\nBids close: %s UTC",
			p.ID, p.Question, p.OptionA, p.PoolA, p.OptionB, p.PoolB, p.Deadline)
		if err := c.Send(text, markup); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleCreate(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_create", "")

	user, err := b.currentUser(c)
	if err != nil {
		return c.Send("Error retrieving user data. Please try again.")
	}
	if !user.Role.HasAtLeast(storage.RoleKOL) {
		return c.Send("Only KOLs can create predictions. Ask an admin for access.")
	}

	b.setSession(telegramID, &session{state: stateQuestion})
	return c.Send("Please send your prediction question.")
}

func (b *Bot) handleResolve(c telebot.Context) error {
	telegramID := c.Sender().ID
	logger.Debug(telegramID, "command_resolve", "")

	user, err := b.currentUser(c)
	if err != nil {
		return c.Send("Error retrieving user data. Please try again.")
	}

	predictions, err := b.store.ListByCreator(user.ID, true)
	if err != nil {
		logger.Error(telegramID, "list_by_creator_failed", err)
		return c.Send("Error retrieving your predictions. Please try again.")
	}

	sent := 0
	for _, p := range predictions {
		if p.Status != storage.StatusOpen {
			continue
		}
		markup := &telebot.ReplyMarkup{
			InlineKeyboard: [][]telebot.InlineButton{{
				{Text: p.OptionA, Data: fmt.Sprintf("resolve:%d:%s", p.ID, p.OptionA)},
				{Text: p.OptionB, Data: fmt.Sprintf("resolve:%d:%s", p.ID, p.OptionB)},
			}},
		}
		if err := c.Send(fmt.Sprintf("Resolve prediction #%d: %s", p.ID, p.Question), markup); err != nil {
			return err
		}
		sent++
	}
	if sent == 0 {
		return c.Send("No active predictions to resolve.")
	}
	return nil
}

func (b *Bot) handleAddWallet(c telebot.Context) error {
	if _, err := b.currentUser(c); err != nil {
		return c.Send("Error retrieving user data. Please try again.")
	}
	b.setSession(c.Sender().ID, &session{state: stateWallet})
	return c.Send("Please send your wallet address.")
}

func (b *Bot) handleRefer(c telebot.Context) error {
	user, err := b.currentUser(c)
	if err != nil {
		return c.Send("Error retrieving user data. Please try again.")
	}
	link := fmt.Sprintf("https://t.me/%s?start=ref_%d", b.tb.Me.Username, user.TelegramID)
	return c.Send(fmt.Sprintf("Share your referral link and earn %d points per friend:\n%s\n\nSuccessful referrals so far: %d",
		b.cfg.Referral.BonusPoints, link, user.ReferralCount))
}

func (b *Bot) handleLeaderboard(c telebot.Context) error {
	users, err := b.store.TopUsers(10)
	if err != nil {
		return c.Send("Error retrieving leaderboard. Please try again.")
	}
	if len(users) == 0 {
		return c.Send("No users yet.")
	}
	text := "🏆 Leaderboard\n"
	for i, u := range users {
		text += fmt.Sprintf("\n%d. %s — %d tokens, %d points", i+1, u.FirstName, u.Balance, u.Points)
	}
	return c.Send(text)
}

func (b *Bot) handleGrant(c telebot.Context, level storage.Role) error {
	telegramID := c.Sender().ID

	actor, err := b.currentUser(c)
	if err != nil {
		return c.Send("Error retrieving user data. Please try again.")
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Send(fmt.Sprintf("Usage: /grant_%s <telegram_id>", strings.ToLower(level.String())))
	}
	targetTelegramID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Please provide a valid numeric Telegram ID.")
	}

	target, err := b.store.GetUserByTelegramID(targetTelegramID)
	if err != nil {
		return c.Send(b.userMessage(err))
	}
	if target == nil {
		return c.Send("That user hasn't started the bot yet.")
	}

	if err := b.store.GrantRole(actor.ID, target.ID, level); err != nil {
		logger.Debug(telegramID, "grant_failed", err.Error())
		return c.Send(b.userMessage(err))
	}

	logger.Debug(telegramID, "role_granted", fmt.Sprintf("target=%d level=%s", target.ID, level))
	return c.Send(fmt.Sprintf("%s is now %s.", target.FirstName, level))
}

// handleCallback routes inline button presses: bet:<id>:<choice> and
// resolve:<id>:<choice>.
func (b *Bot) handleCallback(c telebot.Context) error {
	data := strings.TrimPrefix(c.Callback().Data, "\f")
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
	}

	predictionID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown prediction."})
	}
	choice := parts[2]

	user, err := b.currentUser(c)
	if err != nil {
		return c.Respond(&telebot.CallbackResponse{Text: "Error retrieving user data."})
	}

	switch parts[0] {
	case "bet":
		b.setSession(user.TelegramID, &session{state: stateBetAmount, predictionID: predictionID, choice: choice})
		if err := c.Respond(&telebot.CallbackResponse{}); err != nil {
			return err
		}
		return c.Send(fmt.Sprintf("You picked %q on prediction #%d.\nChoose your bet amount (%d to %d):",
			choice, predictionID, b.cfg.Betting.MinBet, b.cfg.Betting.MaxBet))

	case "resolve":
		settlement, err := b.payouts.ResolveManually(context.Background(), user.ID, predictionID, choice)
		if err != nil {
			logger.Debug(user.TelegramID, "manual_resolve_failed", err.Error())
			if respErr := c.Respond(&telebot.CallbackResponse{}); respErr != nil {
				return respErr
			}
			return c.Send(b.userMessage(err))
		}
		if b.notifier != nil {
			if p, perr := b.store.GetPredictionByID(predictionID); perr == nil && p != nil {
				b.notifier.BroadcastSettlement(p, settlement)
			}
		}
		if err := c.Respond(&telebot.CallbackResponse{}); err != nil {
			return err
		}
		return c.Send(fmt.Sprintf("Prediction #%d resolved as %q. Rewards distributed to %d winners.",
			predictionID, choice, settlement.PayoutCount))

	default:
		return c.Respond(&telebot.CallbackResponse{Text: "Unknown action."})
	}
}

// handleText continues whichever multi-step flow the sender is in.
func (b *Bot) handleText(c telebot.Context) error {
	telegramID := c.Sender().ID
	sess := b.getSession(telegramID)
	if sess == nil {
		return nil
	}

	user, err := b.currentUser(c)
	if err != nil {
		return c.Send("Error retrieving user data. Please try again.")
	}

	text := strings.TrimSpace(c.Text())

	switch sess.state {
	case stateQuestion:
		draftID, err := b.store.CreateDraft(user.ID, text)
		if err != nil {
			b.setSession(telegramID, nil)
			return c.Send(b.userMessage(err))
		}
		sess.draftID = draftID
		sess.state = stateOptionA
		return c.Send("Got it. Now send the label for option A.")

	case stateOptionA:
		if text == "" {
			return c.Send("Option label must not be empty. Send the label for option A.")
		}
		sess.optionA = text
		sess.state = stateOptionB
		return c.Send("And the label for option B.")

	case stateOptionB:
		if err := b.store.SetOptions(sess.draftID, sess.optionA, text); err != nil {
			return c.Send(b.userMessage(err) + "\nSend a different label for option B.")
		}
		sess.state = stateDeadline
		return c.Send("Options saved. Please specify the deadline (YYYY-MM-DD HH:MM format, UTC).")

	case stateDeadline:
		deadline, err := time.Parse(deadlineLayout, text)
		if err != nil {
			return c.Send("Invalid date format. Please use YYYY-MM-DD HH:MM.")
		}
		if err := b.store.SetDeadline(sess.draftID, deadline); err != nil {
			return c.Send(b.userMessage(err))
		}
		b.setSession(telegramID, nil)
		logger.Debug(telegramID, "prediction_created", fmt.Sprintf("prediction_id=%d", sess.draftID))
		return c.Send("Prediction created successfully and open for bets.")

	case stateBetAmount:
		amount, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return c.Send(fmt.Sprintf("Invalid amount. Please enter a value between %d and %d.", b.cfg.Betting.MinBet, b.cfg.Betting.MaxBet))
		}
		err = b.store.PlaceBet(context.Background(), user.ID, sess.predictionID, sess.choice, amount)
		if err != nil {
			// Amount errors keep the flow alive for a retry; everything else
			// ends it.
			if errors.Is(err, storage.ErrInvalidAmount) || errors.Is(err, storage.ErrInsufficientFunds) {
				return c.Send(b.userMessage(err))
			}
			b.setSession(telegramID, nil)
			return c.Send(b.userMessage(err))
		}
		b.setSession(telegramID, nil)
		logger.Debug(telegramID, "bet_placed", fmt.Sprintf("prediction_id=%d choice=%s amount=%d", sess.predictionID, sess.choice, amount))
		return c.Send(fmt.Sprintf("Bet placed successfully! You bet %d tokens on %q.", amount, sess.choice))

	case stateWallet:
		if err := b.store.SetWallet(user.ID, text); err != nil {
			b.setSession(telegramID, nil)
			return c.Send(b.userMessage(err))
		}
		b.setSession(telegramID, nil)
		return c.Send("Wallet address saved successfully.")

	default:
		b.setSession(telegramID, nil)
		return nil
	}
}
