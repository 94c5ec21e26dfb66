package bot

import (
	"Painty/access"
	"Painty/core"
	"Painty/holder"
	"Painty/lib/sl"
	"Painty/storage"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const (
	errorResponse      = "❌ An error occurred while processing your request.\n\n✅ Please try again."
	photoErrorResponse = "An error occurred while processing the image. Please try again."
	noAccessResponse   = "You do not have access to this bot."

	welcomeAdmin = "Welcome! You are a root admin. Choose an option:"
	welcomeUser  = "Welcome! Send me a prompt to generate an image, or send an image with a prompt to edit it."
)

type TgBot struct {
	conf    *core.Config
	log     *slog.Logger
	api     *tgbotapi.BotAPI
	service core.ImageService
	policy  *access.Policy
	store   storage.Storage
	actions *holder.ActionManager
	stop    chan struct{}
}

func NewTgBot(conf *core.Config, log *slog.Logger, policy *access.Policy, store storage.Storage, actions *holder.ActionManager) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.TelegramApiKey)
	if err != nil {
		return nil, err
	}

	return &TgBot{
		conf:    conf,
		log:     log.With(sl.Module("tgbot")),
		api:     api,
		policy:  policy,
		store:   store,
		actions: actions,
		stop:    make(chan struct{}),
	}, nil
}

// SetService sets the image service handling user requests.
func (t *TgBot) SetService(service core.ImageService) {
	t.service = service
}

func (t *TgBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("getting updates channel: %w", err)
	}

	for {
		select {
		case <-t.stop:
			return nil
		case update := <-updates:
			if update.CallbackQuery != nil {
				t.handleCallback(update.CallbackQuery)
				continue
			}
			if update.Message != nil {
				t.handleMessage(update.Message)
			}
		}
	}
}

func (t *TgBot) Stop() {
	close(t.stop)
}

func (t *TgBot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	ctx := context.Background()
	chatID := msg.Chat.ID
	userID := int64(msg.From.ID)

	if msg.IsCommand() {
		t.handleCommand(ctx, chatID, userID, msg.Command())
		return
	}

	result := t.policy.Check(ctx, userID)
	if !result.HasAccess {
		t.plainResponse(chatID, noAccessResponse)
		return
	}

	// A root admin answering an add/remove prompt sends a bare user id;
	// consume it before treating the text as an image prompt.
	if result.IsRootAdmin && msg.Text != "" {
		if action := t.actions.Take(ctx, userID); action != nil {
			switch action.Kind {
			case storage.ActionAddUser:
				t.processAddUser(ctx, chatID, userID, msg.Text)
			case storage.ActionRemoveUser:
				t.processRemoveUser(ctx, chatID, userID, msg.Text)
			}
			return
		}
	}

	if msg.Photo != nil && len(*msg.Photo) > 0 {
		photos := *msg.Photo
		// last entry is the highest resolution
		fileID := photos[len(photos)-1].FileID
		go t.processPhoto(ctx, chatID, userID, fileID, msg.Caption)
		return
	}

	if msg.Text != "" {
		logText := msg.Text
		if len(logText) > 50 {
			logText = logText[:50] + "..."
		}
		t.log.With(sl.User(userID), slog.String("text", logText)).Info("incoming prompt")

		go t.processText(ctx, chatID, userID, msg.Text)
	}
}

func (t *TgBot) handleCommand(ctx context.Context, chatID, userID int64, command string) {
	result := t.policy.Check(ctx, userID)
	if !result.HasAccess {
		t.plainResponse(chatID, noAccessResponse)
		return
	}

	switch command {
	case "start":
		t.ensureUser(ctx, userID, result.IsRootAdmin)
		if result.IsRootAdmin {
			t.keyboardResponse(chatID, welcomeAdmin, adminKeyboard())
		} else {
			t.plainResponse(chatID, welcomeUser)
		}
	case "cancel":
		if err := t.service.CancelSession(ctx, chatID, userID); err != nil {
			t.log.Error("canceling session", sl.User(userID), sl.Err(err))
			t.plainResponse(chatID, errorResponse)
		}
	case "history":
		if err := t.service.History(ctx, chatID, userID); err != nil {
			t.log.Error("fetching history", sl.User(userID), sl.Err(err))
			t.plainResponse(chatID, errorResponse)
		}
	case "help":
		text := "You can use the following commands:\n"
		text += "/start - show the welcome message\n"
		text += "/cancel - cancel the current image session\n"
		text += "/history - show your last interactions\n"
		text += "/help - show this help\n"
		text += "\nSend a text prompt to generate an image. "
		text += "Send another prompt to edit the result, or upload your own image to edit it."
		t.plainResponse(chatID, text)
	}
}

func (t *TgBot) processText(ctx context.Context, chatID, userID int64, text string) {
	done := make(chan struct{})
	go t.sendChatAction(chatID, done)
	defer close(done)

	if err := t.service.HandleText(ctx, chatID, userID, text); err != nil {
		t.log.Error("handling text message", sl.User(userID), sl.Err(err))
		t.plainResponse(chatID, errorResponse)
	}
}

func (t *TgBot) processPhoto(ctx context.Context, chatID, userID int64, fileID, caption string) {
	done := make(chan struct{})
	go t.sendChatAction(chatID, done)
	defer close(done)

	imageB64, err := t.downloadPhoto(fileID)
	if err != nil {
		t.log.Error("downloading photo", sl.User(userID), sl.Err(err))
		t.plainResponse(chatID, photoErrorResponse)
		return
	}

	if err := t.service.HandlePhoto(ctx, chatID, userID, imageB64, caption); err != nil {
		t.log.Error("handling photo message", sl.User(userID), sl.Err(err))
		t.plainResponse(chatID, photoErrorResponse)
	}
}

// every 5 seconds send chat action until done is closed
func (t *TgBot) sendChatAction(chatID int64, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto)
	if _, err := t.api.Send(action); err != nil {
		t.log.Error("sending chat action", sl.Err(err))
	}

	for {
		select {
		case <-ticker.C:
			if _, err := t.api.Send(action); err != nil {
				t.log.Error("sending chat action", sl.Err(err))
			}
		case <-done:
			return
		}
	}
}

func (t *TgBot) downloadPhoto(fileID string) (string, error) {
	file, err := t.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("getting file: %w", err)
	}

	resp, err := http.Get(file.Link(t.api.Token))
	if err != nil {
		return "", fmt.Errorf("downloading file: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.log.Error("closing file body", sl.Err(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading file: status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading file body: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// SendText implements core.Outbox.
func (t *TgBot) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := t.api.Send(msg)
	return err
}

// SendImage implements core.Outbox. Every result carries the cancel
// button so the user can drop the session at any point.
func (t *TgBot) SendImage(chatID int64, imageB64, imageURL, caption string) error {
	if imageB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(imageB64)
		if err != nil {
			return fmt.Errorf("decoding image: %w", err)
		}
		photo := tgbotapi.NewPhotoUpload(chatID, tgbotapi.FileBytes{Name: "image.png", Bytes: raw})
		photo.Caption = caption
		photo.ReplyMarkup = cancelKeyboard()
		_, err = t.api.Send(photo)
		return err
	}
	if imageURL != "" {
		photo := tgbotapi.NewPhotoShare(chatID, imageURL)
		photo.Caption = caption
		photo.ReplyMarkup = cancelKeyboard()
		_, err := t.api.Send(photo)
		return err
	}
	return fmt.Errorf("no image payload to send")
}

func (t *TgBot) plainResponse(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending message", sl.Err(err))
	}
}

func (t *TgBot) keyboardResponse(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending message", sl.Err(err))
	}
}

func (t *TgBot) ensureUser(ctx context.Context, userID int64, isRootAdmin bool) {
	user, err := t.store.GetUser(ctx, userID)
	if err != nil {
		t.log.Error("looking up user", sl.User(userID), sl.Err(err))
		return
	}
	if user == nil {
		if _, err := t.store.CreateUser(ctx, userID, isRootAdmin); err != nil {
			t.log.Error("creating user", sl.User(userID), sl.Err(err))
		}
	}
}

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Cancel Session", "cancel_session"),
		),
	)
}

func adminKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("User Management", "user_management"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Start Image Generation", "start_generation"),
		),
	)
}

func userManagementKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Add User", "add_user"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Remove User", "remove_user"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("List Users", "list_users"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Back to Main Menu", "back_to_main"),
		),
	)
}
