package bot

import (
	"Painty/lib/sl"
	"Painty/storage"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const (
	noPermissionAlert = "You do not have permission to access this section."

	addUserHint = "To add a user, please send their Telegram user ID.\n\n" +
		"You can get a user ID by forwarding a message from them to @userinfobot or using other Telegram bots."
	removeUserHint  = "To remove a user, please send their Telegram user ID."
	invalidIDFormat = "Invalid user ID format. Please send a numeric Telegram user ID."
)

func (t *TgBot) handleCallback(cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil {
		return
	}
	ctx := context.Background()
	chatID := cq.Message.Chat.ID
	userID := int64(cq.From.ID)

	result := t.policy.Check(ctx, userID)

	switch cq.Data {
	case "cancel_session":
		t.answerCallback(cq.ID, "")
		if err := t.service.CancelSession(ctx, chatID, userID); err != nil {
			t.log.Error("canceling session", sl.User(userID), sl.Err(err))
			t.plainResponse(chatID, errorResponse)
		}

	case "user_management":
		if !result.IsRootAdmin {
			t.alertCallback(cq.ID, noPermissionAlert)
			return
		}
		t.answerCallback(cq.ID, "")
		t.keyboardResponse(chatID, "User Management:\n\nChoose an option:", userManagementKeyboard())

	case "add_user":
		if !result.IsRootAdmin {
			t.alertCallback(cq.ID, noPermissionAlert)
			return
		}
		t.actions.Set(ctx, userID, storage.ActionAddUser)
		t.answerCallback(cq.ID, "")
		t.plainResponse(chatID, addUserHint)

	case "remove_user":
		if !result.IsRootAdmin {
			t.alertCallback(cq.ID, noPermissionAlert)
			return
		}
		t.actions.Set(ctx, userID, storage.ActionRemoveUser)
		t.answerCallback(cq.ID, "")
		t.plainResponse(chatID, removeUserHint)

	case "list_users":
		if !result.IsRootAdmin {
			t.alertCallback(cq.ID, noPermissionAlert)
			return
		}
		t.answerCallback(cq.ID, "")
		t.listUsers(ctx, chatID)

	case "back_to_main":
		if !result.IsRootAdmin {
			t.alertCallback(cq.ID, noPermissionAlert)
			return
		}
		t.actions.Clear(ctx, userID)
		t.answerCallback(cq.ID, "")
		t.keyboardResponse(chatID, "Main Menu:", adminKeyboard())

	case "start_generation":
		if !result.HasAccess {
			t.alertCallback(cq.ID, noAccessResponse)
			return
		}
		t.answerCallback(cq.ID, "")
		t.plainResponse(chatID, welcomeUser)

	default:
		t.answerCallback(cq.ID, "")
	}
}

func (t *TgBot) listUsers(ctx context.Context, chatID int64) {
	users, err := t.store.ListUsers(ctx)
	if err != nil {
		t.log.Error("listing users", sl.Err(err))
		t.plainResponse(chatID, errorResponse)
		return
	}
	if len(users) == 0 {
		t.plainResponse(chatID, "No users found.")
		return
	}

	var b strings.Builder
	b.WriteString("Users List:\n\n")
	for i, user := range users {
		status := "Inactive"
		if user.IsActive {
			status = "Active"
		}
		admin := "No"
		if user.IsAdmin {
			admin = "Yes"
		}
		fmt.Fprintf(&b, "%d. ID: %d\n", i+1, user.TelegramID)
		fmt.Fprintf(&b, "   Status: %s\n", status)
		fmt.Fprintf(&b, "   Admin: %s\n", admin)
		fmt.Fprintf(&b, "   Created: %s\n\n", user.CreatedAt.Format("2006-01-02"))
	}
	t.keyboardResponse(chatID, b.String(), userManagementKeyboard())
}

func (t *TgBot) processAddUser(ctx context.Context, chatID, adminID int64, text string) {
	targetID, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		t.plainResponse(chatID, invalidIDFormat)
		return
	}

	user, err := t.store.GetUser(ctx, targetID)
	if err != nil {
		t.log.Error("looking up user", sl.User(targetID), sl.Err(err))
		t.plainResponse(chatID, "An error occurred while adding the user. Please try again.")
		return
	}

	if user != nil {
		if err := t.store.SetUserActive(ctx, targetID, true); err != nil {
			t.log.Error("activating user", sl.User(targetID), sl.Err(err))
			t.plainResponse(chatID, "An error occurred while adding the user. Please try again.")
			return
		}
		t.log.Info("user reactivated", slog.Int64("admin", adminID), slog.Int64("target", targetID))
		t.keyboardResponse(chatID,
			fmt.Sprintf("User %d already exists and has been activated.", targetID),
			userManagementKeyboard())
		return
	}

	if _, err := t.store.CreateUser(ctx, targetID, false); err != nil {
		t.log.Error("creating user", sl.User(targetID), sl.Err(err))
		t.plainResponse(chatID, "An error occurred while adding the user. Please try again.")
		return
	}
	t.keyboardResponse(chatID,
		fmt.Sprintf("User %d has been added successfully.", targetID),
		userManagementKeyboard())
}

func (t *TgBot) processRemoveUser(ctx context.Context, chatID, adminID int64, text string) {
	targetID, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		t.plainResponse(chatID, invalidIDFormat)
		return
	}

	if t.policy.IsRoot(targetID) {
		t.keyboardResponse(chatID, "Cannot remove root admin users.", userManagementKeyboard())
		return
	}

	user, err := t.store.GetUser(ctx, targetID)
	if err != nil {
		t.log.Error("looking up user", sl.User(targetID), sl.Err(err))
		t.plainResponse(chatID, "An error occurred while removing the user. Please try again.")
		return
	}
	if user == nil {
		t.keyboardResponse(chatID,
			fmt.Sprintf("User %d not found.", targetID),
			userManagementKeyboard())
		return
	}

	if err := t.store.SetUserActive(ctx, targetID, false); err != nil {
		t.log.Error("deactivating user", sl.User(targetID), sl.Err(err))
		t.plainResponse(chatID, "An error occurred while removing the user. Please try again.")
		return
	}
	t.log.Info("user deactivated", slog.Int64("admin", adminID), slog.Int64("target", targetID))
	t.keyboardResponse(chatID,
		fmt.Sprintf("User %d has been removed (deactivated) successfully.", targetID),
		userManagementKeyboard())
}

func (t *TgBot) answerCallback(id, text string) {
	if _, err := t.api.AnswerCallbackQuery(tgbotapi.NewCallback(id, text)); err != nil {
		t.log.Error("answering callback", sl.Err(err))
	}
}

func (t *TgBot) alertCallback(id, text string) {
	if _, err := t.api.AnswerCallbackQuery(tgbotapi.NewCallbackWithAlert(id, text)); err != nil {
		t.log.Error("answering callback", sl.Err(err))
	}
}
