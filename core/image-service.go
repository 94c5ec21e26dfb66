package core

import "context"

// ImageService handles inbound user messages and drives the
// generate/edit session flow. Implemented by the imaging package.
type ImageService interface {
	HandleText(ctx context.Context, chatID, userID int64, text string) error
	HandlePhoto(ctx context.Context, chatID, userID int64, imageB64, caption string) error
	CancelSession(ctx context.Context, chatID, userID int64) error
	History(ctx context.Context, chatID, userID int64) error
	Close() error
}

// Outbox delivers messages back to the user. Implemented by the bot.
type Outbox interface {
	SendText(chatID int64, text string) error
	SendImage(chatID int64, imageB64, imageURL, caption string) error
}
