package imaging

import (
	"Painty/ai"
	"Painty/core"
	"Painty/lib/sl"
	"Painty/storage"
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	msgGenerating = "Generating image... Please wait."
	msgEditing    = "Editing image... Please wait."
	msgNoImage    = "❌ No previous image found.\n\n✅ Please send a new image or start a new generation by sending a prompt."
	msgAwaiting   = "Image received! Now send me a prompt to edit this image."
	msgCanceled   = "Session canceled. You can now start a new image generation or editing session."
	msgNoHistory  = "No interactions yet. Send a prompt to generate your first image."

	retryLater     = "\n\n✅ You can try again later."
	retryNewPrompt = "\n\n✅ You can send a new prompt."
	retryNewImage  = "\n\n✅ You can send a new image and prompt."

	historyLimit = 10
)

// Backend produces images from prompts. Implemented by ai.Gemini.
type Backend interface {
	GenerateImage(ctx context.Context, prompt string) (ai.Image, error)
	EditImage(ctx context.Context, imageB64, prompt string) (ai.Image, error)
}

// Service drives the per-user session flow: a text prompt either starts
// a new generation or edits the image the active session points at, an
// uploaded photo becomes the session image. At most one session is
// active per user; a failed backend call cancels it so the next message
// starts fresh.
type Service struct {
	conf    *core.Config
	log     *slog.Logger
	store   storage.Storage
	backend Backend
	out     core.Outbox
}

func NewService(conf *core.Config, log *slog.Logger, store storage.Storage, backend Backend) *Service {
	return &Service{
		conf:    conf,
		log:     log.With(sl.Module("imaging")),
		store:   store,
		backend: backend,
	}
}

// SetOutbox sets the message sink. Must be called before handling requests.
func (s *Service) SetOutbox(out core.Outbox) {
	s.out = out
}

func (s *Service) HandleText(ctx context.Context, chatID, userID int64, text string) error {
	user, err := s.ensureUser(ctx, userID)
	if err != nil {
		s.cancelQuietly(ctx, userID)
		return err
	}

	session, err := s.store.ActiveSession(ctx, userID)
	if err != nil {
		s.cancelQuietly(ctx, userID)
		return err
	}

	if session != nil && session.LastImageB64 != "" {
		return s.edit(ctx, chatID, userID, session, text, session.LastImageB64)
	}

	// No session, or a session with no image yet: either way the prompt
	// starts a fresh generation.
	if session != nil {
		if err := s.store.CancelSession(ctx, userID); err != nil {
			s.log.Error("canceling empty session", sl.User(userID), sl.Err(err))
		}
	}
	session, err = s.store.CreateSession(ctx, userID, user.ID)
	if err != nil {
		return err
	}
	return s.generate(ctx, chatID, userID, session, text)
}

func (s *Service) HandlePhoto(ctx context.Context, chatID, userID int64, imageB64, caption string) error {
	user, err := s.ensureUser(ctx, userID)
	if err != nil {
		return err
	}

	session, err := s.store.ActiveSession(ctx, userID)
	if err != nil {
		return err
	}
	if session == nil {
		session, err = s.store.CreateSession(ctx, userID, user.ID)
		if err != nil {
			return err
		}
	}

	if err := s.store.UpdateSessionImage(ctx, userID, "", imageB64); err != nil {
		return err
	}
	session.LastImageB64 = imageB64

	if prompt := strings.TrimSpace(caption); prompt != "" {
		return s.edit(ctx, chatID, userID, session, prompt, imageB64)
	}
	return s.out.SendText(chatID, msgAwaiting)
}

func (s *Service) CancelSession(ctx context.Context, chatID, userID int64) error {
	if err := s.store.CancelSession(ctx, userID); err != nil {
		return err
	}
	return s.out.SendText(chatID, msgCanceled)
}

func (s *Service) History(ctx context.Context, chatID, userID int64) error {
	history, err := s.store.History(ctx, userID, historyLimit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return s.out.SendText(chatID, msgNoHistory)
	}

	var b strings.Builder
	b.WriteString("Your last interactions:\n\n")
	for i, in := range history {
		fmt.Fprintf(&b, "%d. [%s] \"%s\" — %s\n",
			i+1, in.Type, in.Prompt, in.CreatedAt.Format("2006-01-02 15:04"))
	}
	return s.out.SendText(chatID, b.String())
}

func (s *Service) Close() error {
	return s.store.Close()
}

// generate calls the backend with the prompt alone. Success stores the
// result on the session and logs an interaction; failure cancels the
// session and answers with the classified message.
func (s *Service) generate(ctx context.Context, chatID, userID int64, session *storage.Session, prompt string) error {
	if err := s.out.SendText(chatID, msgGenerating); err != nil {
		s.log.Error("sending progress message", sl.User(userID), sl.Err(err))
	}

	image, err := s.backend.GenerateImage(ctx, prompt)
	if err != nil {
		s.failRequest(ctx, chatID, userID, err, retryNewPrompt)
		return nil
	}

	return s.finishRequest(ctx, chatID, userID, session, &storage.Interaction{
		UserID:         session.UserID,
		TelegramID:     userID,
		SessionID:      session.ID,
		Type:           storage.InteractionGenerate,
		Prompt:         prompt,
		OutputImageURL: image.URL,
		OutputImageB64: image.B64,
	}, image, fmt.Sprintf("Generated image for: %q", prompt))
}

// edit calls the backend with the prior image plus the prompt. An empty
// prior image is a protocol violation: the session is canceled and the
// user is told to start over, without touching the backend.
func (s *Service) edit(ctx context.Context, chatID, userID int64, session *storage.Session, prompt, imageB64 string) error {
	if imageB64 == "" {
		s.cancelQuietly(ctx, userID)
		return s.out.SendText(chatID, msgNoImage)
	}

	if err := s.out.SendText(chatID, msgEditing); err != nil {
		s.log.Error("sending progress message", sl.User(userID), sl.Err(err))
	}

	image, err := s.backend.EditImage(ctx, imageB64, prompt)
	if err != nil {
		s.failRequest(ctx, chatID, userID, err, retryNewImage)
		return nil
	}

	return s.finishRequest(ctx, chatID, userID, session, &storage.Interaction{
		UserID:         session.UserID,
		TelegramID:     userID,
		SessionID:      session.ID,
		Type:           storage.InteractionEdit,
		Prompt:         prompt,
		InputImageB64:  imageB64,
		OutputImageURL: image.URL,
		OutputImageB64: image.B64,
	}, image, fmt.Sprintf("Edited image with: %q", prompt))
}

func (s *Service) finishRequest(ctx context.Context, chatID, userID int64, session *storage.Session, record *storage.Interaction, image ai.Image, caption string) error {
	if err := s.store.UpdateSessionImage(ctx, userID, image.URL, image.B64); err != nil {
		return err
	}
	if err := s.store.AppendInteraction(ctx, record); err != nil {
		s.log.Error("appending interaction", sl.User(userID), sl.Err(err))
	}

	s.log.With(
		sl.User(userID),
		slog.String("type", record.Type),
		slog.String("session", session.ID),
	).Info("image ready")

	return s.out.SendImage(chatID, image.B64, image.URL, caption)
}

// failRequest cancels the session so the next message starts fresh and
// sends the classified message. Only successful calls are logged as
// interactions. Cancellation errors must not mask the backend error.
func (s *Service) failRequest(ctx context.Context, chatID, userID int64, cause error, noRetrySuffix string) {
	s.cancelQuietly(ctx, userID)

	c := ai.Classify(cause)
	s.log.With(
		sl.User(userID),
		slog.String("kind", string(c.Kind)),
		slog.Bool("retryable", c.Retryable),
	).Warn("backend request failed", sl.Err(cause))

	message := c.UserMessage
	if c.Retryable {
		message += retryLater
	} else {
		message += noRetrySuffix
	}
	if err := s.out.SendText(chatID, message); err != nil {
		s.log.Error("sending failure message", sl.User(userID), sl.Err(err))
	}
}

func (s *Service) cancelQuietly(ctx context.Context, userID int64) {
	if err := s.store.CancelSession(ctx, userID); err != nil {
		s.log.Error("canceling session", sl.User(userID), sl.Err(err))
	}
}

func (s *Service) ensureUser(ctx context.Context, userID int64) (*storage.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	return s.store.CreateUser(ctx, userID, s.conf.IsRootAdmin(userID))
}
