package imaging

import (
	"Painty/ai"
	"Painty/core"
	"Painty/storage"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	image       ai.Image
	generateErr error
	editErr     error

	generateCalls []string
	editCalls     []editCall
}

type editCall struct {
	imageB64 string
	prompt   string
}

func (f *fakeBackend) GenerateImage(_ context.Context, prompt string) (ai.Image, error) {
	f.generateCalls = append(f.generateCalls, prompt)
	if f.generateErr != nil {
		return ai.Image{}, f.generateErr
	}
	return f.image, nil
}

func (f *fakeBackend) EditImage(_ context.Context, imageB64, prompt string) (ai.Image, error) {
	f.editCalls = append(f.editCalls, editCall{imageB64: imageB64, prompt: prompt})
	if f.editErr != nil {
		return ai.Image{}, f.editErr
	}
	return f.image, nil
}

type fakeOutbox struct {
	texts  []string
	images []sentImage
}

type sentImage struct {
	imageB64 string
	imageURL string
	caption  string
}

func (f *fakeOutbox) SendText(_ int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeOutbox) SendImage(_ int64, imageB64, imageURL, caption string) error {
	f.images = append(f.images, sentImage{imageB64: imageB64, imageURL: imageURL, caption: caption})
	return nil
}

func (f *fakeOutbox) lastText() string {
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func newTestService(backend *fakeBackend) (*Service, *storage.MemoryStorage, *fakeOutbox) {
	store := storage.NewMemoryStorage()
	out := &fakeOutbox{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(&core.Config{}, log, store, backend)
	service.SetOutbox(out)
	return service, store, out
}

func TestTextWithoutSessionGeneratesImage(t *testing.T) {
	backend := &fakeBackend{image: ai.Image{B64: "aW1n"}}
	service, store, out := newTestService(backend)
	ctx := context.Background()

	require.NoError(t, service.HandleText(ctx, 1, 1, "a red cat"))

	require.Equal(t, []string{"a red cat"}, backend.generateCalls)
	assert.Empty(t, backend.editCalls)

	session, err := store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "aW1n", session.LastImageB64)

	history, err := store.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, storage.InteractionGenerate, history[0].Type)
	assert.Equal(t, "a red cat", history[0].Prompt)
	assert.Equal(t, "aW1n", history[0].OutputImageB64)
	assert.Equal(t, session.ID, history[0].SessionID)

	require.Len(t, out.images, 1)
	assert.Equal(t, "aW1n", out.images[0].imageB64)
	assert.Contains(t, out.images[0].caption, "a red cat")
}

func TestTextWithImageSessionEditsImage(t *testing.T) {
	backend := &fakeBackend{image: ai.Image{B64: "djI="}}
	service, store, _ := newTestService(backend)
	ctx := context.Background()

	backend.image = ai.Image{B64: "djE="}
	require.NoError(t, service.HandleText(ctx, 1, 1, "a red cat"))

	backend.image = ai.Image{B64: "djI="}
	require.NoError(t, service.HandleText(ctx, 1, 1, "make it blue"))

	require.Len(t, backend.editCalls, 1)
	assert.Equal(t, "djE=", backend.editCalls[0].imageB64)
	assert.Equal(t, "make it blue", backend.editCalls[0].prompt)

	session, err := store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "djI=", session.LastImageB64)

	history, err := store.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, storage.InteractionEdit, history[0].Type)
}

func TestGenerateFailureCancelsSession(t *testing.T) {
	backend := &fakeBackend{generateErr: errors.New("quota exceeded")}
	service, store, out := newTestService(backend)
	ctx := context.Background()

	require.NoError(t, service.HandleText(ctx, 1, 1, "a red cat"))

	session, err := store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, session)

	history, err := store.History(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.Contains(t, out.lastText(), "currently busy")
	assert.Contains(t, out.lastText(), "try again later")
}

func TestEditFailureCancelsSessionAndKeepsHistory(t *testing.T) {
	backend := &fakeBackend{image: ai.Image{B64: "aW1n"}}
	service, store, out := newTestService(backend)
	ctx := context.Background()

	require.NoError(t, service.HandleText(ctx, 1, 1, "a red cat"))

	backend.editErr = errors.New("request timed out")
	require.NoError(t, service.HandleText(ctx, 1, 1, "make it blue"))

	require.Len(t, backend.editCalls, 1)
	assert.Equal(t, "aW1n", backend.editCalls[0].imageB64)

	session, err := store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, session)

	// the failed edit is not recorded
	history, err := store.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, storage.InteractionGenerate, history[0].Type)

	assert.Contains(t, out.lastText(), "timed out")
	assert.Contains(t, out.lastText(), "try again later")
}

func TestNonRetryableFailureSuggestsNewPrompt(t *testing.T) {
	backend := &fakeBackend{generateErr: errors.New("request blocked by safety settings")}
	service, _, out := newTestService(backend)

	require.NoError(t, service.HandleText(context.Background(), 1, 1, "something nasty"))

	assert.Contains(t, out.lastText(), "safety filters")
	assert.Contains(t, out.lastText(), "You can send a new prompt.")
	assert.NotContains(t, out.lastText(), "try again later")
}

// An active session without an image is superseded, not edited.
func TestTextWithEmptySessionStartsFresh(t *testing.T) {
	backend := &fakeBackend{image: ai.Image{B64: "aW1n"}}
	service, store, _ := newTestService(backend)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, 1, false)
	require.NoError(t, err)
	stale, err := store.CreateSession(ctx, 1, user.ID)
	require.NoError(t, err)

	require.NoError(t, service.HandleText(ctx, 1, 1, "a red cat"))

	require.Equal(t, []string{"a red cat"}, backend.generateCalls)
	assert.Empty(t, backend.editCalls)

	session, err := store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.NotEqual(t, stale.ID, session.ID)
}

func TestEditWithoutImageNeverCallsBackend(t *testing.T) {
	backend := &fakeBackend{}
	service, store, out := newTestService(backend)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, 1, false)
	require.NoError(t, err)
	session, err := store.CreateSession(ctx, 1, user.ID)
	require.NoError(t, err)

	require.NoError(t, service.edit(ctx, 1, 1, session, "add a hat", ""))

	assert.Empty(t, backend.editCalls)
	assert.Empty(t, backend.generateCalls)

	active, err := store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, active)

	assert.Contains(t, out.lastText(), "No previous image found")
}

func TestPhotoWithCaptionEditsImmediately(t *testing.T) {
	backend := &fakeBackend{image: ai.Image{B64: "ZWRpdGVk"}}
	service, store, _ := newTestService(backend)
	ctx := context.Background()

	require.NoError(t, service.HandlePhoto(ctx, 2, 2, "dXBsb2Fk", "add a hat"))

	require.Len(t, backend.editCalls, 1)
	assert.Equal(t, "dXBsb2Fk", backend.editCalls[0].imageB64)
	assert.Equal(t, "add a hat", backend.editCalls[0].prompt)

	session, err := store.ActiveSession(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "ZWRpdGVk", session.LastImageB64)
}

func TestPhotoWithoutCaptionAwaitsPrompt(t *testing.T) {
	backend := &fakeBackend{}
	service, store, out := newTestService(backend)
	ctx := context.Background()

	require.NoError(t, service.HandlePhoto(ctx, 1, 1, "dXBsb2Fk", "  "))

	assert.Empty(t, backend.editCalls)
	assert.Empty(t, backend.generateCalls)

	session, err := store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "dXBsb2Fk", session.LastImageB64)

	assert.Contains(t, out.lastText(), "send me a prompt")
}

func TestCancelIsIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	service, _, out := newTestService(backend)
	ctx := context.Background()

	require.NoError(t, service.CancelSession(ctx, 1, 1))
	require.NoError(t, service.CancelSession(ctx, 1, 1))

	assert.Len(t, out.texts, 2)
	assert.Contains(t, out.lastText(), "Session canceled")
}

func TestHistoryOutput(t *testing.T) {
	backend := &fakeBackend{image: ai.Image{B64: "aW1n"}}
	service, _, out := newTestService(backend)
	ctx := context.Background()

	require.NoError(t, service.History(ctx, 1, 1))
	assert.Contains(t, out.lastText(), "No interactions yet")

	require.NoError(t, service.HandleText(ctx, 1, 1, "a red cat"))
	require.NoError(t, service.History(ctx, 1, 1))

	text := out.lastText()
	assert.True(t, strings.Contains(text, "generate"))
	assert.Contains(t, text, "a red cat")
}
