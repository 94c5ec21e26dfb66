package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection        = "users"
	sessionsCollection     = "sessions"
	interactionsCollection = "interactions"
	pendingCollection      = "pending_actions"
)

type MongoStorage struct {
	client       *mongo.Client
	users        *mongo.Collection
	sessions     *mongo.Collection
	interactions *mongo.Collection
	pending      *mongo.Collection
	log          *slog.Logger

	// serializes the deactivate-then-insert pair in CreateSession;
	// multi-document transactions are unavailable on a standalone mongod
	sessionMu sync.Mutex
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(database)
	m := &MongoStorage{
		client:       client,
		users:        db.Collection(usersCollection),
		sessions:     db.Collection(sessionsCollection),
		interactions: db.Collection(interactionsCollection),
		pending:      db.Collection(pendingCollection),
		log:          log,
	}

	m.createIndexes(ctx)

	return m, nil
}

func (m *MongoStorage) createIndexes(ctx context.Context) {
	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{m.users, mongo.IndexModel{
			Keys:    bson.D{{Key: "telegram_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		{m.sessions, mongo.IndexModel{
			Keys: bson.D{{Key: "telegram_id", Value: 1}, {Key: "active", Value: 1}},
		}},
		{m.interactions, mongo.IndexModel{
			Keys: bson.D{{Key: "telegram_id", Value: 1}, {Key: "created_at", Value: -1}},
		}},
		{m.pending, mongo.IndexModel{
			Keys:    bson.D{{Key: "telegram_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}
	for _, idx := range indexes {
		if _, err := idx.coll.Indexes().CreateOne(ctx, idx.model); err != nil {
			m.log.Warn("creating index",
				slog.String("collection", idx.coll.Name()),
				slog.String("error", err.Error()))
		}
	}
}

func (m *MongoStorage) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	var user User
	err := m.users.FindOne(ctx, bson.M{"telegram_id": telegramID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &user, nil
}

func (m *MongoStorage) CreateUser(ctx context.Context, telegramID int64, isAdmin bool) (*User, error) {
	now := time.Now()
	user := &User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		IsActive:   true,
		IsAdmin:    isAdmin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := m.users.InsertOne(ctx, user); err != nil {
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return user, nil
}

func (m *MongoStorage) SetUserActive(ctx context.Context, telegramID int64, active bool) error {
	update := bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now()}}
	_, err := m.users.UpdateOne(ctx, bson.M{"telegram_id": telegramID}, update)
	return err
}

func (m *MongoStorage) EnsureAdminUser(ctx context.Context, telegramID int64) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"is_active":  true,
			"is_admin":   true,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":         uuid.NewString(),
			"telegram_id": telegramID,
			"created_at":  now,
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := m.users.UpdateOne(ctx, bson.M{"telegram_id": telegramID}, update, opts)
	return err
}

func (m *MongoStorage) ListUsers(ctx context.Context) ([]User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := m.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	return users, nil
}

func (m *MongoStorage) ActiveSession(ctx context.Context, telegramID int64) (*Session, error) {
	var session Session
	filter := bson.M{"telegram_id": telegramID, "active": true}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err := m.sessions.FindOne(ctx, filter, opts).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}
	return &session, nil
}

func (m *MongoStorage) CreateSession(ctx context.Context, telegramID int64, userID string) (*Session, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	now := time.Now()
	_, err := m.sessions.UpdateMany(ctx,
		bson.M{"telegram_id": telegramID, "active": true},
		bson.M{"$set": bson.M{"active": false, "updated_at": now}})
	if err != nil {
		return nil, fmt.Errorf("deactivating sessions: %w", err)
	}

	session := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		TelegramID: telegramID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := m.sessions.InsertOne(ctx, session); err != nil {
		return nil, fmt.Errorf("inserting session: %w", err)
	}
	return session, nil
}

func (m *MongoStorage) UpdateSessionImage(ctx context.Context, telegramID int64, imageURL, imageB64 string) error {
	update := bson.M{"$set": bson.M{
		"last_image_url": imageURL,
		"last_image_b64": imageB64,
		"updated_at":     time.Now(),
	}}
	_, err := m.sessions.UpdateOne(ctx, bson.M{"telegram_id": telegramID, "active": true}, update)
	return err
}

func (m *MongoStorage) CancelSession(ctx context.Context, telegramID int64) error {
	update := bson.M{"$set": bson.M{"active": false, "updated_at": time.Now()}}
	_, err := m.sessions.UpdateMany(ctx, bson.M{"telegram_id": telegramID, "active": true}, update)
	return err
}

func (m *MongoStorage) AppendInteraction(ctx context.Context, in *Interaction) error {
	record := *in
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	_, err := m.interactions.InsertOne(ctx, &record)
	return err
}

func (m *MongoStorage) History(ctx context.Context, telegramID int64, limit int) ([]Interaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.interactions.Find(ctx, bson.M{"telegram_id": telegramID}, opts)
	if err != nil {
		return nil, fmt.Errorf("querying interactions: %w", err)
	}
	var history []Interaction
	if err := cursor.All(ctx, &history); err != nil {
		return nil, fmt.Errorf("decoding interactions: %w", err)
	}
	return history, nil
}

func (m *MongoStorage) SetPendingAction(ctx context.Context, telegramID int64, kind string) error {
	update := bson.M{"$set": bson.M{"kind": kind, "created_at": time.Now()}}
	opts := options.Update().SetUpsert(true)
	_, err := m.pending.UpdateOne(ctx, bson.M{"telegram_id": telegramID}, update, opts)
	return err
}

func (m *MongoStorage) TakePendingAction(ctx context.Context, telegramID int64) (*PendingAction, error) {
	var action PendingAction
	err := m.pending.FindOneAndDelete(ctx, bson.M{"telegram_id": telegramID}).Decode(&action)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taking pending action: %w", err)
	}
	return &action, nil
}

func (m *MongoStorage) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
