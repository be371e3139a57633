package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Hwndy/PR-BOOK/domain"
	serrors "github.com/Hwndy/PR-BOOK/errors"
)

// EbookTokenRepository implements domain.TokenRepository on MongoDB. The
// token value is the document _id, so issuance uniqueness rides on the
// primary key; device binding is a single conditional update so the
// first-claim race is settled inside the database.
type EbookTokenRepository struct {
	coll *mongo.Collection
}

// NewEbookTokenRepository creates the repository and ensures its indexes:
// a unique session id, a TTL index reaping expired documents, and a
// compound index backing the concurrent-session queries.
func NewEbookTokenRepository(ctx context.Context, db *mongo.Database) (domain.TokenRepository, error) {
	repo := &EbookTokenRepository{
		coll: db.Collection(EbookTokensCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
		{
			Keys: bson.D{
				{Key: "email", Value: 1},
				{Key: "order_reference", Value: 1},
				{Key: "last_access", Value: 1},
			},
		},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for ebook_tokens collection (might already exist)")
	}

	return repo, nil
}

func (r *EbookTokenRepository) Insert(ctx context.Context, token *domain.ReadingToken) error {
	_, err := r.coll.InsertOne(ctx, token)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return serrors.ErrDuplicateToken
		}
		log.Error().Err(err).Msg("Error storing reading token in MongoDB")
		return err
	}
	return nil
}

func (r *EbookTokenRepository) Find(ctx context.Context, token string) (*domain.ReadingToken, error) {
	var record domain.ReadingToken
	err := r.coll.FindOne(ctx, bson.M{"_id": token}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, serrors.ErrTokenNotFound
		}
		log.Error().Err(err).Msg("Error loading reading token from MongoDB")
		return nil, err
	}
	return &record, nil
}

// TryBindDevice performs the one-time unbound-to-bound transition. The filter
// matches only while device_fingerprint is still empty, so of two racing
// callers exactly one sees ModifiedCount == 1.
func (r *EbookTokenRepository) TryBindDevice(ctx context.Context, token string, binding domain.DeviceBinding) (bool, error) {
	// last_access is deliberately not written here: binding alone is not
	// session activity, only a completed validation is.
	filter := bson.M{"_id": token, "device_fingerprint": ""}
	update := bson.M{"$set": bson.M{
		"device_fingerprint": binding.Fingerprint,
		"user_agent":         binding.UserAgent,
		"ip":                 binding.IP,
	}}

	result, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Msg("Error binding device to reading token")
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

func (r *EbookTokenRepository) TouchLastAccess(ctx context.Context, token string, at time.Time) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": token},
		bson.M{"$set": bson.M{"last_access": at.UTC()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return serrors.ErrTokenNotFound
	}
	return nil
}

func (r *EbookTokenRepository) Delete(ctx context.Context, token string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"_id": token})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return serrors.ErrTokenNotFound
	}
	return nil
}

func (r *EbookTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.coll.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now().UTC()}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *EbookTokenRepository) CountTotal(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}

func (r *EbookTokenRepository) CountExpired(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now().UTC()}})
}

func (r *EbookTokenRepository) CountActive(ctx context.Context, window time.Duration) (int64, error) {
	now := time.Now().UTC()
	return r.coll.CountDocuments(ctx, bson.M{
		"expires_at":  bson.M{"$gt": now},
		"last_access": bson.M{"$gt": now.Add(-window)},
	})
}

func (r *EbookTokenRepository) CountActivePeers(ctx context.Context, email, orderReference, exceptSessionID string, window time.Duration) (int64, error) {
	now := time.Now().UTC()
	return r.coll.CountDocuments(ctx, bson.M{
		"email":           email,
		"order_reference": orderReference,
		"session_id":      bson.M{"$ne": exceptSessionID},
		"expires_at":      bson.M{"$gt": now},
		"last_access":     bson.M{"$gt": now.Add(-window)},
	})
}

var _ domain.TokenRepository = (*EbookTokenRepository)(nil)
