// Package mongo is the MongoDB backend for accounts and FAQs.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/quickfaqs/quickfaqs-api/internal/entitlement"
	"github.com/quickfaqs/quickfaqs-api/internal/faq"
)

// Collection name constants.
const (
	colAccounts = "accounts"
	colFAQs     = "faqs"
)

// compile-time interface checks
var (
	_ entitlement.Store = (*Store)(nil)
	_ faq.Repository    = (*Store)(nil)
)

// Store implements entitlement.Store and faq.Repository on MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and returns a Store on database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("quickfaqs/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("quickfaqs/mongo: ping: %w", err)
	}
	return New(client, database), nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// Migrate creates indexes for all collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("quickfaqs/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) accounts() *mongo.Collection { return s.db.Collection(colAccounts) }

// ==================== Entitlement Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *entitlement.Account) error {
	if a == nil {
		return entitlement.ErrNilAccount
	}
	a.ApplyDefaults(now())
	if !a.Tier.Valid() {
		return entitlement.ErrInvalidTier
	}
	if _, err := s.accounts().InsertOne(ctx, toAccountModel(a)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return entitlement.ErrAccountExists
		}
		return fmt.Errorf("quickfaqs/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) findAccount(ctx context.Context, filter bson.M, op string) (*entitlement.Account, error) {
	var m accountModel
	if err := s.accounts().FindOne(ctx, filter).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, entitlement.ErrAccountNotFound
		}
		return nil, fmt.Errorf("quickfaqs/mongo: %s: %w", op, err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) GetAccount(ctx context.Context, accountID string) (*entitlement.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": accountID}, "get account")
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*entitlement.Account, error) {
	return s.findAccount(ctx, bson.M{"email": entitlement.NormalizeEmail(email)}, "get account by email")
}

func (s *Store) GetAccountByStripeCustomer(ctx context.Context, customerID string) (*entitlement.Account, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, entitlement.ErrAccountNotFound
	}
	return s.findAccount(ctx, bson.M{"stripe_customer_id": customerID}, "get account by stripe customer")
}

func (s *Store) SetTier(ctx context.Context, accountID string, tier entitlement.Tier, credits int64) (*entitlement.Account, error) {
	if !tier.Valid() || credits < 0 {
		return nil, entitlement.ErrInvalidTier
	}
	var m accountModel
	err := s.accounts().FindOneAndUpdate(ctx,
		bson.M{"_id": accountID},
		bson.M{
			"$set": bson.M{"tier": string(tier), "credits": credits, "updated_at": now()},
			"$inc": bson.M{"tier_revision": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, entitlement.ErrAccountNotFound
		}
		return nil, fmt.Errorf("quickfaqs/mongo: set tier: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) LinkStripeCustomer(ctx context.Context, accountID, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil
	}
	res, err := s.accounts().UpdateOne(ctx,
		bson.M{"_id": accountID},
		bson.M{"$set": bson.M{"stripe_customer_id": customerID, "updated_at": now()}},
	)
	if err != nil {
		return fmt.Errorf("quickfaqs/mongo: link stripe customer: %w", err)
	}
	if res.MatchedCount == 0 {
		return entitlement.ErrAccountNotFound
	}
	return nil
}

func (s *Store) DecrementCreditIfPositive(ctx context.Context, accountID string) (entitlement.Debit, error) {
	var m accountModel
	err := s.accounts().FindOneAndUpdate(ctx,
		bson.M{
			"_id":     accountID,
			"tier":    bson.M{"$ne": string(entitlement.TierPremium)},
			"credits": bson.M{"$gt": 0},
		},
		bson.M{
			"$inc": bson.M{"credits": -1},
			"$set": bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err == nil {
		return entitlement.Debit{Remaining: m.Credits, Revision: m.TierRevision}, nil
	}
	if !isNoDocuments(err) {
		return entitlement.Debit{}, fmt.Errorf("quickfaqs/mongo: decrement credit: %w", err)
	}
	remaining, err := s.classifyMiss(ctx, accountID, entitlement.ErrNoCreditsRemaining)
	return entitlement.Debit{Remaining: remaining}, err
}

func (s *Store) RestoreCredit(ctx context.Context, accountID string, revision int64) (int64, error) {
	var m accountModel
	err := s.accounts().FindOneAndUpdate(ctx,
		bson.M{
			"_id":           accountID,
			"tier":          bson.M{"$ne": string(entitlement.TierPremium)},
			"tier_revision": revision,
		},
		bson.M{
			"$inc": bson.M{"credits": 1},
			"$set": bson.M{"updated_at": now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err == nil {
		return m.Credits, nil
	}
	if !isNoDocuments(err) {
		return 0, fmt.Errorf("quickfaqs/mongo: restore credit: %w", err)
	}
	return s.classifyMiss(ctx, accountID, entitlement.ErrTierChanged)
}

// classifyMiss explains why a guarded update matched nothing.
func (s *Store) classifyMiss(ctx context.Context, accountID string, fallback error) (int64, error) {
	a, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !a.Tier.Metered() {
		return a.Credits, entitlement.ErrUnmetered
	}
	return 0, fallback
}

func (s *Store) ListAccounts(ctx context.Context, opts entitlement.ListOptions) ([]*entitlement.Account, error) {
	filter := bson.M{}
	if opts.Tier != "" {
		filter["tier"] = string(opts.Tier)
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.accounts().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("quickfaqs/mongo: list accounts: %w", err)
	}
	var models []accountModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("quickfaqs/mongo: list accounts: %w", err)
	}

	result := make([]*entitlement.Account, len(models))
	for i := range models {
		result[i] = fromAccountModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountByTier(ctx context.Context) (map[entitlement.Tier]int, error) {
	cur, err := s.accounts().Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$tier"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("quickfaqs/mongo: count accounts by tier: %w", err)
	}
	var rows []struct {
		Tier  string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("quickfaqs/mongo: count accounts by tier: %w", err)
	}

	counts := make(map[entitlement.Tier]int, len(rows))
	for _, r := range rows {
		counts[entitlement.Tier(r.Tier)] = r.Count
	}
	return counts, nil
}

// ==================== FAQ Repository ====================

func (s *Store) CreateFAQ(ctx context.Context, f *faq.FAQ) error {
	if f == nil {
		return fmt.Errorf("quickfaqs/mongo: faq is nil")
	}
	faq.PrepareForInsert(f)
	if _, err := s.db.Collection(colFAQs).InsertOne(ctx, toFAQModel(f)); err != nil {
		return fmt.Errorf("quickfaqs/mongo: create faq: %w", err)
	}
	return nil
}

func (s *Store) GetFAQ(ctx context.Context, accountID, faqID string) (*faq.FAQ, error) {
	var m faqModel
	err := s.db.Collection(colFAQs).FindOne(ctx, bson.M{"_id": faqID, "account_id": accountID}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, faq.ErrFAQNotFound
		}
		return nil, fmt.Errorf("quickfaqs/mongo: get faq: %w", err)
	}
	return fromFAQModel(&m), nil
}

func (s *Store) ListFAQs(ctx context.Context, accountID string) ([]*faq.FAQ, error) {
	cur, err := s.db.Collection(colFAQs).Find(ctx,
		bson.M{"account_id": accountID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("quickfaqs/mongo: list faqs: %w", err)
	}
	var models []faqModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("quickfaqs/mongo: list faqs: %w", err)
	}

	result := make([]*faq.FAQ, len(models))
	for i := range models {
		result[i] = fromFAQModel(&models[i])
	}
	return result, nil
}

// ==================== Helpers ====================

func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "stripe_customer_id", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
			{Keys: bson.D{{Key: "tier", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colFAQs: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
}
