package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/faisalazhar1701/destinycreditai-sub000/internal/core/domain"
)

const (
	identityCollection = "identities"
	letterCollection   = "letters"
)

// IdentityStore is the Credential Store backed by one identities collection.
// Multi-field state transitions are single conditional updates, so no
// transaction is needed except for the delete cascade.
type IdentityStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	letters *mongo.Collection
}

func NewIdentityStore(db *mongo.Database) *IdentityStore {
	return &IdentityStore{
		client:  db.Client(),
		coll:    db.Collection(identityCollection),
		letters: db.Collection(letterCollection),
	}
}

// EnsureIndexes creates the uniqueness indexes the store relies on.
func (s *IdentityStore) EnsureIndexes(ctx context.Context) error {
	sparseUnique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName(field + "_unique").
				SetPartialFilterExpression(bson.M{field: bson.M{"$type": "string"}}),
		}
	}
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("email_unique")},
		sparseUnique("username"),
		sparseUnique("invite_token"),
		sparseUnique("reset_token"),
	})
	if err != nil {
		return fmt.Errorf("create identity indexes: %w", err)
	}
	_, err = s.letters.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "identity_id", Value: 1}}})
	if err != nil {
		return fmt.Errorf("create letter indexes: %w", err)
	}
	return nil
}

type identityDoc struct {
	ID                 string     `bson:"_id"`
	Email              string     `bson:"email"`
	Name               string     `bson:"name"`
	Username           *string    `bson:"username,omitempty"`
	PasswordHash       *string    `bson:"password_hash,omitempty"`
	Role               string     `bson:"role"`
	Status             string     `bson:"status"`
	Active             bool       `bson:"active"`
	SubscriptionStatus string     `bson:"subscription_status,omitempty"`
	InviteToken        *string    `bson:"invite_token,omitempty"`
	InviteExpiresAt    *time.Time `bson:"invite_expires_at,omitempty"`
	ResetToken         *string    `bson:"reset_token,omitempty"`
	ResetExpiresAt     *time.Time `bson:"reset_expires_at,omitempty"`
	ProductName        string     `bson:"product_name,omitempty"`
	ProductID          string     `bson:"product_id,omitempty"`
	CreatedAt          time.Time  `bson:"created_at"`
	UpdatedAt          time.Time  `bson:"updated_at"`
	LastLoginAt        *time.Time `bson:"last_login_at,omitempty"`
	UnsubscribedAt     *time.Time `bson:"unsubscribed_at,omitempty"`
}

func toDoc(i *domain.Identity) identityDoc {
	return identityDoc{
		ID:                 i.ID,
		Email:              i.Email,
		Name:               i.Name,
		Username:           i.Username,
		PasswordHash:       i.PasswordHash,
		Role:               string(i.Role),
		Status:             string(i.Status),
		Active:             i.Active,
		SubscriptionStatus: string(i.SubscriptionStatus),
		InviteToken:        i.InviteToken,
		InviteExpiresAt:    i.InviteExpiresAt,
		ResetToken:         i.ResetToken,
		ResetExpiresAt:     i.ResetExpiresAt,
		ProductName:        i.ProductName,
		ProductID:          i.ProductID,
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
		LastLoginAt:        i.LastLoginAt,
		UnsubscribedAt:     i.UnsubscribedAt,
	}
}

func (d *identityDoc) toDomain() *domain.Identity {
	return &domain.Identity{
		ID:                 d.ID,
		Email:              d.Email,
		Name:               d.Name,
		Username:           d.Username,
		PasswordHash:       d.PasswordHash,
		Role:               domain.Role(d.Role),
		Status:             domain.Status(d.Status),
		Active:             d.Active,
		SubscriptionStatus: domain.SubscriptionStatus(d.SubscriptionStatus),
		InviteToken:        d.InviteToken,
		InviteExpiresAt:    utc(d.InviteExpiresAt),
		ResetToken:         d.ResetToken,
		ResetExpiresAt:     utc(d.ResetExpiresAt),
		ProductName:        d.ProductName,
		ProductID:          d.ProductID,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
		LastLoginAt:        utc(d.LastLoginAt),
		UnsubscribedAt:     utc(d.UnsubscribedAt),
	}
}

func (s *IdentityStore) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *IdentityStore) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *IdentityStore) FindByEmailOrUsername(ctx context.Context, identifier string) (*domain.Identity, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"$or": bson.A{bson.M{"email": identifier}, bson.M{"username": identifier}}},
		options.Find().SetLimit(2))
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	var docs []identityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	switch len(docs) {
	case 0:
		return nil, domain.ErrIdentityNotFound
	case 1:
		return docs[0].toDomain(), nil
	default:
		return nil, domain.ErrAmbiguousIdentifier
	}
}

func (s *IdentityStore) FindByInviteToken(ctx context.Context, token string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"invite_token": token})
}

func (s *IdentityStore) FindByResetToken(ctx context.Context, token string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"reset_token": token})
}

func (s *IdentityStore) List(ctx context.Context) ([]*domain.Identity, error) {
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	var docs []identityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode identities: %w", err)
	}
	out := make([]*domain.Identity, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toDomain())
	}
	return out, nil
}

func (s *IdentityStore) Create(ctx context.Context, identity *domain.Identity) (*domain.Identity, error) {
	i := identity.Clone()
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if err := i.CheckInvariants(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if i.CreatedAt.IsZero() {
		i.CreatedAt = now
	}
	i.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, toDoc(i)); err != nil {
		return nil, mapError("insert identity", err)
	}
	return i, nil
}

// Update applies patch with optimistic concurrency on updated_at so that
// invariants checked in memory still hold when the write lands. Only the
// patched fields are written; RecordLogin does not bump updated_at, so a
// concurrent login is neither lost nor reported as a conflict.
func (s *IdentityStore) Update(ctx context.Context, id string, patch domain.IdentityPatch) (*domain.Identity, error) {
	current, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	next.Apply(patch)
	if err := next.CheckInvariants(); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id, "updated_at": current.UpdatedAt}, patchUpdate(next, patch))
	if err != nil {
		return nil, mapError("update identity", err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("update identity: concurrent modification: %w", domain.ErrConflict)
	}
	return next, nil
}

// patchUpdate builds the $set/$unset document for the fields patch touches,
// taking their values from next, the identity with patch applied.
func patchUpdate(next *domain.Identity, patch domain.IdentityPatch) bson.M {
	set := bson.M{"updated_at": next.UpdatedAt}
	unset := bson.M{}
	if patch.Name != nil {
		set["name"] = next.Name
	}
	if patch.Username != nil {
		if next.Username == nil {
			unset["username"] = ""
		} else {
			set["username"] = *next.Username
		}
	}
	if patch.Role != nil {
		set["role"] = string(next.Role)
	}
	if patch.Active != nil || patch.PasswordHash != nil {
		set["active"] = next.Active
	}
	if patch.SubscriptionStatus != nil {
		if next.SubscriptionStatus == "" {
			unset["subscription_status"] = ""
		} else {
			set["subscription_status"] = string(next.SubscriptionStatus)
		}
	}
	if patch.UnsubscribedAt != nil {
		set["unsubscribed_at"] = *next.UnsubscribedAt
	}
	if patch.ProductName != nil {
		set["product_name"] = next.ProductName
	}
	if patch.ProductID != nil {
		set["product_id"] = next.ProductID
	}
	if patch.PasswordHash != nil {
		set["password_hash"] = *next.PasswordHash
		set["status"] = string(next.Status)
		unset["invite_token"] = ""
		unset["invite_expires_at"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

// Delete removes the identity and its letters in one transaction. Requires
// a replica set or sharded cluster.
func (s *IdentityStore) Delete(ctx context.Context, id string) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("delete identity: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		res, err := s.coll.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return nil, err
		}
		if res.DeletedCount == 0 {
			return nil, domain.ErrIdentityNotFound
		}
		_, err = s.letters.DeleteMany(sc, bson.M{"identity_id": id})
		return nil, err
	})
	if err != nil {
		return mapError("delete identity", err)
	}
	return nil
}

func (s *IdentityStore) IssueInviteToken(ctx context.Context, id string, grant domain.TokenGrant, reuseLive bool, now time.Time) (domain.TokenGrant, error) {
	filter := bson.M{"_id": id, "status": string(domain.StatusInvited)}
	if reuseLive {
		// Only overwrite when there is no live token.
		filter["$or"] = bson.A{
			bson.M{"invite_expires_at": bson.M{"$exists": false}},
			bson.M{"invite_expires_at": bson.M{"$lte": now}},
		}
	}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"invite_token":      grant.Token,
		"invite_expires_at": grant.ExpiresAt,
		"updated_at":        time.Now().UTC(),
	}})
	if err != nil {
		return domain.TokenGrant{}, mapError("issue invite token", err)
	}
	if res.MatchedCount == 1 {
		return grant, nil
	}

	current, err := s.FindByID(ctx, id)
	if err != nil {
		return domain.TokenGrant{}, err
	}
	if current.Status != domain.StatusInvited {
		return domain.TokenGrant{}, domain.ErrNotInvited
	}
	if live, ok := current.LiveInvite(now); ok {
		return live, nil
	}
	return domain.TokenGrant{}, fmt.Errorf("issue invite token: concurrent modification: %w", domain.ErrConflict)
}

func (s *IdentityStore) ConsumeInviteToken(ctx context.Context, token, passwordHash string, now time.Time) (*domain.Identity, error) {
	return s.consume(ctx, "invite_token", "invite_expires_at", token, now,
		bson.M{"status": string(domain.StatusInvited)},
		bson.M{
			"$set": bson.M{
				"password_hash": passwordHash,
				"status":        string(domain.StatusActive),
				"active":        true,
				"updated_at":    time.Now().UTC(),
			},
			"$unset": bson.M{"invite_token": "", "invite_expires_at": ""},
		})
}

func (s *IdentityStore) SetResetToken(ctx context.Context, id string, grant domain.TokenGrant) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"reset_token":      grant.Token,
		"reset_expires_at": grant.ExpiresAt,
		"updated_at":       time.Now().UTC(),
	}})
	if err != nil {
		return mapError("set reset token", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}

func (s *IdentityStore) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) (*domain.Identity, error) {
	return s.consume(ctx, "reset_token", "reset_expires_at", token, now, nil, bson.M{
		"$set":   bson.M{"password_hash": passwordHash, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"reset_token": "", "reset_expires_at": ""},
	})
}

func (s *IdentityStore) RecordLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_login_at": at}}); err != nil {
		return mapError("record login", err)
	}
	return nil
}

func (s *IdentityStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// consume applies update only while token is unexpired and the document
// matches cond, in a single conditional write.
func (s *IdentityStore) consume(ctx context.Context, tokenField, expiryField, token string, now time.Time, cond, update bson.M) (*domain.Identity, error) {
	owner := bson.M{tokenField: token}
	for k, v := range cond {
		owner[k] = v
	}
	filter := bson.M{expiryField: bson.M{"$gt": now}}
	for k, v := range owner {
		filter[k] = v
	}

	var doc identityDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, mapError("consume token", err)
	}

	n, err := s.coll.CountDocuments(ctx, owner)
	if err != nil {
		return nil, mapError("consume token", err)
	}
	if n > 0 {
		return nil, domain.ErrExpiredToken
	}
	return nil, domain.ErrInvalidToken
}

func (s *IdentityStore) findOne(ctx context.Context, filter bson.M) (*domain.Identity, error) {
	var doc identityDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapError("find identity", err)
	}
	return doc.toDomain(), nil
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, domain.ErrIdentityNotFound):
		return domain.ErrIdentityNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, domain.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
