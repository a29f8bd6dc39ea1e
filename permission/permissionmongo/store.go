// Package permissionmongo implements permission.Store against MongoDB,
// calling *mongo.Collection methods directly (no wrapper interface).
package permissionmongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lumenanalytics/agentd/permission"
)

const (
	defaultPermissionsCollection = "asset_permissions"
	defaultMembershipCollection  = "users_to_organizations"
	defaultUsersCollection       = "users"
	defaultCollectionsCollection = "collections_to_assets"
	defaultOpTimeout             = 5 * time.Second
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client                *mongodriver.Client
	Database              string
	PermissionsCollection string
	MembershipCollection  string
	UsersCollection       string
	CollectionsCollection string
	Timeout               time.Duration
}

// Store implements permission.Store against MongoDB collections.
type Store struct {
	permissions *mongodriver.Collection
	membership  *mongodriver.Collection
	users       *mongodriver.Collection
	collections *mongodriver.Collection
	timeout     time.Duration
}

// New constructs a Store from Options, creating the indexes the Kernel's
// query patterns rely on (unique permission tuple, lookups by asset,
// membership by user+org).
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("permissionmongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("permissionmongo: database name is required")
	}
	permColl := firstNonEmpty(opts.PermissionsCollection, defaultPermissionsCollection)
	memColl := firstNonEmpty(opts.MembershipCollection, defaultMembershipCollection)
	usersColl := firstNonEmpty(opts.UsersCollection, defaultUsersCollection)
	collColl := firstNonEmpty(opts.CollectionsCollection, defaultCollectionsCollection)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		permissions: db.Collection(permColl),
		membership:  db.Collection(memColl),
		users:       db.Collection(usersColl),
		collections: db.Collection(collColl),
		timeout:     timeout,
	}

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.ensureIndexes(ictx); err != nil {
		return nil, err
	}
	return s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.permissions.Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{
			Keys: bson.D{
				{Key: "asset_id", Value: 1},
				{Key: "asset_type", Value: 1},
				{Key: "identity_id", Value: 1},
				{Key: "identity_type", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.D{
				{Key: "deleted_at", Value: bson.D{{Key: "$exists", Value: false}}},
			}),
		},
		{Keys: bson.D{{Key: "identity_id", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.membership.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "organization_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

type permissionDoc struct {
	IdentityID   string     `bson:"identity_id"`
	IdentityType string     `bson:"identity_type"`
	AssetID      string     `bson:"asset_id"`
	AssetType    string     `bson:"asset_type"`
	Role         int        `bson:"role"`
	CreatedBy    string     `bson:"created_by"`
	UpdatedBy    string     `bson:"updated_by"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
	DeletedAt    *time.Time `bson:"deleted_at,omitempty"`
}

func (d permissionDoc) toPermission() permission.Permission {
	return permission.Permission{
		IdentityID:   d.IdentityID,
		IdentityType: permission.IdentityType(d.IdentityType),
		AssetID:      d.AssetID,
		AssetType:    permission.AssetType(d.AssetType),
		Role:         permission.Role(d.Role),
		CreatedBy:    d.CreatedBy,
		UpdatedBy:    d.UpdatedBy,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		DeletedAt:    d.DeletedAt,
	}
}

// DirectRole implements permission.Store.
func (s *Store) DirectRole(ctx context.Context, assetID string, assetType permission.AssetType, identityID string, identityType permission.IdentityType) (permission.Role, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{
		"asset_id":      assetID,
		"asset_type":    string(assetType),
		"identity_id":   identityID,
		"identity_type": string(identityType),
		"deleted_at":    bson.M{"$exists": false},
	}
	var doc permissionDoc
	err := s.permissions.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return permission.RoleNone, nil
	}
	if err != nil {
		return permission.RoleNone, err
	}
	return permission.Role(doc.Role), nil
}

// CollectionRolesContaining implements permission.Store.
func (s *Store) CollectionRolesContaining(ctx context.Context, assetID string, assetType permission.AssetType, identityID string) ([]permission.Role, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Find collections that contain this asset.
	cta := s.collections
	cur, err := cta.Find(ctx, bson.M{
		"asset_id":   assetID,
		"asset_type": string(assetType),
		"deleted_at": bson.M{"$exists": false},
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var collectionIDs []string
	for cur.Next(ctx) {
		var row struct {
			CollectionID string `bson:"collection_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		collectionIDs = append(collectionIDs, row.CollectionID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if len(collectionIDs) == 0 {
		return nil, nil
	}

	permCur, err := s.permissions.Find(ctx, bson.M{
		"asset_id":      bson.M{"$in": collectionIDs},
		"asset_type":    string(permission.AssetTypeCollection),
		"identity_id":   identityID,
		"deleted_at":    bson.M{"$exists": false},
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = permCur.Close(ctx) }()

	var roles []permission.Role
	for permCur.Next(ctx) {
		var doc permissionDoc
		if err := permCur.Decode(&doc); err != nil {
			return nil, err
		}
		roles = append(roles, permission.Role(doc.Role))
	}
	return roles, permCur.Err()
}

// OrgRole implements permission.Store.
func (s *Store) OrgRole(ctx context.Context, userID, organizationID string) (permission.OrgRole, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var row struct {
		Role string `bson:"role"`
	}
	err := s.membership.FindOne(ctx, bson.M{
		"user_id":         userID,
		"organization_id": organizationID,
		"deleted_at":      bson.M{"$exists": false},
	}).Decode(&row)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return "", permission.ErrIdentityNotFound
	}
	if err != nil {
		return "", err
	}
	return permission.OrgRole(row.Role), nil
}

// Upsert implements permission.Store.
func (s *Store) Upsert(ctx context.Context, p permission.Permission) (permission.Permission, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{
		"asset_id":      p.AssetID,
		"asset_type":    string(p.AssetType),
		"identity_id":   p.IdentityID,
		"identity_type": string(p.IdentityType),
	}
	update := bson.M{
		"$set": bson.M{
			"role":       int(p.Role),
			"updated_by": p.UpdatedBy,
			"updated_at": p.UpdatedAt,
		},
		"$unset": bson.M{"deleted_at": ""},
		"$setOnInsert": bson.M{
			"asset_id":      p.AssetID,
			"asset_type":    string(p.AssetType),
			"identity_id":   p.IdentityID,
			"identity_type": string(p.IdentityType),
			"created_by":    p.CreatedBy,
			"created_at":    p.CreatedAt,
		},
	}
	if _, err := s.permissions.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return permission.Permission{}, err
	}
	var doc permissionDoc
	if err := s.permissions.FindOne(ctx, filter).Decode(&doc); err != nil {
		return permission.Permission{}, err
	}
	return doc.toPermission(), nil
}

// SoftDelete implements permission.Store.
func (s *Store) SoftDelete(ctx context.Context, assetID string, assetType permission.AssetType, identityID string, identityType permission.IdentityType, actor string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{
		"asset_id":      assetID,
		"asset_type":    string(assetType),
		"identity_id":   identityID,
		"identity_type": string(identityType),
		"deleted_at":    bson.M{"$exists": false},
	}
	now := time.Now().UTC()
	res, err := s.permissions.UpdateOne(ctx, filter, bson.M{
		"$set": bson.M{"deleted_at": now, "updated_at": now, "updated_by": actor},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return permission.ErrNoActivePermission
	}
	return nil
}

// ListShares implements permission.Store.
func (s *Store) ListShares(ctx context.Context, assetID string, assetType permission.AssetType) ([]permission.PermissionWithIdentity, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.permissions.Find(ctx, bson.M{
		"asset_id":   assetID,
		"asset_type": string(assetType),
		"deleted_at": bson.M{"$exists": false},
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []permission.PermissionWithIdentity
	for cur.Next(ctx) {
		var doc permissionDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		p := doc.toPermission()
		item := permission.PermissionWithIdentity{Permission: p}
		if p.IdentityType == permission.IdentityUser {
			var user struct {
				Email string `bson:"email"`
				Name  string `bson:"name"`
			}
			if err := s.users.FindOne(ctx, bson.M{"_id": p.IdentityID}).Decode(&user); err == nil {
				item.Identity = &permission.IdentitySummary{ID: p.IdentityID, Email: user.Email, Name: user.Name}
			}
		}
		out = append(out, item)
	}
	return out, cur.Err()
}

// ResolveUserByEmail implements permission.Store.
func (s *Store) ResolveUserByEmail(ctx context.Context, email string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var row struct {
		ID string `bson:"_id"`
	}
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&row)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return "", permission.ErrUserNotFound
	}
	if err != nil {
		return "", err
	}
	return row.ID, nil
}
