package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/logger"
)

const (
	walletsCollection       = "wallets"
	topUpsCollection        = "topups"
	watchersCollection      = "watchers"
	notificationsCollection = "notifications"
)

// MongoDB stores the data model as documents. Wallets hold ordered arrays
// of top-up, watcher and notification ids, watchers keep their channel ids
// under a "services" sub-document.
type MongoDB struct {
	logger *logger.Logger

	client       *mongo.Client
	db           *mongo.Database
	transactions bool
}

type mongoWallet struct {
	ObjectID      primitive.ObjectID `bson:"_id,omitempty"`
	Address       string             `bson:"address"`
	TopUps        []string           `bson:"topUps"`
	Watchers      []string           `bson:"watchers"`
	Notifications []string           `bson:"notifications"`
	CreatedAt     int64              `bson:"createdAt"`
}

type mongoTopUp struct {
	ID string `bson:"_id"`
	// Wallet is set once the top-up is linked and backs the per wallet
	// uniqueness index.
	Wallet    string `bson:"wallet,omitempty"`
	Index     string `bson:"index"`
	NetID     int64  `bson:"netId"`
	CreatedAt int64  `bson:"createdAt"`
}

func (t mongoTopUp) model(owner *string) models.TopUp {
	return models.TopUp{ID: t.ID, Index: t.Index, NetID: t.NetID, CreatedAt: t.CreatedAt, WalletAddress: owner}
}

type mongoWatcher struct {
	ID        string            `bson:"_id"`
	Services  map[string]string `bson:"services"`
	CreatedAt int64             `bson:"createdAt"`
}

func (w mongoWatcher) model() models.Watcher {
	watcher := models.Watcher{ID: w.ID, CreatedAt: w.CreatedAt}
	for _, channel := range models.Channels {
		if id, ok := w.Services[string(channel)]; ok {
			watcher.Channel = channel
			watcher.SubscriberID = id
			break
		}
	}
	return watcher
}

type mongoNotification struct {
	ID        string `bson:"_id"`
	Wallet    string `bson:"wallet"`
	Message   string `bson:"message"`
	Label     string `bson:"label,omitempty"`
	CreatedAt int64  `bson:"createdAt"`
}

func serviceKey(channel models.Channel) string {
	return "services." + string(channel)
}

// NewMongoDB connects to MongoDB and makes sure the indexes exist.
// Transactions need a replica set; with transactions disabled WithTx runs
// its callback directly.
func NewMongoDB(ctx context.Context, uri, database string, transactions bool, logger *logger.Logger) (*MongoDB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	db := &MongoDB{logger: logger, client: client, db: client.Database(database), transactions: transactions}
	if err := db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.Info("Successfully connected to MongoDB!", "database", database, "transactions", transactions)
	return db, nil
}

func (db *MongoDB) ensureIndexes(ctx context.Context) error {
	_, err := db.db.Collection(walletsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "address", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create wallet index: %w", err)
	}
	_, err = db.db.Collection(topUpsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "index", Value: 1}, {Key: "netId", Value: 1}}},
		{
			Keys: bson.D{{Key: "wallet", Value: 1}, {Key: "index", Value: 1}, {Key: "netId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"wallet": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create top-up indexes: %w", err)
	}
	for _, channel := range models.Channels {
		_, err = db.db.Collection(watchersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: serviceKey(channel), Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		})
		if err != nil {
			return fmt.Errorf("failed to create %s watcher index: %w", channel, err)
		}
	}
	return nil
}

func mongoErr(err error, action string) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return models.ErrAlreadyExists
	}
	return fmt.Errorf("failed to %s: %w: %w", action, models.ErrUpstream, err)
}

func (db *MongoDB) Close() error {
	return db.client.Disconnect(context.Background())
}

func (db *MongoDB) WithTx(ctx context.Context, fn func(ctx context.Context, repo models.Repository) error) error {
	if !db.transactions {
		return fn(ctx, db)
	}
	session, err := db.client.StartSession()
	if err != nil {
		return mongoErr(err, "start session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, db)
	})
	return err
}

func (db *MongoDB) wallets() *mongo.Collection {
	return db.db.Collection(walletsCollection)
}

func (db *MongoDB) topUps() *mongo.Collection {
	return db.db.Collection(topUpsCollection)
}

func (db *MongoDB) watchers() *mongo.Collection {
	return db.db.Collection(watchersCollection)
}

func (db *MongoDB) WalletExists(ctx context.Context, address string) (bool, error) {
	n, err := db.wallets().CountDocuments(ctx, bson.M{"address": address}, options.Count().SetLimit(1))
	if err != nil {
		return false, mongoErr(err, "check if wallet exists")
	}
	return n > 0, nil
}

func (db *MongoDB) CreateWallet(ctx context.Context, address string) (*models.Wallet, error) {
	doc := mongoWallet{
		Address:       address,
		TopUps:        []string{},
		Watchers:      []string{},
		Notifications: []string{},
		CreatedAt:     time.Now().Unix(),
	}
	if _, err := db.wallets().InsertOne(ctx, doc); err != nil {
		return nil, mongoErr(err, "create new wallet")
	}
	return &models.Wallet{Address: address, CreatedAt: doc.CreatedAt}, nil
}

func (db *MongoDB) findWalletDoc(ctx context.Context, address string) (*mongoWallet, error) {
	var doc mongoWallet
	if err := db.wallets().FindOne(ctx, bson.M{"address": address}).Decode(&doc); err != nil {
		return nil, mongoErr(err, "get wallet")
	}
	return &doc, nil
}

func (db *MongoDB) FindWallet(ctx context.Context, address string) (*models.Wallet, error) {
	doc, err := db.findWalletDoc(ctx, address)
	if err != nil {
		return nil, err
	}
	wallet := &models.Wallet{Address: doc.Address, CreatedAt: doc.CreatedAt}

	var topUps []mongoTopUp
	if err := db.findByIDs(ctx, db.topUps(), doc.TopUps, &topUps); err != nil {
		return nil, mongoErr(err, "get wallet top-ups")
	}
	byID := make(map[string]mongoTopUp, len(topUps))
	for _, t := range topUps {
		byID[t.ID] = t
	}
	owner := doc.Address
	for _, id := range doc.TopUps {
		if t, ok := byID[id]; ok {
			wallet.TopUps = append(wallet.TopUps, t.model(&owner))
		}
	}

	var watchers []mongoWatcher
	if err := db.findByIDs(ctx, db.watchers(), doc.Watchers, &watchers); err != nil {
		return nil, mongoErr(err, "get wallet watchers")
	}
	watchersByID := make(map[string]mongoWatcher, len(watchers))
	for _, w := range watchers {
		watchersByID[w.ID] = w
	}
	for _, id := range doc.Watchers {
		if w, ok := watchersByID[id]; ok {
			wallet.Watchers = append(wallet.Watchers, w.model())
		}
	}
	return wallet, nil
}

func (db *MongoDB) findByIDs(ctx context.Context, col *mongo.Collection, ids []string, out interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	cursor, err := col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return err
	}
	return cursor.All(ctx, out)
}

func (db *MongoDB) ListWalletAddresses(ctx context.Context) ([]string, error) {
	values, err := db.wallets().Distinct(ctx, "address", bson.M{})
	if err != nil {
		return nil, mongoErr(err, "list wallets")
	}
	addresses := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			addresses = append(addresses, s)
		}
	}
	sort.Strings(addresses)
	return addresses, nil
}

func (db *MongoDB) AddTopUp(ctx context.Context, topUp *models.TopUp) error {
	if topUp.ID == "" {
		topUp.ID = uuid.NewString()
	}
	if topUp.CreatedAt == 0 {
		topUp.CreatedAt = time.Now().UnixNano()
	}
	topUp.WalletAddress = nil
	doc := mongoTopUp{ID: topUp.ID, Index: topUp.Index, NetID: topUp.NetID, CreatedAt: topUp.CreatedAt}
	if _, err := db.topUps().InsertOne(ctx, doc); err != nil {
		return mongoErr(err, "add top-up")
	}
	return nil
}

func (db *MongoDB) FindTopUp(ctx context.Context, index string, netID *int64) (*models.TopUp, error) {
	filter := bson.M{"index": index}
	if netID != nil {
		filter["netId"] = *netID
	}
	var doc mongoTopUp
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if err := db.topUps().FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		return nil, mongoErr(err, "get top-up")
	}
	topUp := doc.model(nil)
	return &topUp, nil
}

func (db *MongoDB) FindWalletTopUp(ctx context.Context, address, index string, netID int64) (*models.TopUp, error) {
	wallet, err := db.findWalletDoc(ctx, address)
	if err != nil {
		return nil, err
	}
	if len(wallet.TopUps) == 0 {
		return nil, models.ErrNotFound
	}
	var doc mongoTopUp
	filter := bson.M{"_id": bson.M{"$in": wallet.TopUps}, "index": index, "netId": netID}
	if err := db.topUps().FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mongoErr(err, "get wallet top-up")
	}
	topUp := doc.model(&address)
	return &topUp, nil
}

func (db *MongoDB) DeleteTopUp(ctx context.Context, topUpID string) error {
	res, err := db.topUps().DeleteOne(ctx, bson.M{"_id": topUpID})
	if err != nil {
		return mongoErr(err, "delete top-up")
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (db *MongoDB) updateWallet(ctx context.Context, address string, update bson.M, action string) error {
	res, err := db.wallets().UpdateOne(ctx, bson.M{"address": address}, update)
	if err != nil {
		return mongoErr(err, action)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (db *MongoDB) AppendTopUpToWallet(ctx context.Context, address, topUpID string) error {
	exists, err := db.WalletExists(ctx, address)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrNotFound
	}
	res, err := db.topUps().UpdateOne(ctx, bson.M{"_id": topUpID}, bson.M{"$set": bson.M{"wallet": address}})
	if err != nil {
		return mongoErr(err, "link top-up")
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return db.updateWallet(ctx, address, bson.M{"$push": bson.M{"topUps": topUpID}}, "push top-up to wallet")
}

func (db *MongoDB) RemoveTopUpFromWallet(ctx context.Context, address, topUpID string) error {
	if err := db.updateWallet(ctx, address, bson.M{"$pull": bson.M{"topUps": topUpID}}, "pull top-up from wallet"); err != nil {
		return err
	}
	_, err := db.topUps().UpdateOne(ctx, bson.M{"_id": topUpID, "wallet": address}, bson.M{"$unset": bson.M{"wallet": ""}})
	if err != nil {
		return mongoErr(err, "unlink top-up")
	}
	return nil
}

func (db *MongoDB) WatcherExists(ctx context.Context, channel models.Channel, subscriberID string) (bool, error) {
	n, err := db.watchers().CountDocuments(ctx, bson.M{serviceKey(channel): subscriberID}, options.Count().SetLimit(1))
	if err != nil {
		return false, mongoErr(err, "check if watcher exists")
	}
	return n > 0, nil
}

func (db *MongoDB) FindWatcher(ctx context.Context, channel models.Channel, subscriberID string) (*models.Watcher, error) {
	var doc mongoWatcher
	if err := db.watchers().FindOne(ctx, bson.M{serviceKey(channel): subscriberID}).Decode(&doc); err != nil {
		return nil, mongoErr(err, "get watcher")
	}
	watcher := doc.model()
	return &watcher, nil
}

func (db *MongoDB) CreateWatcher(ctx context.Context, channel models.Channel, subscriberID string) (*models.Watcher, error) {
	doc := mongoWatcher{
		ID:        uuid.NewString(),
		Services:  map[string]string{string(channel): subscriberID},
		CreatedAt: time.Now().Unix(),
	}
	if _, err := db.watchers().InsertOne(ctx, doc); err != nil {
		return nil, mongoErr(err, "create watcher")
	}
	watcher := doc.model()
	return &watcher, nil
}

func (db *MongoDB) AppendWatcherToWallet(ctx context.Context, address, watcherID string) error {
	return db.updateWallet(ctx, address, bson.M{"$addToSet": bson.M{"watchers": watcherID}}, "push watcher to wallet")
}

func (db *MongoDB) RemoveWatcherFromWallet(ctx context.Context, address, watcherID string) error {
	return db.updateWallet(ctx, address, bson.M{"$pull": bson.M{"watchers": watcherID}}, "pull watcher from wallet")
}

func (db *MongoDB) IsWatcherOfWallet(ctx context.Context, address, watcherID string) (bool, error) {
	n, err := db.wallets().CountDocuments(ctx, bson.M{"address": address, "watchers": watcherID}, options.Count().SetLimit(1))
	if err != nil {
		return false, mongoErr(err, "check wallet watcher")
	}
	return n > 0, nil
}

func (db *MongoDB) AddNotification(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt == 0 {
		notification.CreatedAt = time.Now().Unix()
	}
	doc := mongoNotification{
		ID:        notification.ID,
		Wallet:    notification.WalletAddress,
		Message:   notification.Message,
		Label:     notification.Label,
		CreatedAt: notification.CreatedAt,
	}
	if _, err := db.db.Collection(notificationsCollection).InsertOne(ctx, doc); err != nil {
		return mongoErr(err, "add notification")
	}
	return db.updateWallet(ctx, notification.WalletAddress, bson.M{"$push": bson.M{"notifications": notification.ID}}, "push notification to wallet")
}
