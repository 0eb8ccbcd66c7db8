package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/logger"
)

type PostgresDB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.AutoMigrate(&models.Wallet{}, &models.TopUp{}, &models.Watcher{}, &models.WalletWatcher{}, &models.Notification{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger}, nil
}

// translate maps GORM errors onto the repository error contract.
func translate(err error, action string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return models.ErrAlreadyExists
	}
	return fmt.Errorf("failed to %s: %w: %w", action, models.ErrUpstream, err)
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

func (db *PostgresDB) WithTx(ctx context.Context, fn func(ctx context.Context, repo models.Repository) error) error {
	return db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &PostgresDB{Conn: tx, logger: db.logger})
	})
}

func (db *PostgresDB) WalletExists(ctx context.Context, address string) (bool, error) {
	var count int64
	if err := db.Conn.WithContext(ctx).Model(&models.Wallet{}).Where("address = ?", address).Count(&count).Error; err != nil {
		return false, translate(err, "check if wallet exists")
	}
	return count > 0, nil
}

func (db *PostgresDB) CreateWallet(ctx context.Context, address string) (*models.Wallet, error) {
	wallet := &models.Wallet{Address: address, CreatedAt: time.Now().Unix()}
	if err := db.Conn.WithContext(ctx).Omit(clause.Associations).Create(wallet).Error; err != nil {
		return nil, translate(err, "create new wallet")
	}
	return wallet, nil
}

func (db *PostgresDB) FindWallet(ctx context.Context, address string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := db.Conn.WithContext(ctx).
		Preload("TopUps", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Where("address = ?", address).
		First(&wallet).Error
	if err != nil {
		return nil, translate(err, "get wallet")
	}

	err = db.Conn.WithContext(ctx).
		Joins("JOIN wallet_watchers ON wallet_watchers.watcher_id = watchers.id").
		Where("wallet_watchers.wallet_address = ?", address).
		Order("wallet_watchers.created_at ASC").
		Find(&wallet.Watchers).Error
	if err != nil {
		return nil, translate(err, "get wallet watchers")
	}
	return &wallet, nil
}

func (db *PostgresDB) ListWalletAddresses(ctx context.Context) ([]string, error) {
	var addresses []string
	if err := db.Conn.WithContext(ctx).Model(&models.Wallet{}).Order("address").Pluck("address", &addresses).Error; err != nil {
		return nil, translate(err, "list wallets")
	}
	return addresses, nil
}

func (db *PostgresDB) AddTopUp(ctx context.Context, topUp *models.TopUp) error {
	if topUp.ID == "" {
		topUp.ID = uuid.NewString()
	}
	if topUp.CreatedAt == 0 {
		topUp.CreatedAt = time.Now().UnixNano()
	}
	topUp.WalletAddress = nil
	if err := db.Conn.WithContext(ctx).Create(topUp).Error; err != nil {
		return translate(err, "add top-up")
	}
	return nil
}

func (db *PostgresDB) FindTopUp(ctx context.Context, index string, netID *int64) (*models.TopUp, error) {
	query := db.Conn.WithContext(ctx).Where("top_up_index = ?", index)
	if netID != nil {
		query = query.Where("net_id = ?", *netID)
	}
	var topUp models.TopUp
	if err := query.Order("created_at ASC").First(&topUp).Error; err != nil {
		return nil, translate(err, "get top-up")
	}
	return &topUp, nil
}

func (db *PostgresDB) FindWalletTopUp(ctx context.Context, address, index string, netID int64) (*models.TopUp, error) {
	var topUp models.TopUp
	err := db.Conn.WithContext(ctx).
		Where("wallet_address = ? AND top_up_index = ? AND net_id = ?", address, index, netID).
		First(&topUp).Error
	if err != nil {
		return nil, translate(err, "get wallet top-up")
	}
	return &topUp, nil
}

func (db *PostgresDB) DeleteTopUp(ctx context.Context, topUpID string) error {
	res := db.Conn.WithContext(ctx).Where("id = ?", topUpID).Delete(&models.TopUp{})
	if res.Error != nil {
		return translate(res.Error, "delete top-up")
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (db *PostgresDB) AppendTopUpToWallet(ctx context.Context, address, topUpID string) error {
	exists, err := db.WalletExists(ctx, address)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrNotFound
	}
	res := db.Conn.WithContext(ctx).Model(&models.TopUp{}).Where("id = ?", topUpID).Update("wallet_address", address)
	if res.Error != nil {
		return translate(res.Error, "push top-up to wallet")
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (db *PostgresDB) RemoveTopUpFromWallet(ctx context.Context, address, topUpID string) error {
	err := db.Conn.WithContext(ctx).Model(&models.TopUp{}).
		Where("id = ? AND wallet_address = ?", topUpID, address).
		Update("wallet_address", nil).Error
	if err != nil {
		return translate(err, "pull top-up from wallet")
	}
	return nil
}

func (db *PostgresDB) WatcherExists(ctx context.Context, channel models.Channel, subscriberID string) (bool, error) {
	var count int64
	err := db.Conn.WithContext(ctx).Model(&models.Watcher{}).
		Where("channel = ? AND subscriber_id = ?", channel, subscriberID).
		Count(&count).Error
	if err != nil {
		return false, translate(err, "check if watcher exists")
	}
	return count > 0, nil
}

func (db *PostgresDB) FindWatcher(ctx context.Context, channel models.Channel, subscriberID string) (*models.Watcher, error) {
	var watcher models.Watcher
	err := db.Conn.WithContext(ctx).
		Where("channel = ? AND subscriber_id = ?", channel, subscriberID).
		First(&watcher).Error
	if err != nil {
		return nil, translate(err, "get watcher")
	}
	return &watcher, nil
}

func (db *PostgresDB) CreateWatcher(ctx context.Context, channel models.Channel, subscriberID string) (*models.Watcher, error) {
	watcher := &models.Watcher{
		ID:           uuid.NewString(),
		Channel:      channel,
		SubscriberID: subscriberID,
		CreatedAt:    time.Now().Unix(),
	}
	if err := db.Conn.WithContext(ctx).Create(watcher).Error; err != nil {
		return nil, translate(err, "create watcher")
	}
	return watcher, nil
}

func (db *PostgresDB) AppendWatcherToWallet(ctx context.Context, address, watcherID string) error {
	exists, err := db.WalletExists(ctx, address)
	if err != nil {
		return err
	}
	if !exists {
		return models.ErrNotFound
	}
	link := &models.WalletWatcher{WalletAddress: address, WatcherID: watcherID, CreatedAt: time.Now().UnixNano()}
	if err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(link).Error; err != nil {
		return translate(err, "push watcher to wallet")
	}
	return nil
}

func (db *PostgresDB) RemoveWatcherFromWallet(ctx context.Context, address, watcherID string) error {
	err := db.Conn.WithContext(ctx).
		Where("wallet_address = ? AND watcher_id = ?", address, watcherID).
		Delete(&models.WalletWatcher{}).Error
	if err != nil {
		return translate(err, "pull watcher from wallet")
	}
	return nil
}

func (db *PostgresDB) IsWatcherOfWallet(ctx context.Context, address, watcherID string) (bool, error) {
	var count int64
	err := db.Conn.WithContext(ctx).Model(&models.WalletWatcher{}).
		Where("wallet_address = ? AND watcher_id = ?", address, watcherID).
		Count(&count).Error
	if err != nil {
		return false, translate(err, "check wallet watcher")
	}
	return count > 0, nil
}

func (db *PostgresDB) AddNotification(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt == 0 {
		notification.CreatedAt = time.Now().Unix()
	}
	if err := db.Conn.WithContext(ctx).Create(notification).Error; err != nil {
		return translate(err, "add notification")
	}
	return nil
}
