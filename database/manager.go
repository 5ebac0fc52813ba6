package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"pdfdesk/config"
)

// Manager owns the MongoDB client and caches collection handles.
type Manager struct {
	client      *mongo.Client
	database    *mongo.Database
	collections map[string]*mongo.Collection
	mu          sync.RWMutex
	config      config.MongoConfig
	logger      *logrus.Logger
}

func NewManager(cfg config.MongoConfig, logger *logrus.Logger) *Manager {
	return &Manager{
		collections: make(map[string]*mongo.Collection),
		config:      cfg,
		logger:      logger,
	}
}

// Connect sets up the database connection with pooling options
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return fmt.Errorf("database already initialized")
	}

	clientOptions := options.Client().
		ApplyURI(m.config.URI).
		SetMaxPoolSize(m.config.MaxPoolSize).
		SetMinPoolSize(m.config.MinPoolSize).
		SetMaxConnIdleTime(m.config.MaxConnIdleTime).
		SetServerSelectionTimeout(m.config.ServerTimeout).
		SetSocketTimeout(m.config.SocketTimeout).
		SetConnectTimeout(m.config.ConnectTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	ctx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.client = client
	m.database = client.Database(m.config.Database)

	m.logger.WithField("database", m.config.Database).Info("connected to MongoDB")
	return nil
}

// Use attaches an already connected database, mainly for tests.
func (m *Manager) Use(db *mongo.Database) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = db.Client()
	m.database = db
	m.collections = make(map[string]*mongo.Collection)
}

// Collection returns a cached collection handle
func (m *Manager) Collection(name string) *mongo.Collection {
	m.mu.RLock()
	if collection, exists := m.collections[name]; exists {
		m.mu.RUnlock()
		return collection
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if collection, exists := m.collections[name]; exists {
		return collection
	}

	collection := m.database.Collection(name)
	m.collections[name] = collection
	return collection
}

func (m *Manager) Database() *mongo.Database {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.database
}

// Close gracefully closes the database connection
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}

	m.client = nil
	m.database = nil
	m.collections = make(map[string]*mongo.Collection)

	m.logger.Info("database connection closed")
	return nil
}

// HealthCheck verifies database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("database not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.Ping(ctx, readpref.Primary())
}
