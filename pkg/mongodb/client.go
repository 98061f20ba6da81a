package mongodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/marimovDEV/tipografiya/pkg/metrics"
)

// Config holds MongoDB connection configuration
type Config struct {
	URI            string        `yaml:"uri" validate:"required"`
	Database       string        `yaml:"database" validate:"required"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	MaxPoolSize    uint64        `yaml:"maxPoolSize"`
	MinPoolSize    uint64        `yaml:"minPoolSize"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	AuthDB         string        `yaml:"authDb"`
	ReplicaSet     string        `yaml:"replicaSet"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		URI:            "mongodb://localhost:27017",
		Database:       "planning",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    100,
		MinPoolSize:    5,
	}
}

// Client wraps the MongoDB client
type Client struct {
	client   *mongo.Client
	database *mongo.Database
	config   *Config
}

// NewClient connects, pings the primary and returns a Client. When m is not
// nil every command is recorded in the MongoDB operation metrics.
func NewClient(ctx context.Context, config *Config, m *metrics.Metrics) (*Client, error) {
	clientOpts := options.Client().
		ApplyURI(config.URI).
		SetConnectTimeout(config.ConnectTimeout).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize)

	if config.Username != "" && config.Password != "" {
		clientOpts.SetAuth(options.Credential{
			Username:   config.Username,
			Password:   config.Password,
			AuthSource: config.AuthDB,
		})
	}
	if config.ReplicaSet != "" {
		clientOpts.SetReplicaSet(config.ReplicaSet)
	}
	if m != nil {
		clientOpts.SetMonitor(newCommandMonitor(m))
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client:   client,
		database: client.Database(config.Database),
		config:   config,
	}, nil
}

// Wrap adapts an already connected driver client
func Wrap(client *mongo.Client, database string) *Client {
	return &Client{
		client:   client,
		database: client.Database(database),
		config:   &Config{Database: database},
	}
}

// Database returns the database handle
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Collection returns a collection handle
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Client returns the underlying MongoDB client
func (c *Client) Client() *mongo.Client {
	return c.client
}

// Close disconnects the client
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// HealthCheck pings the primary
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// WithTransaction runs fn inside a multi-document transaction. The context
// handed to fn carries the session and must be used for every operation
// that belongs to the transaction.
func (c *Client) WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	session, err := c.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

type commandMonitor struct {
	metrics  *metrics.Metrics
	mu       sync.Mutex
	inflight map[int64]string
}

func newCommandMonitor(m *metrics.Metrics) *event.CommandMonitor {
	cm := &commandMonitor{metrics: m, inflight: make(map[int64]string)}
	return &event.CommandMonitor{
		Started: cm.started,
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			cm.finished(e.RequestID, e.CommandName, true, e.Duration)
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			cm.finished(e.RequestID, e.CommandName, false, e.Duration)
		},
	}
}

func (cm *commandMonitor) started(_ context.Context, e *event.CommandStartedEvent) {
	collection := ""
	if v, err := e.Command.LookupErr(e.CommandName); err == nil {
		collection, _ = v.StringValueOK()
	}
	cm.mu.Lock()
	cm.inflight[e.RequestID] = collection
	cm.mu.Unlock()
}

func (cm *commandMonitor) finished(requestID int64, command string, success bool, duration time.Duration) {
	cm.mu.Lock()
	collection := cm.inflight[requestID]
	delete(cm.inflight, requestID)
	cm.mu.Unlock()

	cm.metrics.RecordMongoDBOperation(collection, command, success, duration)
}
