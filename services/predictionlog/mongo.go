package predictionlog

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB names
const (
	DatabaseName         = "coinforecast"
	PredictionCollection = "predictions"
)

// Record is one served prediction
type Record struct {
	Pair           string    `bson:"pair" json:"pair"`
	PredictedClose float64   `bson:"predicted_close" json:"predicted_close"`
	ModelDate      string    `bson:"model_date" json:"model_date"`
	ServedAt       time.Time `bson:"served_at" json:"served_at"`
}

// Client handles the optional MongoDB prediction archive
type Client struct {
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
	isConnected bool
	lastError   string
}

// Global prediction log instance
var GlobalPredictionLog *Client

// Init initializes the prediction log. Without MONGODB_URI the log stays
// disabled and writes become no-ops.
func Init() error {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		log.Println("MONGODB_URI not set, prediction log disabled")
		GlobalPredictionLog = &Client{lastError: "MONGODB_URI environment variable not set"}
		return nil
	}

	GlobalPredictionLog = &Client{}
	return GlobalPredictionLog.connect(mongoURI)
}

// connect establishes the MongoDB connection
func (c *Client) connect(mongoURI string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(mongoURI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		c.lastError = fmt.Sprintf("Failed to connect: %v", err)
		log.Printf("Failed to connect to MongoDB: %v", err)
		return err
	}

	if err := client.Ping(ctx, nil); err != nil {
		c.lastError = fmt.Sprintf("Failed to ping: %v", err)
		log.Printf("Failed to ping MongoDB: %v", err)
		client.Disconnect(ctx)
		return err
	}

	c.mu.Lock()
	c.client = client
	c.database = client.Database(DatabaseName)
	c.isConnected = true
	c.mu.Unlock()

	log.Println("Prediction log connected to MongoDB")
	return nil
}

// IsConnected reports whether the log accepts writes
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// Append stores one prediction. A disabled log drops the record silently.
func (c *Client) Append(record Record) error {
	if !c.IsConnected() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.mu.RLock()
	coll := c.database.Collection(PredictionCollection)
	c.mu.RUnlock()

	if _, err := coll.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to store prediction: %w", err)
	}
	return nil
}

// Recent returns the most recent predictions, newest first, optionally
// filtered by pair.
func (c *Client) Recent(pair string, limit int) ([]Record, error) {
	if !c.IsConnected() {
		return nil, fmt.Errorf("prediction log not connected")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if pair != "" {
		filter["pair"] = pair
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "served_at", Value: -1}}).
		SetLimit(int64(limit))

	c.mu.RLock()
	coll := c.database.Collection(PredictionCollection)
	c.mu.RUnlock()

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer cursor.Close(ctx)

	var records []Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode predictions: %w", err)
	}

	return records, nil
}

// Close disconnects from MongoDB
func (c *Client) Close() error {
	if c == nil || !c.IsConnected() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = false
	return c.client.Disconnect(ctx)
}
