package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warungtech/invoice-ocr/configs"
	"github.com/warungtech/invoice-ocr/internal/invoice"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB initializes MongoDB connection
func InitMongoDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(configs.MONGO_URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(configs.MONGO_DB_NAME)

	if err := ensureIndexes(ctx); err != nil {
		log.Printf("⚠️  index setup failed: %v", err)
	}

	log.Println("✅ Connected to MongoDB successfully!")
	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
		log.Println("MongoDB connection closed")
	}
}

// ensureIndexes creates the TTL index that expires cached OCR results.
// Mongo deletes documents once expires_at passes.
func ensureIndexes(ctx context.Context) error {
	cache := mongoDB.Collection("ocr_cache")
	_, err := cache.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

// ResultRecord is the persisted form of one processed invoice.
type ResultRecord struct {
	RequestID string         `bson:"request_id" json:"request_id"`
	ImageHash string         `bson:"image_hash" json:"image_hash"`
	Result    invoice.Result `bson:"result" json:"result"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// SaveResult persists a processed invoice for audit and review. Storage
// failures are reported but must not fail the request.
func SaveResult(ctx context.Context, record ResultRecord) error {
	if mongoDB == nil {
		return fmt.Errorf("mongodb not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection("invoice_results")
	_, err := collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetProducts loads the product catalog from MongoDB. An empty
// collection is fine, the matcher just reports everything unknown.
func GetProducts(ctx context.Context) ([]invoice.Product, error) {
	if mongoDB == nil {
		return nil, fmt.Errorf("mongodb not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection("products")
	cursor, err := collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer cursor.Close(ctx)

	var results []invoice.Product
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}
