// Package mongo stores extracted product records as MongoDB documents.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// Config controls the MongoDB connection.
type Config struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

type productDocument struct {
	Title       string                       `bson:"title"`
	Description string                       `bson:"description"`
	Price       string                       `bson:"price"`
	UnitPrice   string                       `bson:"unit_price"`
	PromoOffer  string                       `bson:"promo_offer"`
	Rating      *float64                     `bson:"rating"`
	ReviewCount *int                         `bson:"review_count"`
	Breadcrumbs []string                     `bson:"breadcrumbs"`
	Tags        []string                     `bson:"tags"`
	Nutrition   map[string]map[string]string `bson:"nutrition"`
	ImageURL    string                       `bson:"image_url"`
	ProductURL  string                       `bson:"product_url"`
	LastUpdated time.Time                    `bson:"last_updated"`
}

func toDocument(r catalog.ProductRecord) productDocument {
	nutrition := map[string]map[string]string(r.Nutrition)
	if nutrition == nil {
		nutrition = map[string]map[string]string{}
	}
	return productDocument{
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		UnitPrice:   r.UnitPrice,
		PromoOffer:  r.PromoOffer,
		Rating:      r.Rating,
		ReviewCount: r.ReviewCount,
		Breadcrumbs: r.Breadcrumbs,
		Tags:        r.Tags,
		Nutrition:   nutrition,
		ImageURL:    r.ImageURL,
		ProductURL:  string(r.Link),
		LastUpdated: r.ExtractedAt,
	}
}

// ProductStore appends one document per record.
type ProductStore struct {
	coll *mongo.Collection
	log  *zap.Logger
}

// NewProductStore wraps a collection.
func NewProductStore(coll *mongo.Collection, log *zap.Logger) (*ProductStore, error) {
	if coll == nil {
		return nil, fmt.Errorf("collection is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductStore{coll: coll, log: log.Named("mongo-products")}, nil
}

// Reset deletes every document in the collection.
func (s *ProductStore) Reset(ctx context.Context) error {
	res, err := s.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("clear products: %w", err)
	}
	s.log.Info("products cleared", zap.Int64("deleted", res.DeletedCount))
	return nil
}

// Append inserts one record.
func (s *ProductStore) Append(ctx context.Context, record catalog.ProductRecord) error {
	if record.Link == "" {
		return fmt.Errorf("product link is required")
	}
	if _, err := s.coll.InsertOne(ctx, toDocument(record)); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *ProductStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}
