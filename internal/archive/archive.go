// Package archive keeps an append-only copy of committed sales outside the
// transactional store.
package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"racikpos/backend/internal/domain"
)

type SaleArchive interface {
	Archive(ctx context.Context, sale domain.Sale) error
}

type NoopSaleArchive struct{}

func (NoopSaleArchive) Archive(_ context.Context, _ domain.Sale) error {
	return nil
}

// saleDocument is the stored shape of a sale. Top-level fields are the ones
// reporting queries filter on.
type saleDocument struct {
	ID            string      `bson:"_id"`
	SoldAt        time.Time   `bson:"sold_at"`
	PaymentMethod string      `bson:"payment_method"`
	TotalValue    float64     `bson:"total_value"`
	UnitsSold     int         `bson:"units_sold"`
	CreatedBy     string      `bson:"created_by,omitempty"`
	Sale          domain.Sale `bson:"sale"`
	ArchivedAt    time.Time   `bson:"archived_at"`
}

type MongoSaleArchive struct {
	client   *mongo.Client
	dbName   string
	collName string
}

func NewMongoSaleArchive(ctx context.Context, uri string, dbName string) (*MongoSaleArchive, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &MongoSaleArchive{
		client:   client,
		dbName:   dbName,
		collName: "sales",
	}, nil
}

func (a *MongoSaleArchive) Archive(ctx context.Context, sale domain.Sale) error {
	collection := a.client.Database(a.dbName).Collection(a.collName)
	_, err := collection.InsertOne(ctx, newSaleDocument(sale, time.Now().UTC()))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert sale %s: %w", sale.ID, err)
	}
	return nil
}

// CountSince reports how many archived sales were sold at or after from.
func (a *MongoSaleArchive) CountSince(ctx context.Context, from time.Time) (int64, error) {
	collection := a.client.Database(a.dbName).Collection(a.collName)
	return collection.CountDocuments(ctx, bson.M{"sold_at": bson.M{"$gte": from}})
}

func (a *MongoSaleArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

func newSaleDocument(sale domain.Sale, at time.Time) saleDocument {
	return saleDocument{
		ID:            sale.ID,
		SoldAt:        sale.Date,
		PaymentMethod: string(sale.SellingResume.PaymentMethod),
		TotalValue:    sale.SellingResume.TotalValue,
		UnitsSold:     sale.UnitsSold(),
		CreatedBy:     sale.CreatedBy,
		Sale:          sale,
		ArchivedAt:    at,
	}
}
