// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// Store implements storage.Store using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	gridfs *gridfs.Bucket

	// Collections
	banks       *mongo.Collection
	subscribers *mongo.Collection
	partners    *mongo.Collection
	traces      *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI            string
	Database       string
	GridFSBucket   string
	ChunkSizeBytes int32
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	// Connect to MongoDB
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	// Create GridFS bucket for trace bodies
	bucketName := cfg.GridFSBucket
	if bucketName == "" {
		bucketName = "traces"
	}
	chunkSize := cfg.ChunkSizeBytes
	if chunkSize == 0 {
		chunkSize = 261120 // 255KB
	}
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().
		SetName(bucketName).
		SetChunkSizeBytes(chunkSize))
	if err != nil {
		return nil, fmt.Errorf("creating GridFS bucket: %w", err)
	}

	s := &Store{
		client:      client,
		db:          db,
		gridfs:      bucket,
		banks:       db.Collection("banks"),
		subscribers: db.Collection("subscribers"),
		partners:    db.Collection("partners"),
		traces:      db.Collection("traces"),
	}

	// Create indexes
	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.subscribers.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "host_id", Value: 1}, {Key: "partner_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("creating subscriber indexes: %w", err)
	}

	_, err = s.partners.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "host_id", Value: 1}, {Key: "partner_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("creating partner indexes: %w", err)
	}

	_, err = s.traces.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "host_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "time", Value: -1}}},
		{Keys: bson.D{{Key: "transaction_id", Value: 1}}},
		{Keys: bson.D{{Key: "time", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating trace indexes: %w", err)
	}

	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return storage.ErrNotFound
	}
	return err
}

// BankStore implementation

func (s *Store) SaveBank(ctx context.Context, bank *storage.Bank) error {
	now := time.Now()
	bank.UpdatedAt = now
	if bank.CreatedAt.IsZero() {
		bank.CreatedAt = now
	}
	_, err := s.banks.ReplaceOne(ctx, bson.M{"_id": bank.HostID}, bank, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetBank(ctx context.Context, hostID string) (*storage.Bank, error) {
	var bank storage.Bank
	if err := s.banks.FindOne(ctx, bson.M{"_id": hostID}).Decode(&bank); err != nil {
		return nil, notFound(err)
	}
	return &bank, nil
}

func (s *Store) ListBanks(ctx context.Context) ([]*storage.Bank, error) {
	cursor, err := s.banks.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var banks []*storage.Bank
	if err := cursor.All(ctx, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

// SubscriberStore implementation

func subscriberFilter(hostID, partnerID, userID string) bson.M {
	return bson.M{"host_id": hostID, "partner_id": partnerID, "user_id": userID}
}

func (s *Store) SaveSubscriber(ctx context.Context, sub *storage.Subscriber) error {
	now := time.Now()
	sub.UpdatedAt = now
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	_, err := s.subscribers.ReplaceOne(ctx, subscriberFilter(sub.HostID, sub.PartnerID, sub.UserID), sub, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetSubscriber(ctx context.Context, hostID, partnerID, userID string) (*storage.Subscriber, error) {
	var sub storage.Subscriber
	if err := s.subscribers.FindOne(ctx, subscriberFilter(hostID, partnerID, userID)).Decode(&sub); err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *Store) ListSubscribers(ctx context.Context, hostID string) ([]*storage.Subscriber, error) {
	opts := options.Find().SetSort(bson.D{{Key: "partner_id", Value: 1}, {Key: "user_id", Value: 1}})
	cursor, err := s.subscribers.Find(ctx, bson.M{"host_id": hostID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var subs []*storage.Subscriber
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Store) DeleteSubscriber(ctx context.Context, hostID, partnerID, userID string) error {
	res, err := s.subscribers.DeleteOne(ctx, subscriberFilter(hostID, partnerID, userID))
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PartnerStore implementation

func (s *Store) SavePartner(ctx context.Context, partner *storage.Partner) error {
	partner.UpdatedAt = time.Now()
	filter := bson.M{"host_id": partner.HostID, "partner_id": partner.PartnerID}
	_, err := s.partners.ReplaceOne(ctx, filter, partner, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetPartner(ctx context.Context, hostID, partnerID string) (*storage.Partner, error) {
	var partner storage.Partner
	if err := s.partners.FindOne(ctx, bson.M{"host_id": hostID, "partner_id": partnerID}).Decode(&partner); err != nil {
		return nil, notFound(err)
	}
	return &partner, nil
}

// TraceStore implementation, bodies in GridFS

func (s *Store) AppendTrace(ctx context.Context, t *storage.Trace) error {
	if t.ID == "" {
		t.ID = primitive.NewObjectID().Hex()
	}
	if t.Time.IsZero() {
		t.Time = time.Now()
	}
	t.Size = len(t.Body)

	if len(t.Body) > 0 {
		filename := fmt.Sprintf("%s/%s/%s", t.HostID, t.UserID, t.ID)
		uploadOpts := options.GridFSUpload().SetMetadata(bson.M{
			"trace_id":  t.ID,
			"direction": t.Direction,
		})
		fileID, err := s.gridfs.UploadFromStream(filename, bytes.NewReader(t.Body), uploadOpts)
		if err != nil {
			return fmt.Errorf("storing trace body: %w", err)
		}
		t.BodyID = fileID.Hex()
	}

	_, err := s.traces.InsertOne(ctx, t)
	return err
}

func (s *Store) GetTrace(ctx context.Context, id string) (*storage.Trace, error) {
	var t storage.Trace
	if err := s.traces.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return nil, notFound(err)
	}
	if t.BodyID == "" {
		return &t, nil
	}

	objID, err := primitive.ObjectIDFromHex(t.BodyID)
	if err != nil {
		return nil, fmt.Errorf("invalid trace body ID: %w", err)
	}
	var body bytes.Buffer
	if _, err := s.gridfs.DownloadToStream(objID, &body); err != nil {
		return nil, fmt.Errorf("reading trace body: %w", err)
	}
	t.Body = body.Bytes()
	return &t, nil
}

func (s *Store) ListTraces(ctx context.Context, filter *storage.TraceFilter) ([]*storage.Trace, error) {
	query, opts := traceQuery(filter)
	cursor, err := s.traces.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var traces []*storage.Trace
	if err := cursor.All(ctx, &traces); err != nil {
		return nil, err
	}
	return traces, nil
}

// traceQuery translates a filter into a query sorted newest first.
func traceQuery(filter *storage.TraceFilter) (bson.M, *options.FindOptions) {
	query := bson.M{}
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: -1}})
	if filter == nil {
		return query, opts
	}
	if filter.HostID != "" {
		query["host_id"] = filter.HostID
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.TransactionID != "" {
		query["transaction_id"] = filter.TransactionID
	}
	if filter.OrderType != "" {
		query["order_type"] = filter.OrderType
	}
	if filter.Since != nil {
		query["time"] = bson.M{"$gte": *filter.Since}
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return query, opts
}

var _ storage.Store = (*Store)(nil)
