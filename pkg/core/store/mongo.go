package store

import (
	"context"
	"errors"
	"time"

	"edgar_facts/pkg/models"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	DefaultMongoDatabase   = "edgar"
	DefaultMongoCollection = "filing_records"

	// optimistic replace attempts before giving up on a contended identity
	maxMongoAttempts = 3
)

// mongoDocument is the stored shape: the record plus its version fields
// lifted to the top level for the conditional replace.
type mongoDocument struct {
	Identity  models.FilingIdentity `bson:"identity"`
	Version   models.Version        `bson:"version"`
	Record    *models.FilingRecord  `bson:"record"`
	UpdatedAt time.Time             `bson:"updated_at"`
}

// MongoSink stores one document per identity.
type MongoSink struct {
	client  *mongo.Client
	records *mongo.Collection
	logger  *zap.Logger
}

// NewMongoSink connects, pings and creates the unique identity index.
func NewMongoSink(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoSink, error) {
	if uri == "" {
		return nil, eris.Wrap(ErrSinkUnavailable, "MONGO_URI not set")
	}
	if database == "" {
		database = DefaultMongoDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrapf(ErrSinkUnavailable, "connect: %v", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, eris.Wrapf(ErrSinkUnavailable, "ping: %v", err)
	}

	s := &MongoSink{
		client:  client,
		records: client.Database(database).Collection(DefaultMongoCollection),
		logger:  logger.With(zap.String("component", "mongo_sink"), zap.String("database", database)),
	}
	if err := s.createIndexes(connectCtx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoSink) createIndexes(ctx context.Context) error {
	_, err := s.records.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "identity.cik", Value: 1},
				{Key: "identity.form_type", Value: 1},
				{Key: "identity.period_of_report", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("identity_unique"),
		},
		{
			Keys: bson.D{{Key: "version.filing_date", Value: 1}},
		},
	})
	if err != nil {
		return eris.Wrap(err, "store: create mongo indexes")
	}
	return nil
}

func identityFilter(id models.FilingIdentity) bson.D {
	return bson.D{
		{Key: "identity.cik", Value: id.CIK},
		{Key: "identity.form_type", Value: id.FormType},
		{Key: "identity.period_of_report", Value: id.PeriodOfReport},
	}
}

// versionFilter matches the identity only while the stored version is still v.
func versionFilter(id models.FilingIdentity, v models.Version) bson.D {
	return append(identityFilter(id),
		bson.E{Key: "version.filing_date", Value: v.FilingDate},
		bson.E{Key: "version.amendment", Value: v.Amendment},
		bson.E{Key: "version.accession", Value: v.Accession},
	)
}

func (s *MongoSink) Upsert(ctx context.Context, rec *models.FilingRecord) (Outcome, error) {
	doc := mongoDocument{
		Identity:  rec.Identity,
		Version:   rec.Version(),
		Record:    rec,
		UpdatedAt: time.Now().UTC(),
	}

	for attempt := 0; attempt < maxMongoAttempts; attempt++ {
		stored, err := s.storedVersion(ctx, rec.Identity)
		if err != nil {
			return 0, sinkErr(rec.Identity, classifyMongoError(err))
		}

		switch decide(stored, doc.Version) {
		case Unchanged:
			return Unchanged, nil
		case Inserted:
			_, err := s.records.InsertOne(ctx, doc)
			if mongo.IsDuplicateKeyError(err) {
				continue // another writer got there first
			}
			if err != nil {
				return 0, sinkErr(rec.Identity, classifyMongoError(err))
			}
			return Inserted, nil
		default:
			res, err := s.records.ReplaceOne(ctx, versionFilter(rec.Identity, *stored), doc)
			if err != nil {
				return 0, sinkErr(rec.Identity, classifyMongoError(err))
			}
			if res.MatchedCount == 0 {
				continue
			}
			return Replaced, nil
		}
	}
	return 0, sinkErr(rec.Identity, eris.New("store: identity contended, giving up"))
}

func (s *MongoSink) storedVersion(ctx context.Context, id models.FilingIdentity) (*models.Version, error) {
	var found struct {
		Version models.Version `bson:"version"`
	}
	err := s.records.FindOne(ctx, identityFilter(id),
		options.FindOne().SetProjection(bson.M{"version": 1}),
	).Decode(&found)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &found.Version, nil
}

// Get loads the stored record for id.
func (s *MongoSink) Get(ctx context.Context, id models.FilingIdentity) (*models.FilingRecord, error) {
	var doc mongoDocument
	if err := s.records.FindOne(ctx, identityFilter(id)).Decode(&doc); err != nil {
		return nil, eris.Wrapf(classifyMongoError(err), "store: get %s", id)
	}
	return doc.Record, nil
}

func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func classifyMongoError(err error) error {
	switch {
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return eris.Wrapf(ErrSinkUnavailable, "%v", err)
	}
	return err
}
