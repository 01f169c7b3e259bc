// Package mongo implements the store interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sentrywallet/sentry/lib/store"
)

// Database and collection holding the account profiles.
const (
	Database   = "sentry"
	Collection = "profiles"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// MongoProfile implements a store profile document in MongoDB. Fields other than the nominee email may be present in
// the document and are left untouched.
type MongoProfile struct {
	ID           string `json:"_id" bson:"_id"`
	NomineeEmail string `json:"nominee_email,omitempty" bson:"nominee_email,omitempty"`
}

// Record converts a MongoProfile to store.NomineeRecord type.
func (p MongoProfile) Record() store.NomineeRecord {
	return store.NomineeRecord{AccountID: p.ID, NomineeEmail: p.NomineeEmail}
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	err = c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

func (m *Mongo) profiles() *mgo.Collection {
	return m.c.Database(Database).Collection(Collection)
}

// GetNomineeEmail loads the profile of the account. A profile without a nominee email is reported as
// store.ErrDataNotFound.
func (m *Mongo) GetNomineeEmail(ctx context.Context, accountID string) (store.NomineeRecord, error) {
	if accountID == "" {
		return store.NomineeRecord{}, store.ErrNoAccount
	}

	var p MongoProfile

	err := m.profiles().FindOne(ctx, bson.M{"_id": accountID}).Decode(&p)
	if errors.Is(err, mgo.ErrNoDocuments) {
		return store.NomineeRecord{}, store.ErrDataNotFound
	}

	if err != nil {
		return store.NomineeRecord{}, fmt.Errorf("could not get profile from db: %w", err)
	}

	if p.NomineeEmail == "" {
		return store.NomineeRecord{}, store.ErrDataNotFound
	}

	return p.Record(), nil
}

// SetNomineeEmail saves the nominee email in the profile of the account, inserting the profile if it does not exist.
func (m *Mongo) SetNomineeEmail(ctx context.Context, accountID, email string) error {
	if accountID == "" {
		return store.ErrNoAccount
	}

	_, err := m.profiles().UpdateOne(ctx,
		bson.M{"_id": accountID}, // filter
		bson.D{ // update
			{Key: "$set", Value: bson.D{{Key: "nominee_email", Value: email}}},
		},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("could not save nominee email in db: %w", err)
	}

	return nil
}
