package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/voicesurvey/pkg/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements ports.ParticipantStore with one MongoDB document per call.
type Store struct {
	coll    *mongo.Collection
	timeout time.Duration
}

type Option func(*Store)

// WithTimeout bounds each store operation. Zero relies on the caller's context only.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// NewStore creates a Mongo-backed participant store.
// dbName defaults to "voicesurvey" if empty, collName defaults to "survey_participants".
func NewStore(client *mongo.Client, dbName, collName string, opts ...Option) *Store {
	if dbName == "" {
		dbName = "voicesurvey"
	}
	if collName == "" {
		collName = "survey_participants"
	}

	s := &Store{
		coll:    client.Database(dbName).Collection(collName),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type participantDoc struct {
	CallID    string      `bson:"_id"`
	Number    string      `bson:"number"`
	Responses []answerDoc `bson:"responses"`
	CreatedAt time.Time   `bson:"createdAt"`
}

type answerDoc struct {
	LegID       string `bson:"legId"`
	RecordingID string `bson:"recordingId"`
}

func (d participantDoc) toDomain() *domain.Participant {
	p := &domain.Participant{
		CallID:      d.CallID,
		Destination: d.Number,
		Answers:     make([]domain.Answer, len(d.Responses)),
		CreatedAt:   d.CreatedAt,
	}
	for i, r := range d.Responses {
		p.Answers[i] = domain.Answer{LegID: r.LegID, RecordingRef: r.RecordingID}
	}
	return p
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Find loads the participant document for a call.
func (s *Store) Find(ctx context.Context, callID string) (*domain.Participant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc participantDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": callID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("%w: failed to find participant: %w", domain.ErrStoreUnavailable, err)
	}
	return doc.toDomain(), nil
}

// Create upserts with $setOnInsert so an existing participant is never modified.
func (s *Store) Create(ctx context.Context, callID, destination string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	update := bson.M{
		"$setOnInsert": bson.M{
			"number":    destination,
			"responses": bson.A{},
			"createdAt": time.Now().UTC(),
		},
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": callID}, update, options.Update().SetUpsert(true))
	if err != nil {
		// Two concurrent upserts may both try to insert; the loser sees a duplicate key.
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("%w: failed to create participant: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// AppendAnswer pushes the answer with a filter that only matches while the recording
// is absent and fewer than limit answers are stored. MongoDB applies the match and the
// $push atomically on the single document.
func (s *Store) AppendAnswer(ctx context.Context, callID string, answer domain.Answer, limit int) (int, error) {
	if limit > 0 {
		n, ok, err := s.push(ctx, callID, answer, limit)
		if err != nil {
			return 0, err
		}
		if ok {
			return n, nil
		}
	}

	// Nothing pushed: the call is unknown, full, or this is a redelivery.
	p, err := s.Find(ctx, callID)
	if err != nil {
		return 0, err
	}
	return p.Answered(), nil
}

func (s *Store) push(ctx context.Context, callID string, answer domain.Answer, limit int) (int, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{
		"_id":                   callID,
		"responses.recordingId": bson.M{"$ne": answer.RecordingRef},
	}
	// The array is full when index limit-1 exists.
	filter[fmt.Sprintf("responses.%d", limit-1)] = bson.M{"$exists": false}
	update := bson.M{
		"$push": bson.M{
			"responses": answerDoc{LegID: answer.LegID, RecordingID: answer.RecordingRef},
		},
	}

	var doc participantDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%w: failed to append answer: %w", domain.ErrStoreUnavailable, err)
	}
	return len(doc.Responses), true, nil
}

// List returns all participants ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*domain.Participant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list participants: %w", domain.ErrStoreUnavailable, err)
	}
	defer cur.Close(ctx)

	var participants []*domain.Participant
	for cur.Next(ctx) {
		var doc participantDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode participant: %w", err)
		}
		participants = append(participants, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate participants: %w", domain.ErrStoreUnavailable, err)
	}
	return participants, nil
}
