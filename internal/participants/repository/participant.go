package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	participantserrors "racereg/internal/participants/errors"
	"racereg/pkg/bib"
	"racereg/pkg/config"
	mongotx "racereg/pkg/db/mongo"
	"racereg/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Participants"
)

type mongoParticipantRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type ParticipantRepository interface {
	Create(ctx context.Context, participant *model.Participant) error
	FindByID(ctx context.Context, id string) (*model.Participant, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Participant, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
	// FindBibsByCategory returns every stored bib for category, including malformed and legacy numeric ones.
	FindBibsByCategory(ctx context.Context, category bib.Category) ([]string, error)
	// ListAssignments returns all participants holding a bib; an empty category means every category.
	ListAssignments(ctx context.Context, category bib.Category) ([]model.BibAssignment, error)
	// AssignBib confirms the participant with newBib, provided its stored bib still equals expectedBib.
	AssignBib(ctx context.Context, id string, category bib.Category, expectedBib, newBib string, confirmedAt time.Time, paymentReference string) error
	// ReplaceBib swaps expectedBib for newBib without touching the confirmation fields.
	ReplaceBib(ctx context.Context, id string, category bib.Category, expectedBib, newBib string) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoParticipantRepository(cfg *config.Config) ParticipantRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoParticipantRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout leaves a SessionContext untouched: wrapping it would detach the
// operation from its transaction.
func (r *mongoParticipantRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoParticipantRepository) Create(ctx context.Context, participant *model.Participant) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	participant.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, participant)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		participant.ID = oid.Hex()
	}
	return nil
}

func (r *mongoParticipantRepository) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", participantserrors.ErrInvalidID, id)
	}

	raw, err := r.collection.FindOne(ctx, bson.M{"_id": objectID}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, participantserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find participant: %w", err)
	}

	participant, err := decodeParticipant(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode participant: %w", err)
	}
	return participant, nil
}

func (r *mongoParticipantRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Participant, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find participants: %w", err)
	}
	defer cursor.Close(ctx)

	participants := []*model.Participant{}
	for cursor.Next(ctx) {
		participant, err := decodeParticipant(cursor.Current)
		if err != nil {
			return nil, fmt.Errorf("failed to decode participants: %w", err)
		}
		participants = append(participants, participant)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	return participants, nil
}

func (r *mongoParticipantRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

func (r *mongoParticipantRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", participantserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete participant: %w", err)
	}

	if result.DeletedCount == 0 {
		return participantserrors.ErrNotFound
	}

	return nil
}

func (r *mongoParticipantRepository) FindBibsByCategory(ctx context.Context, category bib.Category) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"category": category,
		"bib":      assignedBibFilter(),
	}
	opts := options.Find().SetProjection(bson.M{"_id": 0, "bib": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bibs for category %s: %w", category, err)
	}
	defer cursor.Close(ctx)

	var bibs []string
	for cursor.Next(ctx) {
		var doc struct {
			Bib bson.RawValue `bson:"bib"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode bib: %w", err)
		}
		bibs = append(bibs, storedBib(doc.Bib))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bibs: %w", err)
	}

	return bibs, nil
}

func (r *mongoParticipantRepository) ListAssignments(ctx context.Context, category bib.Category) ([]model.BibAssignment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"bib": assignedBibFilter()}
	if category != "" {
		filter["category"] = category
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1, "category": 1, "bib": 1, "created_at": 1}).
		SetSort(bson.D{{Key: "category", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bib assignments: %w", err)
	}
	defer cursor.Close(ctx)

	var assignments []model.BibAssignment
	for cursor.Next(ctx) {
		var doc struct {
			ID        string        `bson:"_id"`
			Category  bib.Category  `bson:"category"`
			Bib       bson.RawValue `bson:"bib"`
			CreatedAt time.Time     `bson:"created_at"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode bib assignments: %w", err)
		}
		assignments = append(assignments, model.BibAssignment{
			ParticipantID: doc.ID,
			Category:      doc.Category,
			Bib:           storedBib(doc.Bib),
			CreatedAt:     doc.CreatedAt,
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bib assignments: %w", err)
	}
	return assignments, nil
}

// assignedBibFilter selects documents holding any bib value, numeric legacy ones included.
func assignedBibFilter() bson.M {
	return bson.M{"$exists": true, "$nin": bson.A{nil, ""}}
}

func (r *mongoParticipantRepository) AssignBib(
	ctx context.Context,
	id string,
	category bib.Category,
	expectedBib, newBib string,
	confirmedAt time.Time,
	paymentReference string,
) error {
	set := bson.M{
		"bib":          newBib,
		"status":       model.StatusConfirmed,
		"confirmed_at": confirmedAt.UTC().Truncate(time.Millisecond),
	}
	if paymentReference != "" {
		set["payment_reference"] = paymentReference
	}
	return r.conditionalBibUpdate(ctx, id, category, expectedBib, bson.M{"$set": set})
}

func (r *mongoParticipantRepository) ReplaceBib(ctx context.Context, id string, category bib.Category, expectedBib, newBib string) error {
	return r.conditionalBibUpdate(ctx, id, category, expectedBib, bson.M{"$set": bson.M{"bib": newBib}})
}

// conditionalBibUpdate applies update only if the participant still holds expectedBib
// ("" meaning no bib). The unique (category, bib) index turns a lost race into ErrBibConflict.
func (r *mongoParticipantRepository) conditionalBibUpdate(ctx context.Context, id string, category bib.Category, expectedBib string, update bson.M) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", participantserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":      objectID,
		"category": category,
	}
	if expectedBib == "" {
		filter["bib"] = bson.M{"$in": bson.A{nil, ""}}
	} else {
		filter["bib"] = bibMatch(expectedBib)
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", participantserrors.ErrBibConflict, err)
		}
		return fmt.Errorf("failed to update participant bib: %w", err)
	}

	if result.MatchedCount == 0 {
		return participantserrors.ErrStaleAssignment
	}
	return nil
}

func (r *mongoParticipantRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
