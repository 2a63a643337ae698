package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	participantserrors "racereg/internal/participants/errors"
	"racereg/internal/participants/validator"
	"racereg/pkg/bib"
	"racereg/pkg/config"
	mongotx "racereg/pkg/db/mongo"
	apperrors "racereg/pkg/errors"
	"racereg/pkg/logger"
	"racereg/pkg/model"
	"racereg/pkg/sealer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// memRepository keeps participants in memory and enforces the (category, bib)
// uniqueness the Mongo partial index provides.
type memRepository struct {
	mu           sync.Mutex
	participants map[string]*model.Participant

	findAllFunc func(ctx context.Context, limit int, offset int64) ([]*model.Participant, error)
	countFunc   func(ctx context.Context) (int64, error)
	// beforeAssign runs before each AssignBib and may return an error to inject.
	beforeAssign func(id, newBib string) error
}

func newMemRepository() *memRepository {
	return &memRepository{participants: map[string]*model.Participant{}}
}

func (m *memRepository) add(p model.Participant) *model.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = primitive.NewObjectID().Hex()
	}
	if p.Status == "" {
		p.Status = model.StatusPending
	}
	stored := p
	m.participants[p.ID] = &stored
	return &stored
}

func (m *memRepository) Create(ctx context.Context, p *model.Participant) error {
	p.ID = primitive.NewObjectID().Hex()
	p.CreatedAt = time.Now().UTC()
	m.add(*p)
	return nil
}

func (m *memRepository) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	if !primitive.IsValidObjectID(id) {
		return nil, participantserrors.ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok {
		return nil, participantserrors.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *memRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Participant, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx, limit, offset)
	}
	return []*model.Participant{}, nil
}

func (m *memRepository) Count(ctx context.Context) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.participants)), nil
}

func (m *memRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.participants[id]; !ok {
		return participantserrors.ErrNotFound
	}
	delete(m.participants, id)
	return nil
}

func (m *memRepository) FindBibsByCategory(ctx context.Context, category bib.Category) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bibs []string
	for _, p := range m.participants {
		if p.Category == category && p.Bib != "" {
			bibs = append(bibs, p.Bib)
		}
	}
	return bibs, nil
}

func (m *memRepository) ListAssignments(ctx context.Context, category bib.Category) ([]model.BibAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BibAssignment
	for _, p := range m.participants {
		if p.Bib == "" || (category != "" && p.Category != category) {
			continue
		}
		out = append(out, model.BibAssignment{ParticipantID: p.ID, Category: p.Category, Bib: p.Bib, CreatedAt: p.CreatedAt})
	}
	return out, nil
}

func (m *memRepository) AssignBib(ctx context.Context, id string, category bib.Category, expectedBib, newBib string, confirmedAt time.Time, paymentReference string) error {
	if m.beforeAssign != nil {
		if err := m.beforeAssign(id, newBib); err != nil {
			return err
		}
	}
	return m.update(id, category, expectedBib, newBib, func(p *model.Participant) {
		p.Status = model.StatusConfirmed
		p.ConfirmedAt = &confirmedAt
		if paymentReference != "" {
			p.PaymentReference = paymentReference
		}
	})
}

func (m *memRepository) ReplaceBib(ctx context.Context, id string, category bib.Category, expectedBib, newBib string) error {
	return m.update(id, category, expectedBib, newBib, func(*model.Participant) {})
}

func (m *memRepository) update(id string, category bib.Category, expectedBib, newBib string, apply func(*model.Participant)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[id]
	if !ok || p.Category != category || p.Bib != expectedBib {
		return participantserrors.ErrStaleAssignment
	}
	for otherID, other := range m.participants {
		if otherID != id && other.Category == category && other.Bib == newBib {
			return fmt.Errorf("%w: duplicate key", participantserrors.ErrBibConflict)
		}
	}
	p.Bib = newBib
	apply(p)
	return nil
}

func (m *memRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.BibAssignedEvent
	err    error
}

func (p *recordingPublisher) BibAssigned(ctx context.Context, event model.BibAssignedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func testConfig() *config.Config {
	return &config.Config{
		Log:             logger.Discard(),
		ReadTimeout:     5 * time.Second,
		BibRanges:       bib.DefaultRanges(),
		BibMaxAttempts:  8,
		BibRetryBackoff: time.Millisecond,
	}
}

func newTestService(t *testing.T, repo *memRepository, cfg *config.Config, pub EventPublisher) *participantService {
	t.Helper()
	s, err := sealer.New("test-pickup-secret-that-is-long-enough")
	require.NoError(t, err)
	v := validator.NewParticipantValidator(cfg.BibRanges, cfg.Log)
	return NewParticipantService(repo, v, pub, s, cfg).(*participantService)
}

func requireAppError(t *testing.T, err error, code string, status int) *apperrors.AppError {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
	assert.Equal(t, status, appErr.StatusCode())
	return appErr
}

func TestRegister_SanitizesAndResetsServerFields(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo, testConfig(), nil)

	p := &model.Participant{
		FirstName: "  dana ",
		LastName:  "levi",
		Phone:     "054-123-4567",
		Email:     " Dana@Example.com ",
		Category:  "short",
		Bib:       "5001",
		Status:    model.StatusConfirmed,
	}
	require.NoError(t, svc.Register(context.Background(), p))

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, bib.Short, p.Category)
	assert.Equal(t, "+972541234567", p.Phone)
	assert.Equal(t, "dana@example.com", p.Email)
	assert.Empty(t, p.Bib)
	assert.Equal(t, model.StatusPending, p.Status)
}

func TestRegister_ValidationFailure(t *testing.T) {
	svc := newTestService(t, newMemRepository(), testConfig(), nil)

	err := svc.Register(context.Background(), &model.Participant{FirstName: "Dana", LastName: "Levi", Phone: "+972541234567", Category: "ULTRA"})
	appErr := requireAppError(t, err, apperrors.CodeValidation, http.StatusUnprocessableEntity)
	assert.Contains(t, appErr.Details, "fields")
}

func TestGetByID_Errors(t *testing.T) {
	svc := newTestService(t, newMemRepository(), testConfig(), nil)

	_, err := svc.GetByID(context.Background(), "")
	requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)

	_, err = svc.GetByID(context.Background(), "not-an-id")
	requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)

	_, err = svc.GetByID(context.Background(), primitive.NewObjectID().Hex())
	requireAppError(t, err, apperrors.CodeNotFound, http.StatusNotFound)
}

func TestGetAll_ConcurrentAccess(t *testing.T) {
	repo := newMemRepository()
	repo.countFunc = func(ctx context.Context) (int64, error) {
		time.Sleep(10 * time.Millisecond)
		return 100, nil
	}
	repo.findAllFunc = func(ctx context.Context, limit int, offset int64) ([]*model.Participant, error) {
		time.Sleep(10 * time.Millisecond)
		return []*model.Participant{{ID: "1"}, {ID: "2"}}, nil
	}
	svc := newTestService(t, repo, testConfig(), nil)

	for i := 0; i < 10; i++ {
		participants, count, err := svc.GetAll(context.Background(), 10, 0)
		require.NoError(t, err, "iteration %d", i)
		assert.Equal(t, int64(100), count)
		assert.Len(t, participants, 2)
	}
}

func TestGetAll_NormalizesPagination(t *testing.T) {
	repo := newMemRepository()
	repo.findAllFunc = func(ctx context.Context, limit int, offset int64) ([]*model.Participant, error) {
		assert.Greater(t, limit, 0)
		assert.LessOrEqual(t, limit, config.DefaultPaginationLimit)
		assert.GreaterOrEqual(t, offset, int64(0))
		return nil, nil
	}
	svc := newTestService(t, repo, testConfig(), nil)

	for _, limit := range []int{-5, 0, 1000} {
		_, _, err := svc.GetAll(context.Background(), limit, -1)
		require.NoError(t, err)
	}
}

func TestGetAll_RepositoryError(t *testing.T) {
	repo := newMemRepository()
	repo.countFunc = func(ctx context.Context) (int64, error) {
		return 0, errors.New("connection reset")
	}
	svc := newTestService(t, repo, testConfig(), nil)

	_, _, err := svc.GetAll(context.Background(), 10, 0)
	requireAppError(t, err, apperrors.CodeInternal, http.StatusInternalServerError)
}

func TestConfirm_AssignsLowerBoundThenSequential(t *testing.T) {
	repo := newMemRepository()
	pub := &recordingPublisher{}
	svc := newTestService(t, repo, testConfig(), pub)

	first := repo.add(model.Participant{Category: bib.Short})
	second := repo.add(model.Participant{Category: bib.Short})
	long := repo.add(model.Participant{Category: bib.Long})

	got, err := svc.Confirm(context.Background(), first.ID, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "5001", got.Bib)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, "pay-1", got.PaymentReference)
	require.NotNil(t, got.ConfirmedAt)

	got, err = svc.Confirm(context.Background(), second.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "5002", got.Bib)

	got, err = svc.Confirm(context.Background(), long.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "10001", got.Bib)

	require.Len(t, pub.events, 3)
	assert.Equal(t, first.ID, pub.events[0].ParticipantID)
	assert.Equal(t, "5001", pub.events[0].Bib)
	assert.Empty(t, pub.events[0].PreviousBib)
}

func TestConfirm_IsIdempotent(t *testing.T) {
	repo := newMemRepository()
	pub := &recordingPublisher{}
	svc := newTestService(t, repo, testConfig(), pub)
	p := repo.add(model.Participant{Category: bib.Short})

	first, err := svc.Confirm(context.Background(), p.ID, "")
	require.NoError(t, err)
	again, err := svc.Confirm(context.Background(), p.ID, "")
	require.NoError(t, err)

	assert.Equal(t, first.Bib, again.Bib)
	assert.Len(t, pub.events, 1)
}

func TestConfirm_ReplacesInvalidBib(t *testing.T) {
	repo := newMemRepository()
	pub := &recordingPublisher{}
	svc := newTestService(t, repo, testConfig(), pub)

	repo.add(model.Participant{Category: bib.Short, Bib: "5001", Status: model.StatusConfirmed})
	broken := repo.add(model.Participant{Category: bib.Short, Bib: "6123", Status: model.StatusConfirmed})

	got, err := svc.Confirm(context.Background(), broken.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "5002", got.Bib)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "6123", pub.events[0].PreviousBib)
}

func TestConfirm_ReplacesLegacyNumericBib(t *testing.T) {
	repo := newMemRepository()
	pub := &recordingPublisher{}
	svc := newTestService(t, repo, testConfig(), pub)

	repo.add(model.Participant{Category: bib.Short, Bib: "5001", Status: model.StatusConfirmed})
	legacy := repo.add(model.Participant{Category: bib.Short, Bib: "int:5002", Status: model.StatusConfirmed})

	got, err := svc.Confirm(context.Background(), legacy.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "5002", got.Bib)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "int:5002", pub.events[0].PreviousBib)
}

func TestConfirm_IgnoresMalformedExistingValues(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo, testConfig(), nil)

	repo.add(model.Participant{Category: bib.Short, Bib: "05002"})
	repo.add(model.Participant{Category: bib.Short, Bib: "abc"})
	repo.add(model.Participant{Category: bib.Short, Bib: "5003"})
	p := repo.add(model.Participant{Category: bib.Short})

	got, err := svc.Confirm(context.Background(), p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "5004", got.Bib)
}

func TestConfirm_FillsGapWhenTopIsTaken(t *testing.T) {
	cfg := testConfig()
	cfg.BibRanges = bib.Ranges{bib.Short: {Lower: 1, Upper: 5}}
	repo := newMemRepository()
	svc := newTestService(t, repo, cfg, nil)

	for _, v := range []string{"1", "2", "4", "5"} {
		repo.add(model.Participant{Category: bib.Short, Bib: v})
	}
	p := repo.add(model.Participant{Category: bib.Short})

	got, err := svc.Confirm(context.Background(), p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "3", got.Bib)
}

func TestConfirm_RangeExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.BibRanges = bib.Ranges{bib.Short: {Lower: 1, Upper: 2}}
	repo := newMemRepository()
	pub := &recordingPublisher{}
	svc := newTestService(t, repo, cfg, pub)

	repo.add(model.Participant{Category: bib.Short, Bib: "1"})
	repo.add(model.Participant{Category: bib.Short, Bib: "2"})
	p := repo.add(model.Participant{Category: bib.Short})

	_, err := svc.Confirm(context.Background(), p.ID, "")
	appErr := requireAppError(t, err, apperrors.CodeRangeExhausted, http.StatusConflict)
	assert.Equal(t, "SHORT", appErr.Details["category"])
	assert.ErrorIs(t, err, bib.ErrRangeExhausted)
	assert.Empty(t, pub.events)

	stored, err := repo.FindByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Bib)
}

func TestConfirm_UnconfiguredCategory(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo, testConfig(), nil)
	p := repo.add(model.Participant{Category: "ULTRA"})

	_, err := svc.Confirm(context.Background(), p.ID, "")
	requireAppError(t, err, apperrors.CodeValidation, http.StatusUnprocessableEntity)
}

func TestConfirm_NotFound(t *testing.T) {
	svc := newTestService(t, newMemRepository(), testConfig(), nil)

	_, err := svc.Confirm(context.Background(), primitive.NewObjectID().Hex(), "")
	requireAppError(t, err, apperrors.CodeNotFound, http.StatusNotFound)
}

func TestConfirm_RetriesAfterConflict(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo, testConfig(), nil)
	p := repo.add(model.Participant{Category: bib.Short})

	attempts := 0
	repo.beforeAssign = func(id, newBib string) error {
		attempts++
		if attempts < 3 {
			return participantserrors.ErrBibConflict
		}
		return nil
	}

	got, err := svc.Confirm(context.Background(), p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "5001", got.Bib)
	assert.Equal(t, 3, attempts)
}

func TestConfirm_GivesUpAfterMaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.BibMaxAttempts = 3
	repo := newMemRepository()
	svc := newTestService(t, repo, cfg, nil)
	p := repo.add(model.Participant{Category: bib.Long})

	attempts := 0
	repo.beforeAssign = func(id, newBib string) error {
		attempts++
		return participantserrors.ErrBibConflict
	}

	_, err := svc.Confirm(context.Background(), p.ID, "")
	appErr := requireAppError(t, err, apperrors.CodeContention, http.StatusConflict)
	assert.Equal(t, "LONG", appErr.Details["category"])
	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, participantserrors.ErrBibConflict)
}

func TestConfirm_PublisherFailureDoesNotFailConfirmation(t *testing.T) {
	repo := newMemRepository()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(t, repo, testConfig(), pub)
	p := repo.add(model.Participant{Category: bib.Short})

	got, err := svc.Confirm(context.Background(), p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "5001", got.Bib)
}

func TestConfirm_ConcurrentRequestsGetDistinctBibs(t *testing.T) {
	const n = 30
	cfg := testConfig()
	cfg.BibMaxAttempts = n + 5
	repo := newMemRepository()
	svc := newTestService(t, repo, cfg, nil)

	ids := make([]string, n)
	for i := range ids {
		ids[i] = repo.add(model.Participant{Category: bib.Short}).ID
	}

	var wg sync.WaitGroup
	bibs := make([]string, n)
	errs := make([]error, n)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			p, err := svc.Confirm(context.Background(), id, "")
			errs[i] = err
			if err == nil {
				bibs[i] = p.Bib
			}
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "participant %d", i)
	}

	seen := map[string]bool{}
	values := make([]int, 0, n)
	for _, b := range bibs {
		assert.False(t, seen[b], "duplicate bib %s", b)
		seen[b] = true
		assert.True(t, cfg.BibRanges.IsValid(b, bib.Short), "bib %s out of range", b)
		v, _ := strconv.Atoi(b)
		values = append(values, v)
	}
	sort.Ints(values)
	assert.Equal(t, 5001, values[0])
	assert.Equal(t, 5001+n-1, values[n-1])
}

func TestDelete_FreesBibForNextConfirmation(t *testing.T) {
	cfg := testConfig()
	cfg.BibRanges = bib.Ranges{bib.Short: {Lower: 1, Upper: 2}}
	repo := newMemRepository()
	svc := newTestService(t, repo, cfg, nil)

	holder := repo.add(model.Participant{Category: bib.Short, Bib: "2"})
	repo.add(model.Participant{Category: bib.Short, Bib: "1"})
	p := repo.add(model.Participant{Category: bib.Short})

	require.NoError(t, svc.Delete(context.Background(), holder.ID))

	got, err := svc.Confirm(context.Background(), p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Bib)

	err = svc.Delete(context.Background(), holder.ID)
	requireAppError(t, err, apperrors.CodeNotFound, http.StatusNotFound)
}

func TestPickupToken_RoundTrip(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo, testConfig(), nil)
	p := repo.add(model.Participant{FirstName: "Dana", LastName: "Levi", Category: bib.Short})

	_, err := svc.PickupToken(context.Background(), p.ID)
	requireAppError(t, err, apperrors.CodeConflict, http.StatusConflict)

	_, err = svc.Confirm(context.Background(), p.ID, "")
	require.NoError(t, err)

	token, err := svc.PickupToken(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "5001", token.Bib)

	result, err := svc.VerifyPickup(context.Background(), token.Token)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "5001", result.Bib)
	assert.Equal(t, "Dana", result.FirstName)
}

func TestVerifyPickup_RejectsReassignedBib(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo, testConfig(), nil)
	p := repo.add(model.Participant{Category: bib.Short})

	_, err := svc.Confirm(context.Background(), p.ID, "")
	require.NoError(t, err)
	token, err := svc.PickupToken(context.Background(), p.ID)
	require.NoError(t, err)

	require.NoError(t, repo.ReplaceBib(context.Background(), p.ID, bib.Short, "5001", "5500"))

	result, err := svc.VerifyPickup(context.Background(), token.Token)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Reason, "reassigned")
}

func TestVerifyPickup_Garbage(t *testing.T) {
	svc := newTestService(t, newMemRepository(), testConfig(), nil)

	result, err := svc.VerifyPickup(context.Background(), "definitely-not-a-token")
	require.NoError(t, err)
	assert.False(t, result.Valid)

	_, err = svc.VerifyPickup(context.Background(), "")
	requireAppError(t, err, apperrors.CodeValidation, http.StatusUnprocessableEntity)
}

func TestPickup_UnavailableWithoutSealer(t *testing.T) {
	cfg := testConfig()
	repo := newMemRepository()
	v := validator.NewParticipantValidator(cfg.BibRanges, cfg.Log)
	svc := NewParticipantService(repo, v, nil, nil, cfg)

	_, err := svc.PickupToken(context.Background(), primitive.NewObjectID().Hex())
	requireAppError(t, err, apperrors.CodeUnavailable, http.StatusServiceUnavailable)

	_, err = svc.VerifyPickup(context.Background(), "x")
	requireAppError(t, err, apperrors.CodeUnavailable, http.StatusServiceUnavailable)
}

func TestValidateBib(t *testing.T) {
	svc := newTestService(t, newMemRepository(), testConfig(), nil)

	got, err := svc.ValidateBib("long", "10999")
	require.NoError(t, err)
	assert.True(t, got.Valid)
	assert.Equal(t, bib.Long, got.Category)
	assert.Equal(t, "10001-10999", got.Range)

	got, err = svc.ValidateBib("SHORT", "6000")
	require.NoError(t, err)
	assert.False(t, got.Valid)

	_, err = svc.ValidateBib("ULTRA", "1")
	requireAppError(t, err, apperrors.CodeInvalidInput, http.StatusBadRequest)
}
