package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell/internal/api/domain"
	"github.com/inkwellhq/inkwell/internal/api/store"
	"github.com/inkwellhq/inkwell/internal/api/store/drivers/sqlite"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.DocumentEvent
}

func (p *recordingPublisher) Publish(ev domain.DocumentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) last(t *testing.T) domain.DocumentEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.events)
	return p.events[len(p.events)-1]
}

func newDocumentService(t *testing.T) (*DocumentService, *recordingPublisher) {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "inkwell.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	pub := &recordingPublisher{}
	return &DocumentService{Store: st, Events: pub}, pub
}

func mirrorUser(t *testing.T, s store.Store, subject string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, s.Users().UpsertUser(context.Background(), domain.User{
		Subject:   subject,
		Username:  subject,
		Email:     subject + "@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func TestDocumentService_CreatePublishes(t *testing.T) {
	t.Parallel()

	svc, pub := newDocumentService(t)
	mirrorUser(t, svc.Store, "sub-alice")

	doc, err := svc.Create(context.Background(), "sub-alice", "notes", "hello")
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)

	ev := pub.last(t)
	require.Equal(t, domain.DocumentCreated, ev.Type)
	require.Equal(t, doc.ID, ev.Document.ID)

	got, err := svc.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, "notes", got.Title)
}

func TestDocumentService_CreateRequiresTitle(t *testing.T) {
	t.Parallel()

	svc, _ := newDocumentService(t)
	mirrorUser(t, svc.Store, "sub-alice")

	_, err := svc.Create(context.Background(), "sub-alice", "   ", "body")
	require.ErrorIs(t, err, ErrTitleRequired)
}

func TestDocumentService_UpdatePublishes(t *testing.T) {
	t.Parallel()

	svc, pub := newDocumentService(t)
	mirrorUser(t, svc.Store, "sub-alice")
	doc, err := svc.Create(context.Background(), "sub-alice", "notes", "v1")
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), doc.ID, "notes", "v2")
	require.NoError(t, err)
	require.Equal(t, "v2", updated.Body)

	ev := pub.last(t)
	require.Equal(t, domain.DocumentUpdated, ev.Type)
	require.Equal(t, "v2", ev.Document.Body)
}

func TestDocumentService_UpdateMissing(t *testing.T) {
	t.Parallel()

	svc, _ := newDocumentService(t)

	_, err := svc.Update(context.Background(), "no-such-id", "t", "b")
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDocumentService_DeleteCarriesLastState(t *testing.T) {
	t.Parallel()

	svc, pub := newDocumentService(t)
	mirrorUser(t, svc.Store, "sub-alice")
	doc, err := svc.Create(context.Background(), "sub-alice", "notes", "body")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), doc.ID))

	ev := pub.last(t)
	require.Equal(t, domain.DocumentDeleted, ev.Type)
	require.Equal(t, "notes", ev.Document.Title)

	_, err = svc.Get(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDocumentService_Transfer(t *testing.T) {
	t.Parallel()

	svc, pub := newDocumentService(t)
	mirrorUser(t, svc.Store, "sub-alice")
	mirrorUser(t, svc.Store, "sub-bob")
	doc, err := svc.Create(context.Background(), "sub-alice", "notes", "body")
	require.NoError(t, err)

	moved, err := svc.Transfer(context.Background(), doc.ID, "sub-bob")
	require.NoError(t, err)
	require.Equal(t, "sub-bob", moved.OwnerID)

	ev := pub.last(t)
	require.Equal(t, domain.DocumentTransferred, ev.Type)
	require.Equal(t, "sub-bob", ev.Document.OwnerID)

	owner, err := svc.OwnerOf(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, "sub-bob", owner)
}

func TestDocumentService_TransferToUnknownOwner(t *testing.T) {
	t.Parallel()

	svc, pub := newDocumentService(t)
	mirrorUser(t, svc.Store, "sub-alice")
	doc, err := svc.Create(context.Background(), "sub-alice", "notes", "body")
	require.NoError(t, err)
	before := len(pub.events)

	_, err = svc.Transfer(context.Background(), doc.ID, "sub-nobody")
	require.ErrorIs(t, err, ErrOwnerNotFound)
	require.Len(t, pub.events, before, "failed transfer must not publish")

	owner, err := svc.OwnerOf(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, "sub-alice", owner)
}

func TestDocumentService_OwnerOfMissing(t *testing.T) {
	t.Parallel()

	svc, _ := newDocumentService(t)

	_, err := svc.OwnerOf(context.Background(), "no-such-id")
	require.ErrorIs(t, err, ErrDocumentNotFound)
}
