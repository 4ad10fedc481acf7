package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/forum-core/internal/audit"
	"github.com/iliyamo/forum-core/internal/database"
	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/model"
	"github.com/iliyamo/forum-core/internal/queue"
	"github.com/iliyamo/forum-core/internal/repository"
	"github.com/iliyamo/forum-core/internal/revocation"
)

// recordingPublisher keeps every published event.  onPublish, when set,
// runs after the event is recorded; bans publish only after committing, so
// it observes committed state.
type recordingPublisher struct {
	mu        sync.Mutex
	events    []queue.ModerationEvent
	onPublish func(queue.ModerationEvent)
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.ModerationEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	hook := p.onPublish
	p.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return nil
}

func (p *recordingPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Kind)
	}
	return out
}

type env struct {
	ctx      context.Context
	store    *repository.Store
	users    *repository.UserRepo
	bans     *repository.BanRepo
	topics   *repository.TopicRepo
	comments *repository.CommentRepo
	audits   *repository.AuditRepo
	registry *revocation.MemoryRegistry
	events   *recordingPublisher

	tokens     *TokenService
	banSvc     *BanService
	topicSvc   *TopicService
	commentSvc *CommentService
	exec       func(query string, args ...any)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{Driver: database.SQLite, Path: filepath.Join(t.TempDir(), "svc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logging.Discard()
	e := &env{
		ctx:      ctx,
		users:    repository.NewUserRepo(db),
		bans:     repository.NewBanRepo(db),
		topics:   repository.NewTopicRepo(db),
		comments: repository.NewCommentRepo(db),
		audits:   repository.NewAuditRepo(db),
		registry: revocation.NewMemoryRegistry(),
		events:   &recordingPublisher{},
	}
	e.store = repository.NewStore(db, audit.NewRecorder(e.audits, log))
	e.tokens = NewTokenService(e.store, e.users, TokenConfig{
		Secret:     "test-secret-test-secret-test-secret",
		Issuer:     "forum",
		Audience:   "forum",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, log)
	e.banSvc = NewBanService(e.store, e.users, e.bans, e.audits, e.registry, e.tokens, e.events, log)
	e.topicSvc = NewTopicService(e.store, e.topics, e.audits, e.events, 30, log)
	e.commentSvc = NewCommentService(e.store, e.topics, e.comments, e.users, e.audits, log)
	e.exec = func(query string, args ...any) {
		t.Helper()
		_, err := db.ExecContext(ctx, query, args...)
		require.NoError(t, err)
	}
	return e
}

func (e *env) register(t *testing.T, name string) *model.User {
	t.Helper()
	u, err := e.tokens.Register(e.ctx, name, name+"@example.com", "password1")
	require.NoError(t, err)
	return u
}

func (e *env) reload(t *testing.T, id uint64) *model.User {
	t.Helper()
	u, err := e.users.GetByID(e.ctx, id)
	require.NoError(t, err)
	return u
}
