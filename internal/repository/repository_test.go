package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/forum-core/internal/audit"
	"github.com/iliyamo/forum-core/internal/database"
	"github.com/iliyamo/forum-core/internal/logging"
	"github.com/iliyamo/forum-core/internal/model"
)

type fixture struct {
	db       *sql.DB
	store    *Store
	users    *UserRepo
	bans     *BanRepo
	topics   *TopicRepo
	comments *CommentRepo
	audits   *AuditRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{
		Driver: database.SQLite,
		Path:   filepath.Join(t.TempDir(), "repo.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	audits := NewAuditRepo(db)
	return &fixture{
		db:       db,
		store:    NewStore(db, audit.NewRecorder(audits, logging.Discard())),
		users:    NewUserRepo(db),
		bans:     NewBanRepo(db),
		topics:   NewTopicRepo(db),
		comments: NewCommentRepo(db),
		audits:   audits,
	}
}

func (f *fixture) createUser(t *testing.T, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Roles: []string{model.RoleUser}}
	require.NoError(t, f.store.Save(context.Background(), func(uow *UnitOfWork) error {
		if err := f.users.CreateTx(context.Background(), uow.Tx(), u, uow.Now()); err != nil {
			return err
		}
		uow.Created(u.Snapshot())
		return nil
	}))
	return u
}

func (f *fixture) createTopic(t *testing.T, author uint64, at time.Time) *model.Topic {
	t.Helper()
	ctx := context.Background()
	tp := &model.Topic{Title: "t", Content: "c", AuthorID: author}
	require.NoError(t, f.store.Save(ctx, func(uow *UnitOfWork) error {
		return f.topics.CreateTx(ctx, uow.Tx(), tp, at)
	}))
	return tp
}

func (f *fixture) auditCount(t *testing.T) int {
	t.Helper()
	n, err := f.audits.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSaveCommitsMutationAndAuditRowsTogether(t *testing.T) {
	f := newFixture(t)
	u := f.createUser(t, "ann")

	rows, err := f.audits.ListByEntity(context.Background(), "User", strconv.FormatUint(u.ID, 10))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, audit.Created, r.Operation)
		assert.Empty(t, r.OldValue)
	}
	assert.Equal(t, "UserName", rows[0].FieldName)
	assert.Equal(t, "ann", rows[0].NewValue)

	got, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{model.RoleUser}, got.Roles)
	assert.Equal(t, uint64(1), got.Version)
}

func TestSaveRollbackLeavesNoRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := f.store.Save(ctx, func(uow *UnitOfWork) error {
		tp := &model.Topic{Title: "t", Content: "c"}
		if err := f.topics.CreateTx(ctx, uow.Tx(), tp, uow.Now()); err != nil {
			return err
		}
		uow.Created(tp.Snapshot())
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, f.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM topics").Scan(&n))
	assert.Zero(t, n)
	assert.Zero(t, f.auditCount(t))
}

func TestSaveWithoutChangesWritesNoAuditRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "bob")
	before := f.auditCount(t)

	require.NoError(t, f.store.Save(ctx, func(uow *UnitOfWork) error {
		cur, err := f.users.GetByIDTx(ctx, uow.Tx(), u.ID)
		if err != nil {
			return err
		}
		snap := cur.Snapshot()
		if err := f.users.UpdateTx(ctx, uow.Tx(), cur, uow.Now()); err != nil {
			return err
		}
		uow.Updated(snap, cur.Snapshot())
		return nil
	}))
	assert.Equal(t, before, f.auditCount(t))
}

func TestUpdateWithStaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tp := f.createTopic(t, 0, Now())

	first, err := f.topics.GetByID(ctx, tp.ID)
	require.NoError(t, err)
	second, err := f.topics.GetByID(ctx, tp.ID)
	require.NoError(t, err)

	require.NoError(t, f.store.Save(ctx, func(uow *UnitOfWork) error {
		first.State = model.StateShow
		return f.topics.UpdateTx(ctx, uow.Tx(), first, uow.Now())
	}))
	err = f.store.Save(ctx, func(uow *UnitOfWork) error {
		second.State = model.StateHide
		return f.topics.UpdateTx(ctx, uow.Tx(), second, uow.Now())
	})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := f.topics.GetByID(ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateShow, got.State)
	assert.Equal(t, uint64(2), got.Version)
}

func TestBanIsUniquePerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "carl")
	end := Now().Add(time.Hour)

	require.NoError(t, f.store.Save(ctx, func(uow *UnitOfWork) error {
		return f.bans.CreateTx(ctx, uow.Tx(), &model.Ban{UserID: u.ID, Reason: "spam", BanEndDate: end}, uow.Now())
	}))
	err := f.store.Save(ctx, func(uow *UnitOfWork) error {
		return f.bans.CreateTx(ctx, uow.Tx(), &model.Ban{UserID: u.ID, Reason: "again", BanEndDate: end}, uow.Now())
	})
	assert.ErrorIs(t, err, ErrDuplicate)

	b, err := f.bans.GetByUserID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "spam", b.Reason)
}

func TestBanExpiredBeforeAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.createUser(t, "old")
	fresh := f.createUser(t, "fresh")
	now := Now()

	require.NoError(t, f.store.Save(ctx, func(uow *UnitOfWork) error {
		if err := f.bans.CreateTx(ctx, uow.Tx(), &model.Ban{UserID: old.ID, BanEndDate: now.Add(-time.Minute)}, now); err != nil {
			return err
		}
		return f.bans.CreateTx(ctx, uow.Tx(), &model.Ban{UserID: fresh.ID, BanEndDate: now.Add(time.Hour)}, now)
	}))

	expired, err := f.bans.ExpiredBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].UserID)

	require.NoError(t, f.store.Save(ctx, func(uow *UnitOfWork) error {
		return f.bans.DeleteTx(ctx, uow.Tx(), expired[0].ID)
	}))
	err = f.store.Save(ctx, func(uow *UnitOfWork) error {
		return f.bans.DeleteTx(ctx, uow.Tx(), expired[0].ID)
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.bans.GetByID(ctx, expired[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchivableTopics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "dana")
	now := Now()
	longAgo := now.AddDate(0, 0, -40)
	cutoff := now.AddDate(0, 0, -30)

	staleEmpty := f.createTopic(t, u.ID, longAgo)
	freshEmpty := f.createTopic(t, u.ID, now)
	staleComments := f.createTopic(t, u.ID, longAgo)
	liveComments := f.createTopic(t, u.ID, longAgo)
	inactive := f.createTopic(t, u.ID, longAgo)

	require.NoError(t, f.store.Save(ctx, func(uow *UnitOfWork) error {
		if err := f.comments.CreateTx(ctx, uow.Tx(), &model.Comment{TopicID: staleComments.ID, AuthorID: u.ID, Content: "a"}, longAgo); err != nil {
			return err
		}
		if err := f.comments.CreateTx(ctx, uow.Tx(), &model.Comment{TopicID: liveComments.ID, AuthorID: u.ID, Content: "b"}, longAgo); err != nil {
			return err
		}
		if err := f.comments.CreateTx(ctx, uow.Tx(), &model.Comment{TopicID: liveComments.ID, AuthorID: u.ID, Content: "c"}, now); err != nil {
			return err
		}
		inactive.Status = model.StatusInactive
		return f.topics.UpdateTx(ctx, uow.Tx(), inactive, longAgo)
	}))

	got, err := f.topics.ArchivableTopics(ctx, cutoff)
	require.NoError(t, err)
	var ids []uint64
	for _, tp := range got {
		ids = append(ids, tp.ID)
	}
	assert.ElementsMatch(t, []uint64{staleEmpty.ID, staleComments.ID}, ids)
	assert.NotContains(t, ids, freshEmpty.ID)
}

func TestCommentTalliesReportDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "eve")
	tp := f.createTopic(t, u.ID, Now())

	require.NoError(t, f.store.Save(ctx, func(uow *UnitOfWork) error {
		for i := 0; i < 3; i++ {
			if err := f.comments.CreateTx(ctx, uow.Tx(), &model.Comment{TopicID: tp.ID, AuthorID: u.ID, Content: "x"}, uow.Now()); err != nil {
				return err
			}
		}
		return nil
	}))

	tallies, err := f.topics.CommentTallies(ctx)
	require.NoError(t, err)
	require.Len(t, tallies, 1)
	assert.Equal(t, uint32(0), tallies[0].Stored)
	assert.Equal(t, uint32(3), tallies[0].Actual)
	assert.True(t, tallies[0].Drifted())

	n, err := f.comments.CountByTopic(ctx, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
}

func TestTopicSearchFiltersAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	base := Now().Add(-time.Hour)

	for i := range 5 {
		f.createTopic(t, alice.ID, base.Add(time.Duration(i)*time.Minute))
	}
	hidden := f.createTopic(t, bob.ID, base.Add(10*time.Minute))
	hidden.Title = "Golang tips"
	hidden.State = model.StateHide
	require.NoError(t, f.store.Save(ctx, func(uow *UnitOfWork) error {
		return f.topics.UpdateTx(ctx, uow.Tx(), hidden, uow.Now())
	}))

	page, total, err := f.topics.Search(ctx, TopicSearchQuery{Page: 1, PageSize: 4})
	require.NoError(t, err)
	assert.EqualValues(t, 6, total)
	require.Len(t, page, 4)
	assert.Equal(t, hidden.ID, page[0].ID, "newest first")

	page, _, err = f.topics.Search(ctx, TopicSearchQuery{Page: 2, PageSize: 4})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	page, total, err = f.topics.Search(ctx, TopicSearchQuery{Title: "golang", PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, model.StateHide, page[0].State)

	_, total, err = f.topics.Search(ctx, TopicSearchQuery{State: model.StatePending, AuthorID: alice.ID, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
}
