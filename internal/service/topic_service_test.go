package service

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/forum-core/internal/model"
	"github.com/iliyamo/forum-core/internal/queue"
	"github.com/iliyamo/forum-core/internal/repository"
)

func TestArchiveOldTopics(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "ann")
	old := repository.Now().AddDate(0, 0, -40)

	stale, err := e.topicSvc.Create(e.ctx, u.ID, "stale", "body")
	require.NoError(t, err)
	fresh, err := e.topicSvc.Create(e.ctx, u.ID, "fresh", "body")
	require.NoError(t, err)
	archived, err := e.topicSvc.Create(e.ctx, u.ID, "archived", "body")
	require.NoError(t, err)
	e.exec("UPDATE topics SET modified_at=? WHERE id=?", old, stale.ID)
	e.exec("UPDATE topics SET modified_at=?, status=? WHERE id=?", old, string(model.StatusInactive), archived.ID)

	n, err := e.topicSvc.ArchiveOldTopics(e.ctx, "topic-archival")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.topicSvc.Get(e.ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, got.Status)
	got, err = e.topicSvc.Get(e.ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)

	// Already archived topics are not revisited.
	n, err = e.topicSvc.ArchiveOldTopics(e.ctx, "topic-archival")
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err = e.topicSvc.Get(e.ctx, archived.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Version)

	assert.Equal(t, []string{queue.KindTopicArchived}, e.events.kinds())
}

func TestChangeStateAuditsOnlyRealChanges(t *testing.T) {
	e := newEnv(t)
	u := e.register(t, "ann")
	tp, err := e.topicSvc.Create(e.ctx, u.ID, "title", "body")
	require.NoError(t, err)

	_, err = e.topicSvc.ChangeState(e.ctx, tp.ID, true)
	require.NoError(t, err)
	_, err = e.topicSvc.ChangeState(e.ctx, tp.ID, true)
	require.NoError(t, err)

	logs, err := e.topicSvc.Logs(e.ctx, tp.ID)
	require.NoError(t, err)
	require.Len(t, logs, 7)
	last := logs[6]
	assert.Equal(t, "State", last.FieldName)
	assert.Equal(t, string(model.StatePending), last.OldValue)
	assert.Equal(t, string(model.StateShow), last.NewValue)
	assert.Equal(t, strconv.FormatUint(tp.ID, 10), last.EntityID)

	_, err = e.topicSvc.ChangeState(e.ctx, 999, false)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateTopicValidates(t *testing.T) {
	e := newEnv(t)
	_, err := e.topicSvc.Create(e.ctx, 1, "  ", "body")
	assert.ErrorIs(t, err, ErrBadRequest)
}
