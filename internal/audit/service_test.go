package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jsyadav90/abcd-backend2/internal/audit"
	"github.com/jsyadav90/abcd-backend2/internal/models"
	"github.com/jsyadav90/abcd-backend2/internal/testutil"
)

type recordingChannel struct {
	msgs []amqp.Publishing
	keys []string
	err  error
}

func (r *recordingChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if r.err != nil {
		return r.err
	}
	r.keys = append(r.keys, key)
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestRecorderWritesDatabaseAndPublishes(t *testing.T) {
	db := testutil.NewDB(t)
	ch := &recordingChannel{}
	dbSink := audit.NewDBSink(db)
	rec := audit.NewRecorder(zap.NewNop(), dbSink, audit.NewAMQPSink(ch, "activity", "activity.log"))

	err := rec.Write(context.Background(), audit.LogOptions{
		UserID:      3,
		UserName:    "alice",
		EntityType:  "reporting",
		EntityID:    9,
		Action:      models.AuditActionUpdate,
		Description: "reporting changed",
		Before:      map[string]any{"reporting_to_id": nil},
		After:       map[string]any{"reporting_to_id": 4},
	})
	require.NoError(t, err)

	logs, err := dbSink.List(context.Background(), audit.ListFilter{EntityType: "reporting"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, `{"reporting_to_id":null}`, logs[0].BeforeData)
	assert.Equal(t, `{"reporting_to_id":4}`, logs[0].AfterData)

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "activity.log", ch.keys[0])
	assert.Equal(t, amqp.Persistent, ch.msgs[0].DeliveryMode)
	var published models.ActivityLog
	require.NoError(t, json.Unmarshal(ch.msgs[0].Body, &published))
	assert.Equal(t, logs[0].ID, published.ID)
}

func TestSecondarySinkFailureIsNotFatal(t *testing.T) {
	db := testutil.NewDB(t)
	ch := &recordingChannel{err: errors.New("channel closed")}
	rec := audit.NewRecorder(zap.NewNop(), audit.NewDBSink(db), audit.NewAMQPSink(ch, "activity", "activity.log"))

	err := rec.Write(context.Background(), audit.LogOptions{EntityType: "user", Action: models.AuditActionCreate})
	require.NoError(t, err)
}

func TestListFilters(t *testing.T) {
	db := testutil.NewDB(t)
	sink := audit.NewDBSink(db)
	rec := audit.NewRecorder(zap.NewNop(), sink)
	ctx := context.Background()

	require.NoError(t, rec.Write(ctx, audit.LogOptions{UserID: 1, EntityType: "user", EntityID: 5, Action: models.AuditActionCreate}))
	require.NoError(t, rec.Write(ctx, audit.LogOptions{UserID: 2, EntityType: "user", EntityID: 6, Action: models.AuditActionDelete}))
	require.NoError(t, rec.Write(ctx, audit.LogOptions{UserID: 2, EntityType: "credential", EntityID: 6, Action: models.AuditActionLogin}))

	logs, err := sink.List(ctx, audit.ListFilter{UserID: 2})
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	logs, err = sink.List(ctx, audit.ListFilter{EntityType: "user", EntityID: 6})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionDelete, logs[0].Action)
}
