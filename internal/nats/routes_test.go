package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/File-Sharing-BondBridg/Upload-Service/internal/services/events"
)

type fakeMaintainer struct {
	purged     []string
	thumbnails []string
	err        error
}

func (f *fakeMaintainer) PurgeOwner(_ context.Context, userID string) (int, error) {
	f.purged = append(f.purged, userID)
	return 3, f.err
}

func (f *fakeMaintainer) GenerateThumbnails(_ context.Context, id string) error {
	f.thumbnails = append(f.thumbnails, id)
	return f.err
}

type fakeSubscriber struct {
	subjects map[string]string
	fail     string
}

func (f *fakeSubscriber) Subscribe(subject, durable string, _ nats.MsgHandler) (*nats.Subscription, error) {
	if subject == f.fail {
		return nil, errors.New("boom")
	}
	f.subjects[subject] = durable
	return &nats.Subscription{Subject: subject}, nil
}

func TestRoutesOnlyConsumeThumbnailsWhenAsync(t *testing.T) {
	m := &fakeMaintainer{}

	sync := Routes(m, false, zerolog.Nop())
	assert.Len(t, sync, 1)
	assert.Contains(t, sync, events.SubjectUserDeleted)

	async := Routes(m, true, zerolog.Nop())
	assert.Len(t, async, 2)
	assert.Contains(t, async, events.SubjectThumbnailsRequested)
}

func TestSubscribeAllUsesDurables(t *testing.T) {
	sub := &fakeSubscriber{subjects: map[string]string{}}
	c := NewClient(sub, zerolog.Nop())

	require.NoError(t, c.SubscribeAll(Routes(&fakeMaintainer{}, true, zerolog.Nop())))
	assert.Equal(t, "upload-service-users-deleted", sub.subjects[events.SubjectUserDeleted])
	assert.Equal(t, "upload-service-thumbnails", sub.subjects[events.SubjectThumbnailsRequested])
}

func TestSubscribeAllFails(t *testing.T) {
	sub := &fakeSubscriber{subjects: map[string]string{}, fail: events.SubjectUserDeleted}
	c := NewClient(sub, zerolog.Nop())

	assert.Error(t, c.SubscribeAll(Routes(&fakeMaintainer{}, false, zerolog.Nop())))
}

func TestHandleUserDeleted(t *testing.T) {
	ctx := context.Background()
	m := &fakeMaintainer{}
	h := HandleUserDeleted(m, zerolog.Nop())

	require.NoError(t, h(ctx, &nats.Msg{Data: []byte(`{"user_id":"u1"}`)}))
	assert.Equal(t, []string{"u1"}, m.purged)

	assert.ErrorIs(t, h(ctx, &nats.Msg{Data: []byte(`not json`)}), ErrInvalidPayload)
	assert.ErrorIs(t, h(ctx, &nats.Msg{Data: []byte(`{}`)}), ErrInvalidPayload)

	m.err = errors.New("db down")
	err := h(ctx, &nats.Msg{Data: []byte(`{"user_id":"u2"}`)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPayload)
}

func TestHandleThumbnailsRequested(t *testing.T) {
	ctx := context.Background()
	m := &fakeMaintainer{}
	h := HandleThumbnailsRequested(m, zerolog.Nop())

	require.NoError(t, h(ctx, &nats.Msg{Data: []byte(`{"upload_id":"abc","path":"uploads/a.jpg"}`)}))
	assert.Equal(t, []string{"abc"}, m.thumbnails)
	assert.ErrorIs(t, h(ctx, &nats.Msg{Data: []byte(`{"path":"x"}`)}), ErrInvalidPayload)
}
