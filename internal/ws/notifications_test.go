package ws

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialink/realtime-platform/internal/model"
	"github.com/socialink/realtime-platform/internal/service"
	"github.com/socialink/realtime-platform/internal/store"
	"github.com/socialink/realtime-platform/pkg/logger"
)

func newNotificationTestGateway(t *testing.T, cfg NotificationGatewayConfig) (*NotificationGateway, *service.NotificationService, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := service.NewNotificationService(mem, logger.NewNop())
	return NewNotificationGateway(cfg, svc, logger.NewNop()), svc, mem
}

func TestConnectPushesCountAndRecent(t *testing.T) {
	g, svc, _ := newNotificationTestGateway(t, NotificationGatewayConfig{CatchupDelay: -1})
	ctx := context.Background()

	_, err := svc.CreateLikeNotification(ctx, "alice", "bob", "post-1", "Alice")
	require.NoError(t, err)
	_, err = svc.CreateFollowNotification(ctx, "carol", "bob", "Carol")
	require.NoError(t, err)

	bob := testClient("bob")
	g.connect(ctx, bob)

	f := recvFrame(t, bob)
	assert.Equal(t, model.EventUnreadCount, f.Event)
	assert.Equal(t, 2, decodeData[model.UnreadCountPayload](t, f).Count)

	f = recvFrame(t, bob)
	assert.Equal(t, model.EventNotifications, f.Event)
	p := decodeData[model.NotificationsPayload](t, f)
	require.Len(t, p.Notifications, 2)
	assert.Equal(t, model.NotificationTypeFollow, p.Notifications[0].Type)

	g.disconnect(bob)
	assert.False(t, g.IsUserOnline("bob"))
}

func TestCatchupReplaysCappedUnread(t *testing.T) {
	g, _, mem := newNotificationTestGateway(t, NotificationGatewayConfig{
		CatchupMax:   3,
		CatchupDelay: -1,
	})
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 6; i++ {
		require.NoError(t, mem.CreateNotification(ctx, &model.Notification{
			ID:          fmt.Sprintf("n%d", i),
			Type:        model.NotificationTypeLike,
			Message:     "Alice liked your post",
			RecipientID: "bob",
			ActorID:     "alice",
			IsRead:      i == 0, // one already read, must be skipped
			CreatedAt:   now.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	// Outside the catch-up window, never replayed.
	require.NoError(t, mem.CreateNotification(ctx, &model.Notification{
		ID:          "stale",
		Type:        model.NotificationTypeLike,
		Message:     "Alice liked your post",
		RecipientID: "bob",
		ActorID:     "alice",
		CreatedAt:   now.Add(-48 * time.Hour),
	}))

	bob := testClient("bob")
	g.pushCatchup(ctx, bob)

	var replayed []string
	for i := 0; i < 3; i++ {
		f := recvFrame(t, bob)
		require.Equal(t, model.EventNewNotification, f.Event)
		replayed = append(replayed, decodeData[*model.Notification](t, f).ID)
	}
	assertNoFrame(t, bob)

	// Newest first, read and stale entries skipped.
	assert.Equal(t, []string{"n5", "n4", "n3"}, replayed)
}

func TestCatchupStopsWhenConnectionCloses(t *testing.T) {
	g, svc, _ := newNotificationTestGateway(t, NotificationGatewayConfig{
		CatchupDelay: 50 * time.Millisecond,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateLikeNotification(ctx, "alice", "bob", "post-1", "Alice")
		require.NoError(t, err)
	}

	bob := testClient("bob")
	done := make(chan struct{})
	go func() {
		g.pushCatchup(ctx, bob)
		close(done)
	}()

	recvFrame(t, bob)
	bob.close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("catch-up kept running after close")
	}
}

func TestGetNotificationsEvent(t *testing.T) {
	g, svc, _ := newNotificationTestGateway(t, NotificationGatewayConfig{CatchupDelay: -1})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := svc.CreateLikeNotification(ctx, "alice", "bob", "post-1", "Alice")
		require.NoError(t, err)
	}

	bob := testClient("bob")
	g.dispatch(ctx, bob, model.Envelope{
		Event: model.EventGetNotifications,
		Data:  model.GetNotificationsPayload{Limit: 2},
	})

	f := recvFrame(t, bob)
	assert.Equal(t, model.EventNotifications, f.Event)
	assert.Len(t, decodeData[model.NotificationsPayload](t, f).Notifications, 2)
}

func TestMarkAsReadRefreshesCount(t *testing.T) {
	g, svc, _ := newNotificationTestGateway(t, NotificationGatewayConfig{CatchupDelay: -1})
	ctx := context.Background()

	n1, err := svc.CreateLikeNotification(ctx, "alice", "bob", "post-1", "Alice")
	require.NoError(t, err)
	_, err = svc.CreateCommentNotification(ctx, "alice", "bob", "post-1", "Alice")
	require.NoError(t, err)

	bob := testClient("bob")
	g.dispatch(ctx, bob, model.Envelope{
		Event: model.EventMarkAsRead,
		Data:  model.MarkNotificationReadPayload{NotificationID: n1.ID},
	})

	f := recvFrame(t, bob)
	assert.Equal(t, model.EventUnreadCount, f.Event)
	assert.Equal(t, 1, decodeData[model.UnreadCountPayload](t, f).Count)

	g.dispatch(ctx, bob, model.Envelope{Event: model.EventMarkAllAsRead})
	f = recvFrame(t, bob)
	assert.Equal(t, model.EventUnreadCount, f.Event)
	assert.Equal(t, 0, decodeData[model.UnreadCountPayload](t, f).Count)
}

func TestSendNotificationToUser(t *testing.T) {
	g, svc, _ := newNotificationTestGateway(t, NotificationGatewayConfig{CatchupDelay: -1})
	ctx := context.Background()

	bob := testClient("bob")
	g.connect(ctx, bob)
	drainFrames(bob)

	n, err := svc.CreateLikeNotification(ctx, "alice", "bob", "post-1", "Alice")
	require.NoError(t, err)
	g.SendNotificationToUser(ctx, "bob", n)

	f := recvFrame(t, bob)
	assert.Equal(t, model.EventNewNotification, f.Event)
	assert.Equal(t, n.ID, decodeData[*model.Notification](t, f).ID)

	f = recvFrame(t, bob)
	assert.Equal(t, model.EventUnreadCount, f.Event)
	assert.Equal(t, 1, decodeData[model.UnreadCountPayload](t, f).Count)

	// Pushing to an offline user is a no-op.
	m, err := svc.CreateLikeNotification(ctx, "alice", "carol", "post-1", "Alice")
	require.NoError(t, err)
	g.SendNotificationToUser(ctx, "carol", m)
}
