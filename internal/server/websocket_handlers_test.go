package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"knot/internal/notifications"
	"knot/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feedEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// serve starts the app on a loopback listener and returns its address.
func (e *testEnv) serve(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = e.app.Listener(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.srv.Shutdown(ctx)
		_ = e.app.ShutdownWithContext(ctx)
	})
	return ln.Addr().String()
}

func (e *testEnv) dialFeed(t *testing.T, addr string, u authedUser) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/ws?token="+u.Token, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return e.srv.hub.IsOnline(u.ID) }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) feedEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev feedEvent
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestFeedSocketLocalDelivery(t *testing.T) {
	env := newTestEnv(t)
	author := env.signup(t, "amber")
	watcher := env.signup(t, "basil")

	addr := env.serve(t)
	conn := env.dialFeed(t, addr, watcher)

	post := env.createPost(t, author.Token, "live", "")
	ev := readEvent(t, conn)
	assert.Equal(t, notifications.EventPostCreated, ev.Type)

	var payload struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, post.ID, payload.ID)

	resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/posts/"+post.ID+"/like", nil, watcher.Token))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ev = readEvent(t, conn)
	assert.Equal(t, notifications.EventPostLikesUpdated, ev.Type)
	assert.JSONEq(t, `{"post_id":"`+post.ID+`","likes":["`+watcher.ID+`"],"likes_count":1}`, string(ev.Payload))
}

func TestFeedSocketSaveEventsArePrivate(t *testing.T) {
	env := newTestEnv(t)
	author := env.signup(t, "cyril")
	saver := env.signup(t, "dora")

	addr := env.serve(t)
	authorConn := env.dialFeed(t, addr, author)
	saverConn := env.dialFeed(t, addr, saver)

	post := env.createPost(t, author.Token, "bookmark me", "")
	assert.Equal(t, notifications.EventPostCreated, readEvent(t, authorConn).Type)
	assert.Equal(t, notifications.EventPostCreated, readEvent(t, saverConn).Type)

	resp := env.do(t, jsonRequest(t, http.MethodPost, "/api/saves", map[string]string{"post_id": post.ID}, saver.Token))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, notifications.EventPostSaved, readEvent(t, saverConn).Type)

	require.NoError(t, authorConn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := authorConn.ReadMessage()
	assert.Error(t, err, "author must not see another user's save")
}

func TestFeedSocketDisabledFlag(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg := testConfig()
	cfg.FeatureFlags = "realtime_feed=off"
	srv, err := NewServerWithDeps(cfg, testutil.NewTestDB(t), nil, testutil.NewMemoryBucket())
	require.NoError(t, err)
	env := &testEnv{srv: srv, app: srv.NewApp()}

	author := env.signup(t, "ellis")
	addr := env.serve(t)
	conn := env.dialFeed(t, addr, author)

	env.createPost(t, author.Token, "quiet", "")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestFeedSocketRedisFanOut(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := testutil.NewTestDB(t)
	bucket := testutil.NewMemoryBucket()

	// two instances share the database, bucket and Redis
	first, err := NewServerWithDeps(testConfig(), db, rdb, bucket)
	require.NoError(t, err)
	second, err := NewServerWithDeps(testConfig(), db, rdb, bucket)
	require.NoError(t, err)
	require.NoError(t, first.StartRealtime())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })
	require.NoError(t, second.StartRealtime())

	writer := &testEnv{srv: first, app: first.NewApp(), bucket: bucket}
	reader := &testEnv{srv: second, app: second.NewApp(), bucket: bucket}

	author := writer.signup(t, "fiona")
	watcher := writer.signup(t, "gus")

	conn := reader.dialFeed(t, reader.serve(t), watcher)

	post := writer.createPost(t, author.Token, "across instances", "")
	ev := readEvent(t, conn)
	assert.Equal(t, notifications.EventPostCreated, ev.Type)
	assert.Contains(t, string(ev.Payload), post.ID)
}

func TestFeedSocketShutdownSendsGoingAway(t *testing.T) {
	env := newTestEnv(t)
	u := env.signup(t, "ezra")

	addr := env.serve(t)
	conn := env.dialFeed(t, addr, u)

	require.NoError(t, env.srv.Shutdown(context.Background()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Equal(t, "Server shutting down", closeErr.Text)
	assert.False(t, env.srv.hub.IsOnline(u.ID))
}
