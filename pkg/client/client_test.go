package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightforgemedia/go-musicassistant/pkg/api"
	"github.com/lightforgemedia/go-musicassistant/pkg/client"
	"github.com/lightforgemedia/go-musicassistant/pkg/testutil"
)

const testTimeout = 5 * time.Second

// startClient connects, starts the listen loop on its own goroutine and
// blocks until the loop is live. The returned channel carries the loop's
// exit error.
func startClient(t *testing.T, ms *testutil.MockServer, opts ...client.Option) (*client.Client, <-chan error) {
	t.Helper()
	c := client.New(ms.URL, opts...)
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	ready := make(chan struct{})
	var once sync.Once
	unsubscribe := c.Subscribe(func(ev *api.EventMessage) {
		once.Do(func() { close(ready) })
	}, client.FilterEvents(api.EventConnectionStateChanged))

	errCh := make(chan error, 1)
	go func() { errCh <- c.StartListening(context.Background()) }()

	select {
	case <-ready:
	case <-time.After(testTimeout):
		t.Fatal("listen loop did not start")
	}
	unsubscribe()
	return c, errCh
}

func waitEvent(t *testing.T, ch <-chan *api.EventMessage) *api.EventMessage {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestConnectWithoutAuthRequirement(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)

	c := client.New(ms.URL)
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	info := c.ServerInfo()
	require.NotNil(t, info)
	assert.Equal(t, 27, info.SchemaVersion)
	assert.True(t, c.Connected())
}

func TestConnectAuthRequiredWithoutToken(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(28))
	t.Cleanup(ms.Close)

	c := client.New(ms.URL)
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, api.ErrAuthenticationRequired)

	// The handshake succeeded, so server info is available to inspect.
	require.NotNil(t, c.ServerInfo())
	require.NoError(t, c.Close())
}

func TestConnectWithValidToken(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(28))
	t.Cleanup(ms.Close)
	token := ms.IssueToken("test")

	c, _ := startClient(t, ms, client.WithAuthToken(token))

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := c.SendCommand(ctx, "players/all", nil)
	assert.NoError(t, err)
}

func TestConnectWithInvalidToken(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(28))
	t.Cleanup(ms.Close)

	c := client.New(ms.URL, client.WithAuthToken("bogus"))
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, api.ErrAuthenticationFailed)
}

func TestConnectTwice(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)

	c := client.New(ms.URL)
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	assert.ErrorIs(t, c.Connect(ctx), api.ErrInvalidState)
}

func TestSendCommandBeforeConnect(t *testing.T) {
	c := client.New("http://localhost:1")
	t.Cleanup(func() { c.Close() })

	_, err := c.SendCommand(context.Background(), "players/all", nil)
	assert.ErrorIs(t, err, api.ErrNotConnected)
}

func TestCommandRoundTrip(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)
	ms.Handle("music/search", func(args map[string]any) (any, error) {
		return map[string]any{"query": args["search_query"]}, nil
	})

	c, _ := startClient(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	raw, err := c.Music.Search(ctx, "bohemian rhapsody")
	require.NoError(t, err)
	assert.JSONEq(t, `{"query": "bohemian rhapsody"}`, string(raw))
}

func TestOutOfOrderResponses(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)
	ms.Handle("slow", func(args map[string]any) (any, error) {
		time.Sleep(300 * time.Millisecond)
		return "slow result", nil
	})
	ms.Handle("fast", func(args map[string]any) (any, error) {
		return "fast result", nil
	})

	c, _ := startClient(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, command := range []string{"slow", "fast"} {
		wg.Add(1)
		go func(i int, command string) {
			defer wg.Done()
			raw, err := c.SendCommand(ctx, command, nil)
			if err != nil {
				t.Errorf("command %q failed: %v", command, err)
				return
			}
			_ = json.Unmarshal(raw, &results[i])
		}(i, command)
		// The slow command must hit the wire first.
		time.Sleep(50 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, "slow result", results[0])
	assert.Equal(t, "fast result", results[1])
}

func TestCommandError(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)
	ms.Handle("players/cmd/play", func(args map[string]any) (any, error) {
		return nil, errors.New("player offline")
	})

	c, _ := startClient(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	err := c.Players.Play(ctx, "player-1")

	var cmdErr *api.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "players/cmd/play", cmdErr.Command)
	assert.Equal(t, "player offline", cmdErr.Details)
}

func TestRequireSchema(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)

	c, _ := startClient(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	_, err := c.SendCommand(ctx, "music/new_fancy_command", nil, client.RequireSchema(30))
	assert.ErrorIs(t, err, api.ErrUnsupportedSchema)

	_, err = c.SendCommand(ctx, "players/all", nil, client.RequireSchema(27))
	assert.NoError(t, err)
}

func TestGenericCommand(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)
	ms.Handle("players/all", func(args map[string]any) (any, error) {
		return []api.Player{
			{PlayerID: "p1", Name: "Kitchen", Available: true},
			{PlayerID: "p2", Name: "Bedroom"},
		}, nil
	})

	c, _ := startClient(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	players, err := client.GenericCommand[[]api.Player](c, ctx, "players/all", nil)
	require.NoError(t, err)
	require.Len(t, *players, 2)
	assert.Equal(t, "Kitchen", (*players)[0].Name)

	// A null result decodes to the zero value.
	empty, err := client.GenericCommand[[]api.Player](c, ctx, "music/sync", nil)
	require.NoError(t, err)
	assert.Empty(t, *empty)
}

func TestContextCancelledWait(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)
	ms.Handle("slow", func(args map[string]any) (any, error) {
		time.Sleep(time.Second)
		return "late", nil
	})

	c, _ := startClient(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.SendCommand(ctx, "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The session survives an abandoned wait; the late response is
	// absorbed and later commands work.
	ctx2, cancel2 := context.WithTimeout(context.Background(), testTimeout)
	defer cancel2()
	_, err = c.SendCommand(ctx2, "players/all", nil)
	assert.NoError(t, err)
}

func TestDisconnectResolvesPending(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)
	ms.Handle("slow", func(args map[string]any) (any, error) {
		time.Sleep(10 * time.Second)
		return nil, nil
	})

	c, loopErr := startClient(t, ms)

	const n = 3
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.SendCommand(context.Background(), "slow", nil)
		}(i)
	}
	// Let the commands reach the wire before dropping the connection.
	time.Sleep(200 * time.Millisecond)
	ms.CloseConnections()
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.ErrorIs(t, errs[i], api.ErrConnectionClosed, "command %d", i)
	}

	select {
	case err := <-loopErr:
		assert.ErrorIs(t, err, api.ErrConnectionClosed)
	case <-time.After(testTimeout):
		t.Fatal("listen loop did not exit")
	}
	assert.False(t, c.Connected())
}

func TestMalformedFrameDoesNotKillLoop(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)

	c, _ := startClient(t, ms)

	events := make(chan *api.EventMessage, 1)
	unsubscribe := c.Subscribe(func(ev *api.EventMessage) {
		events <- ev
	}, client.FilterEvents(api.EventProvidersUpdated))
	defer unsubscribe()

	ms.PushRaw([]byte(`this is not json`))
	ms.PushEvent(api.EventMessage{Event: api.EventProvidersUpdated})

	ev := waitEvent(t, events)
	assert.Equal(t, api.EventProvidersUpdated, ev.Event)
}

func TestEventFiltering(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)

	c, _ := startClient(t, ms)

	p1Events := make(chan *api.EventMessage, 4)
	unsubscribe := c.Subscribe(func(ev *api.EventMessage) {
		p1Events <- ev
	}, client.FilterEvents(api.EventPlayerUpdated), client.FilterObjectID("player-1"))
	defer unsubscribe()

	done := make(chan *api.EventMessage, 1)
	unsubDone := c.Subscribe(func(ev *api.EventMessage) {
		done <- ev
	}, client.FilterEvents(api.EventSyncTasksUpdated))
	defer unsubDone()

	ms.PushEvent(api.EventMessage{Event: api.EventPlayerUpdated, ObjectID: "player-2"})
	ms.PushEvent(api.EventMessage{Event: api.EventQueueUpdated, ObjectID: "player-1"})
	ms.PushEvent(api.EventMessage{Event: api.EventPlayerUpdated, ObjectID: "player-1"})
	ms.PushEvent(api.EventMessage{Event: api.EventSyncTasksUpdated})

	// The sentinel event was sent last, so once it arrives all player
	// events have been dispatched.
	waitEvent(t, done)

	require.Len(t, p1Events, 1)
	ev := <-p1Events
	assert.Equal(t, "player-1", ev.ObjectID)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)

	c, _ := startClient(t, ms)

	events := make(chan *api.EventMessage, 4)
	unsubscribe := c.Subscribe(func(ev *api.EventMessage) {
		events <- ev
	}, client.FilterEvents(api.EventProvidersUpdated))

	done := make(chan *api.EventMessage, 1)
	unsubDone := c.Subscribe(func(ev *api.EventMessage) {
		done <- ev
	}, client.FilterEvents(api.EventSyncTasksUpdated))
	defer unsubDone()

	ms.PushEvent(api.EventMessage{Event: api.EventProvidersUpdated})
	ms.PushEvent(api.EventMessage{Event: api.EventSyncTasksUpdated})
	waitEvent(t, done)
	require.Len(t, events, 1)
	<-events

	unsubscribe()
	ms.PushEvent(api.EventMessage{Event: api.EventProvidersUpdated})
	ms.PushEvent(api.EventMessage{Event: api.EventSyncTasksUpdated})
	waitEvent(t, done)
	assert.Len(t, events, 0)
}

func TestCloseShutsDownCleanly(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)

	c, loopErr := startClient(t, ms)

	require.NoError(t, c.Close())
	select {
	case err := <-loopErr:
		assert.NoError(t, err, "shutdown via Close is not a loop failure")
	case <-time.After(testTimeout):
		t.Fatal("listen loop did not exit")
	}

	// Idempotent.
	require.NoError(t, c.Close())

	_, err := c.SendCommand(context.Background(), "players/all", nil)
	assert.ErrorIs(t, err, api.ErrNotConnected)
}

func TestPlayersCache(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)
	ms.Handle("players/all", func(args map[string]any) (any, error) {
		return []api.Player{
			{PlayerID: "p1", Name: "Kitchen", Available: true, State: api.PlaybackStateIdle},
			{PlayerID: "p2", Name: "Bedroom", Available: true},
		}, nil
	})

	c, _ := startClient(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Players.FetchState(ctx))

	assert.Len(t, c.Players.All(), 2)
	p1, ok := c.Players.Get("p1")
	require.True(t, ok)
	assert.Equal(t, "Kitchen", p1.Name)

	// Cache tracks server events.
	sentinel := make(chan *api.EventMessage, 1)
	unsubDone := c.Subscribe(func(ev *api.EventMessage) {
		sentinel <- ev
	}, client.FilterEvents(api.EventSyncTasksUpdated))
	defer unsubDone()

	updated, _ := json.Marshal(api.Player{PlayerID: "p1", Name: "Kitchen", Available: true, State: api.PlaybackStatePlaying})
	ms.PushEvent(api.EventMessage{Event: api.EventPlayerUpdated, ObjectID: "p1", Data: updated})
	ms.PushEvent(api.EventMessage{Event: api.EventPlayerRemoved, ObjectID: "p2"})
	ms.PushEvent(api.EventMessage{Event: api.EventSyncTasksUpdated})
	waitEvent(t, sentinel)

	p1, ok = c.Players.Get("p1")
	require.True(t, ok)
	assert.Equal(t, api.PlaybackStatePlaying, p1.State)
	_, ok = c.Players.Get("p2")
	assert.False(t, ok)
	assert.Len(t, c.Players.All(), 1)
}

func TestPlayerCommandsSendExpectedArgs(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)

	var mu sync.Mutex
	captured := make(map[string]map[string]any)
	capture := func(command string) {
		ms.Handle(command, func(args map[string]any) (any, error) {
			mu.Lock()
			captured[command] = args
			mu.Unlock()
			return nil, nil
		})
	}
	capture("players/cmd/volume_set")
	capture("players/cmd/power")
	capture("players/cmd/play_announcement")

	c, _ := startClient(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	require.NoError(t, c.Players.VolumeSet(ctx, "p1", 42))
	require.NoError(t, c.Players.Power(ctx, "p1", true))
	level := 80
	require.NoError(t, c.Players.PlayAnnouncement(ctx, "p1", "http://host/chime.mp3", &level))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, float64(42), captured["players/cmd/volume_set"]["volume_level"])
	assert.Equal(t, true, captured["players/cmd/power"]["powered"])
	assert.Equal(t, "http://host/chime.mp3", captured["players/cmd/play_announcement"]["url"])
	assert.Equal(t, float64(80), captured["players/cmd/play_announcement"]["volume_level"])
}

func TestNewWithOptions(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(28))
	t.Cleanup(ms.Close)
	token := ms.IssueToken("opts")

	opts := client.DefaultOptions()
	opts.AuthToken = token
	c := client.NewWithOptions(ms.URL, opts)
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.Connected())
}

func TestManyConcurrentCommands(t *testing.T) {
	ms := testutil.NewMockServer(testutil.WithSchemaVersion(27))
	t.Cleanup(ms.Close)
	ms.Handle("echo", func(args map[string]any) (any, error) {
		return args["value"], nil
	})

	c, _ := startClient(t, ms)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := c.SendCommand(ctx, "echo", map[string]any{"value": i})
			if err != nil {
				t.Errorf("echo %d: %v", i, err)
				return
			}
			if string(raw) != fmt.Sprintf("%d", i) {
				t.Errorf("echo %d: got %s", i, raw)
			}
		}(i)
	}
	wg.Wait()
}
