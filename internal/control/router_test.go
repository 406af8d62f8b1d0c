package control

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/wavebot/internal/collections"
	"github.com/llehouerou/wavebot/internal/library"
	"github.com/llehouerou/wavebot/internal/queue"
	"github.com/llehouerou/wavebot/internal/state"
	"github.com/llehouerou/wavebot/internal/voice"
)

type fakeProcessor struct {
	mu       sync.Mutex
	calls    []string
	paused   bool
	startErr error
}

func (p *fakeProcessor) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakeProcessor) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProcessor) Start(_ context.Context, ref voice.ChannelRef) error {
	p.record("start " + ref.ID)
	return p.startErr
}

func (p *fakeProcessor) Restart(_ context.Context, ref voice.ChannelRef) error {
	p.record("restart " + ref.ID)
	return nil
}

func (p *fakeProcessor) Stop(_ context.Context, channelID string) error {
	p.record("stop " + channelID)
	return nil
}

func (p *fakeProcessor) Supersede(channelID string) {
	p.record("supersede " + channelID)
}

func (p *fakeProcessor) TogglePause(channelID string) bool {
	p.record("pause " + channelID)
	p.paused = !p.paused
	return p.paused
}

func (p *fakeProcessor) ApplyVolume(_ context.Context, channelID string) error {
	p.record("volume " + channelID)
	return nil
}

type fakeCatalog struct {
	tracks map[string]library.Track
	asked  [][]string
}

func (c *fakeCatalog) Tracks(_ context.Context, ids []string) ([]library.Track, error) {
	c.asked = append(c.asked, ids)
	var out []library.Track
	for _, id := range ids {
		if t, ok := c.tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

type fixture struct {
	router  *Router
	store   *queue.Store
	proc    *fakeProcessor
	lib     *library.Library
	colls   *collections.Collections
	catalog *fakeCatalog
}

var ref = voice.ChannelRef{ID: "c1", Name: "general"}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	m, err := state.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	lib := library.New(m.DB(), zerolog.Nop())
	colls := collections.New(m.DB(), zerolog.Nop())
	store := queue.NewStore(m, colls, zerolog.Nop())
	proc := &fakeProcessor{}
	catalog := &fakeCatalog{tracks: map[string]library.Track{}}

	return &fixture{
		router:  New(store, proc, lib, catalog, colls, zerolog.Nop()),
		store:   store,
		proc:    proc,
		lib:     lib,
		colls:   colls,
		catalog: catalog,
	}
}

func (f *fixture) known(t *testing.T, ids ...string) {
	t.Helper()
	tracks := make([]library.Track, len(ids))
	for i, id := range ids {
		tracks[i] = library.Track{ID: id, Title: "title " + id, URL: "https://cdn.example/" + id}
	}
	_, err := f.lib.Ingest(context.Background(), tracks)
	require.NoError(t, err)
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"next", "prev", "stop", "loop", "shuffle", "skipItem", "volume", "pause", "restore"} {
		a, err := ParseAction(s)
		require.NoError(t, err)
		assert.Equal(t, Action(s), a)
	}

	_, err := ParseAction("queue")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestEnqueue_SingleTracks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a", "b")

	res, err := f.router.Enqueue(ctx, EnqueueRequest{Ref: ref, TrackIDs: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Queued)
	assert.Zero(t, res.CollectionID)

	q, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	require.Len(t, q.Items, 2)
	assert.Equal(t, queue.ItemTrack, q.Items[0].Type)
	assert.Equal(t, []string{"start c1"}, f.proc.Calls())
	assert.Empty(t, f.catalog.asked, "known tracks should not hit the catalog")
}

func TestEnqueue_FetchesUnknownTracks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a")
	f.catalog.tracks["b"] = library.Track{ID: "b", Title: "fetched", URL: "https://cdn.example/b"}

	res, err := f.router.Enqueue(ctx, EnqueueRequest{Ref: ref, TrackIDs: []string{"a", "b", "ghost"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 2, res.Queued)
	assert.Equal(t, [][]string{{"b", "ghost"}}, f.catalog.asked)

	tr, err := f.lib.TrackByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "fetched", tr.Title)

	q, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	require.Len(t, q.Items, 2)
	assert.Equal(t, "a", q.Items[0].TrackID)
	assert.Equal(t, "b", q.Items[1].TrackID)
}

func TestEnqueue_NothingKnown(t *testing.T) {
	f := newFixture(t)

	_, err := f.router.Enqueue(context.Background(), EnqueueRequest{Ref: ref, TrackIDs: []string{"ghost"}})
	require.ErrorIs(t, err, ErrNoTracks)
	assert.Empty(t, f.proc.Calls())
}

func TestEnqueue_PlaylistBecomesCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a", "b", "c", "d")

	res, err := f.router.Enqueue(ctx, EnqueueRequest{
		Ref: ref, Owner: "u1", Playlist: "mix", TrackIDs: []string{"a", "b", "c"},
	})
	require.NoError(t, err)
	require.NotZero(t, res.CollectionID)

	q, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	require.Len(t, q.Items, 1)
	assert.Equal(t, queue.ItemCollection, q.Items[0].Type)
	assert.Equal(t, res.CollectionID, q.Items[0].CollectionID)

	ids, err := f.colls.TrackIDs(ctx, res.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	// Walk to "c", then re-enqueue the playlist without "a".
	for range 2 {
		_, err := f.store.Advance(ctx, ref.ID)
		require.NoError(t, err)
	}
	again, err := f.router.Enqueue(ctx, EnqueueRequest{
		Ref: ref, Owner: "u1", Playlist: "mix", TrackIDs: []string{"b", "c", "d"},
	})
	require.NoError(t, err)
	assert.Equal(t, res.CollectionID, again.CollectionID)
	assert.Equal(t, 1, again.Removed)

	q, err = f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Items[0].CurrentIndex, "cursor still on c")
	ids, err = f.colls.TrackIDs(ctx, res.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, "c", ids[q.Items[0].CurrentIndex])
}

func TestEnqueue_SingleTrackIgnoresPlaylistName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a")

	res, err := f.router.Enqueue(ctx, EnqueueRequest{Ref: ref, Owner: "u1", Playlist: "mix", TrackIDs: []string{"a"}})
	require.NoError(t, err)
	assert.Zero(t, res.CollectionID)

	_, err = f.colls.FindByName(ctx, "u1", "mix")
	assert.ErrorIs(t, err, collections.ErrNotFound)
}

func TestEnqueue_ConnectionErrorReturned(t *testing.T) {
	f := newFixture(t)
	f.known(t, "a")
	f.proc.startErr = &voice.ConnectionError{ChannelID: ref.ID, Err: errors.New("refused")}

	_, err := f.router.Enqueue(context.Background(), EnqueueRequest{Ref: ref, TrackIDs: []string{"a"}})
	var connErr *voice.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestHandle_NavigationRestarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a", "b")
	require.NoError(t, f.store.EnqueueTracks(ctx, ref.ID, []string{"a", "b"}))

	res, err := f.router.Handle(ctx, Request{Ref: ref, Action: ActionNext})
	require.NoError(t, err)
	assert.Equal(t, queue.OutcomeMoved, res.Outcome)

	// At the end the cursor is clamped and playback is left alone.
	res, err = f.router.Handle(ctx, Request{Ref: ref, Action: ActionNext})
	require.NoError(t, err)
	assert.Equal(t, queue.OutcomeBoundary, res.Outcome)

	res, err = f.router.Handle(ctx, Request{Ref: ref, Action: ActionPrev})
	require.NoError(t, err)
	assert.Equal(t, queue.OutcomeMoved, res.Outcome)

	assert.Equal(t, []string{"supersede c1", "restart c1", "supersede c1", "restart c1"}, f.proc.Calls())

	q, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", q.Current().TrackID)
}

func TestHandle_SkipItemLeavesCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a", "b", "c")
	id, err := f.colls.Create(ctx, "u1", "mix")
	require.NoError(t, err)
	_, _, err = f.colls.Sync(ctx, id, []string{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, f.store.EnqueueCollection(ctx, ref.ID, id))
	require.NoError(t, f.store.EnqueueTracks(ctx, ref.ID, []string{"c"}))

	res, err := f.router.Handle(ctx, Request{Ref: ref, Action: ActionSkipItem})
	require.NoError(t, err)
	assert.Equal(t, queue.OutcomeMoved, res.Outcome)

	q, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", q.Current().TrackID)
}

func TestHandle_EmptyQueueIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, a := range []Action{ActionNext, ActionPrev, ActionSkipItem, ActionShuffle, ActionRestore} {
		res, err := f.router.Handle(ctx, Request{Ref: ref, Action: a})
		require.NoError(t, err, a)
		assert.Equal(t, queue.OutcomeEmpty, res.Outcome, a)
	}
	assert.Empty(t, f.proc.Calls())
}

func TestHandle_Stop(t *testing.T) {
	f := newFixture(t)

	_, err := f.router.Handle(context.Background(), Request{Ref: ref, Action: ActionStop})
	require.NoError(t, err)
	assert.Equal(t, []string{"stop c1"}, f.proc.Calls())
}

func TestHandle_Loop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a")
	require.NoError(t, f.store.EnqueueTracks(ctx, ref.ID, []string{"a"}))

	res, err := f.router.Handle(ctx, Request{Ref: ref, Action: ActionLoop})
	require.NoError(t, err)
	assert.Equal(t, queue.LoopTrack, res.LoopMode)

	res, err = f.router.Handle(ctx, Request{Ref: ref, Action: ActionLoop})
	require.NoError(t, err)
	assert.Equal(t, queue.LoopNone, res.LoopMode)
	assert.False(t, res.NoQueue)
}

func TestHandle_LoopAndVolumeWithoutQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.router.Handle(ctx, Request{Ref: ref, Action: ActionLoop})
	require.NoError(t, err)
	assert.True(t, res.NoQueue)

	res, err = f.router.Handle(ctx, Request{Ref: ref, Action: ActionVolume, Volume: 500})
	require.NoError(t, err)
	assert.True(t, res.NoQueue)
	assert.Zero(t, res.Volume)
	assert.Empty(t, f.proc.Calls())

	q, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestHandle_VolumeIsClampedAndApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a")
	require.NoError(t, f.store.EnqueueTracks(ctx, ref.ID, []string{"a"}))

	res, err := f.router.Handle(ctx, Request{Ref: ref, Action: ActionVolume, Volume: 500})
	require.NoError(t, err)
	assert.Equal(t, queue.MaxVolume, res.Volume)
	assert.Equal(t, []string{"volume c1"}, f.proc.Calls())

	q, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.MaxVolume, q.Volume)
}

func TestHandle_Pause(t *testing.T) {
	f := newFixture(t)

	res, err := f.router.Handle(context.Background(), Request{Ref: ref, Action: ActionPause})
	require.NoError(t, err)
	assert.True(t, res.Paused)
}

func TestHandle_ShuffleAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a", "b", "c", "d")
	require.NoError(t, f.store.EnqueueTracks(ctx, ref.ID, []string{"a", "b", "c", "d"}))

	res, err := f.router.Handle(ctx, Request{Ref: ref, Action: ActionShuffle})
	require.NoError(t, err)
	assert.Equal(t, queue.OutcomeReordered, res.Outcome)

	q, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", q.Current().TrackID, "current item keeps its place")

	res, err = f.router.Handle(ctx, Request{Ref: ref, Action: ActionRestore})
	require.NoError(t, err)
	assert.Equal(t, queue.OutcomeReordered, res.Outcome)

	q, err = f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	var order []string
	for _, it := range q.Items {
		order = append(order, it.TrackID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
	assert.Empty(t, f.proc.Calls(), "the playing item did not change")
}

func TestHandle_RestoreRestartsWhenCurrentChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a", "b", "c")
	require.NoError(t, f.store.EnqueueTracks(ctx, ref.ID, []string{"a", "b", "c"}))
	_, err := f.store.Advance(ctx, ref.ID)
	require.NoError(t, err)

	res, err := f.router.Handle(ctx, Request{Ref: ref, Action: ActionRestore})
	require.NoError(t, err)
	assert.Equal(t, queue.OutcomeMoved, res.Outcome)
	assert.Equal(t, []string{"supersede c1", "restart c1"}, f.proc.Calls())

	q, err := f.store.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", q.Current().TrackID)
}

func TestHandle_UnknownAction(t *testing.T) {
	f := newFixture(t)

	_, err := f.router.Handle(context.Background(), Request{Ref: ref, Action: "queue"})
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestShuffleAndRestoreCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a", "b", "c")
	id, err := f.colls.FindOrCreate(ctx, "u1", "mix")
	require.NoError(t, err)
	_, _, err = f.colls.Sync(ctx, id, []string{"a", "b", "c"})
	require.NoError(t, err)

	require.NoError(t, f.router.ShuffleCollection(ctx, "u1", "mix"))
	ids, err := f.colls.TrackIDs(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)

	require.NoError(t, f.router.RestoreCollection(ctx, "u1", "mix"))
	ids, err = f.colls.TrackIDs(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestEnqueue_ShuffledPlaylistIsRestoredBeforeMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.known(t, "a", "b", "c", "d")

	res, err := f.router.Enqueue(ctx, EnqueueRequest{
		Ref: ref, Owner: "u1", Playlist: "mix", TrackIDs: []string{"a", "b", "c"},
	})
	require.NoError(t, err)
	require.NoError(t, f.colls.Shuffle(ctx, res.CollectionID, func(n int, swap func(i, j int)) {
		for i := range n / 2 {
			swap(i, n-1-i)
		}
	}))

	_, err = f.router.Enqueue(ctx, EnqueueRequest{
		Ref: ref, Owner: "u1", Playlist: "mix", TrackIDs: []string{"a", "b", "c", "d"},
	})
	require.NoError(t, err)

	ids, err := f.colls.TrackIDs(ctx, res.CollectionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	shuffled, err := f.colls.IsShuffled(ctx, res.CollectionID)
	require.NoError(t, err)
	assert.False(t, shuffled)
}

func TestCollectionsListAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.colls.Create(ctx, "u1", "zen")
	require.NoError(t, err)
	_, err = f.colls.Create(ctx, "u1", "Mix")
	require.NoError(t, err)
	_, err = f.colls.Create(ctx, "u2", "other")
	require.NoError(t, err)

	list, err := f.router.Collections(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Mix", list[0].Name)
	assert.Equal(t, "zen", list[1].Name)

	require.NoError(t, f.router.DeleteCollection(ctx, "u1", "zen"))
	list, err = f.router.Collections(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	err = f.router.DeleteCollection(ctx, "u1", "zen")
	assert.ErrorIs(t, err, collections.ErrNotFound)
	assert.ErrorIs(t, f.router.ShuffleCollection(ctx, "u1", "ghost"), collections.ErrNotFound)
	assert.ErrorIs(t, f.router.RestoreCollection(ctx, "u1", "ghost"), collections.ErrNotFound)
}
