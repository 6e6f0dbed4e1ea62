package call

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"DoorbellCall/config"
	"DoorbellCall/model"
	"DoorbellCall/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var initLoggerOnce sync.Once

func initTestLogger() {
	initLoggerOnce.Do(func() {
		logger.ReplaceGlobal(zap.NewNop())
	})
}

type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	getOrCreateFn func(ref model.CallRef, req CreateRequest) error
	updateFn      func(ref model.CallRef, members []model.Member) error
	queryFn       func(ref model.CallRef) ([]model.MemberRecord, error)
	joinFn        func(ref model.CallRef, attempt int) error
	leaveFn       func(ref model.CallRef) error

	joins atomic.Int32
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) GetOrCreate(ctx context.Context, ref model.CallRef, req CreateRequest) error {
	f.record("get_or_create")
	if f.getOrCreateFn == nil {
		return nil
	}
	return f.getOrCreateFn(ref, req)
}

func (f *fakeBackend) UpdateMembers(ctx context.Context, ref model.CallRef, members []model.Member) error {
	f.record("update_members")
	if f.updateFn == nil {
		return nil
	}
	return f.updateFn(ref, members)
}

func (f *fakeBackend) QueryMembers(ctx context.Context, ref model.CallRef) ([]model.MemberRecord, error) {
	f.record("query_members")
	if f.queryFn == nil {
		return nil, nil
	}
	return f.queryFn(ref)
}

func (f *fakeBackend) Join(ctx context.Context, ref model.CallRef) error {
	f.record("join")
	n := int(f.joins.Add(1))
	if f.joinFn == nil {
		return nil
	}
	return f.joinFn(ref, n)
}

func (f *fakeBackend) Leave(ctx context.Context, ref model.CallRef) error {
	f.record("leave")
	if f.leaveFn == nil {
		return nil
	}
	return f.leaveFn(ref)
}

type fakeDoorbells struct {
	getFn func(code string) (*model.Doorbell, error)
}

func (f *fakeDoorbells) GetDoorbell(ctx context.Context, code string) (*model.Doorbell, error) {
	return f.getFn(code)
}

const localID = "anon-3f2a9c1e7b44"

type ctrlHarness struct {
	ctrl      *Controller
	backend   *fakeBackend
	doorbells *fakeDoorbells
	authed    atomic.Bool
}

func newCtrlHarness(t *testing.T) *ctrlHarness {
	t.Helper()
	initTestLogger()
	h := &ctrlHarness{
		backend: &fakeBackend{},
		doorbells: &fakeDoorbells{getFn: func(code string) (*model.Doorbell, error) {
			return &model.Doorbell{Code: code, MemberStreamIDs: []string{"resident-a", "resident-b"}}, nil
		}},
	}
	h.authed.Store(true)
	next := 1234567
	h.ctrl = NewController(h.backend, h.doorbells, func() Identity {
		return Identity{UserID: localID, UserName: "Visitor", Authenticated: h.authed.Load()}
	}, config.DefaultCallConfig(), WithSuffix(func() int {
		next++
		return next
	}))
	h.ctrl.SetRingCode("FRONT")
	return h
}

func TestComposeMembers(t *testing.T) {
	t.Run("dedupe_first_wins", func(t *testing.T) {
		got := ComposeMembers("A", []string{"B", "A", "C", "B"})
		assert.Equal(t, []model.Member{
			{UserID: "A", Role: model.RoleAdmin},
			{UserID: "B"},
			{UserID: "C"},
		}, got)
	})

	t.Run("local_only", func(t *testing.T) {
		assert.Equal(t, []model.Member{{UserID: "A", Role: model.RoleAdmin}}, ComposeMembers("A", nil))
	})

	t.Run("skips_blank", func(t *testing.T) {
		got := ComposeMembers("A", []string{"", " ", "B"})
		assert.Len(t, got, 2)
	})
}

func TestParseRingCode(t *testing.T) {
	cases := map[string]string{
		"https://door.example.com/?ring=FRONT": "FRONT",
		"/entry?ring=BACK&x=1":                 "BACK",
		"?ring=SIDE":                           "SIDE",
		"ring=GATE":                            "GATE",
		"https://door.example.com/":            "",
		"":                                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseRingCode(in), in)
	}
}

func TestJoin(t *testing.T) {
	t.Run("success_direct", func(t *testing.T) {
		h := newCtrlHarness(t)
		var created CreateRequest
		h.backend.getOrCreateFn = func(ref model.CallRef, req CreateRequest) error {
			created = req
			assert.Equal(t, "FRONT1234568", ref.ID)
			return nil
		}
		h.backend.queryFn = func(model.CallRef) ([]model.MemberRecord, error) {
			return []model.MemberRecord{{User: &model.MemberUser{ID: localID}}, {UserID: "resident-a"}}, nil
		}

		res, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Skipped)
		assert.Equal(t, "FRONT1234568", res.CallID)
		assert.Equal(t, ResolutionResolved, res.Resolution)
		assert.Equal(t, UpdateApplied, res.MembershipUpdate)
		assert.Equal(t, VerificationListed, res.Verification)
		assert.Equal(t, JoinPathDirect, res.JoinPath)
		assert.Equal(t, 1, res.Attempts)
		assert.Empty(t, res.Warnings)

		assert.True(t, created.Ring)
		assert.Equal(t, localID, created.CreatedBy)
		assert.Equal(t, "Visitor", created.Custom["creatorName"])
		assert.Equal(t, []model.Member{
			{UserID: localID, Role: model.RoleAdmin},
			{UserID: "resident-a"},
			{UserID: "resident-b"},
		}, created.Members)

		assert.Equal(t, []string{"get_or_create", "update_members", "query_members", "join"}, h.backend.Calls())
		assert.Equal(t, model.CallingStateJoined, h.ctrl.Handle().State())
	})

	t.Run("idle_guard", func(t *testing.T) {
		h := newCtrlHarness(t)
		_, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)

		res, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.EqualValues(t, 1, h.backend.joins.Load())
	})

	t.Run("concurrent_triggers_single_sequence", func(t *testing.T) {
		h := newCtrlHarness(t)
		release := make(chan struct{})
		var creates atomic.Int32
		h.backend.getOrCreateFn = func(model.CallRef, CreateRequest) error {
			creates.Add(1)
			<-release
			return nil
		}
		_, err := h.ctrl.EnsureHandle()
		require.NoError(t, err)

		var wg sync.WaitGroup
		var skipped atomic.Int32
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := h.ctrl.Join(context.Background())
				if err == nil && res.Skipped {
					skipped.Add(1)
				}
			}()
		}
		// 4 个空操作先返回后再放行第一个
		for skipped.Load() < 4 {
			runtime.Gosched()
		}
		close(release)
		wg.Wait()

		assert.EqualValues(t, 1, creates.Load())
		assert.EqualValues(t, 1, h.backend.joins.Load())
	})

	t.Run("connectivity_failure", func(t *testing.T) {
		h := newCtrlHarness(t)
		h.backend.getOrCreateFn = func(model.CallRef, CreateRequest) error { return errors.New("dial tcp: refused") }

		res, err := h.ctrl.Join(context.Background())
		require.ErrorIs(t, err, ErrConnectivity)
		assert.Equal(t, []string{"get_or_create"}, h.backend.Calls())
		assert.Zero(t, h.backend.joins.Load())
		assert.Equal(t, model.CallingStateIdle, h.ctrl.Handle().State())
		assert.Equal(t, VerificationUnchecked, res.Verification)
	})

	t.Run("join_fallback_second_attempt", func(t *testing.T) {
		h := newCtrlHarness(t)
		h.backend.queryFn = func(model.CallRef) ([]model.MemberRecord, error) {
			return []model.MemberRecord{{UserID: "resident-a"}}, nil
		}
		h.backend.joinFn = func(_ model.CallRef, attempt int) error {
			if attempt == 1 {
				return errors.New("not allowed")
			}
			return nil
		}

		res, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, VerificationNotListed, res.Verification)
		assert.Equal(t, JoinPathGuest, res.JoinPath)
		assert.Equal(t, model.CallingStateJoined, h.ctrl.Handle().State())
	})

	t.Run("join_fails_twice", func(t *testing.T) {
		h := newCtrlHarness(t)
		h.backend.joinFn = func(model.CallRef, int) error { return errors.New("nope") }

		res, err := h.ctrl.Join(context.Background())
		require.ErrorIs(t, err, ErrJoinFailed)
		assert.Equal(t, 2, res.Attempts)
		assert.EqualValues(t, 2, h.backend.joins.Load())
		assert.Equal(t, model.CallingStateIdle, h.ctrl.Handle().State())

		// 回到空闲后可以再次触发
		h.backend.joinFn = nil
		res, err = h.ctrl.Join(context.Background())
		require.NoError(t, err)
		assert.False(t, res.Skipped)
	})

	t.Run("attempts_capped_at_two", func(t *testing.T) {
		h := newCtrlHarness(t)
		cfg := config.DefaultCallConfig()
		cfg.JoinAttempts = 5
		ctrl := NewController(h.backend, h.doorbells, func() Identity {
			return Identity{UserID: localID, Authenticated: true}
		}, cfg)
		h.backend.joinFn = func(model.CallRef, int) error { return errors.New("boom") }

		res, err := ctrl.Join(context.Background())
		require.ErrorIs(t, err, ErrJoinFailed)
		assert.Equal(t, 2, res.Attempts)
		assert.EqualValues(t, 2, h.backend.joins.Load())
	})

	t.Run("resolution_failure_degrades", func(t *testing.T) {
		h := newCtrlHarness(t)
		h.doorbells.getFn = func(string) (*model.Doorbell, error) { return nil, errors.New("404") }

		res, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ResolutionFailed, res.Resolution)
		require.Len(t, res.Warnings, 1)
		assert.ErrorIs(t, res.Warnings[0], ErrMembershipResolutionFailed)
		assert.Equal(t, []model.Member{{UserID: localID, Role: model.RoleAdmin}}, res.Members)
		assert.Equal(t, UpdateNotNeeded, res.MembershipUpdate)
		assert.NotContains(t, h.backend.Calls(), "update_members")
	})

	t.Run("update_members_failure_ignored", func(t *testing.T) {
		h := newCtrlHarness(t)
		h.backend.updateFn = func(model.CallRef, []model.Member) error { return errors.New("forbidden") }

		res, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)
		assert.Equal(t, UpdateFailed, res.MembershipUpdate)
		require.Len(t, res.Warnings, 1)
		assert.ErrorIs(t, res.Warnings[0], ErrMembershipUpdateFailed)
		assert.EqualValues(t, 1, h.backend.joins.Load())
	})

	t.Run("query_failure_is_diagnostic", func(t *testing.T) {
		h := newCtrlHarness(t)
		h.backend.queryFn = func(model.CallRef) ([]model.MemberRecord, error) { return nil, errors.New("timeout") }

		res, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)
		assert.Equal(t, VerificationQueryFailed, res.Verification)
		assert.Equal(t, JoinPathGuest, res.JoinPath)
	})

	t.Run("no_session", func(t *testing.T) {
		h := newCtrlHarness(t)
		h.authed.Store(false)
		_, err := h.ctrl.Join(context.Background())
		require.ErrorIs(t, err, ErrNoActiveSession)
		assert.Empty(t, h.backend.Calls())
	})
}

func TestEnd(t *testing.T) {
	t.Run("leave_and_rearm", func(t *testing.T) {
		h := newCtrlHarness(t)
		_, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)
		first := h.ctrl.Handle()

		out := h.ctrl.End(context.Background())
		assert.True(t, out.Left)
		assert.Equal(t, model.CallingStateLeft, first.State())
		assert.Contains(t, h.backend.Calls(), "leave")

		next := h.ctrl.Handle()
		require.NotNil(t, next)
		assert.Equal(t, out.NextCallID, next.Ref().ID)
		assert.NotEqual(t, first.Ref().ID, next.Ref().ID)
		assert.Equal(t, model.CallingStateIdle, next.State())
	})

	t.Run("leave_error_tolerated", func(t *testing.T) {
		h := newCtrlHarness(t)
		_, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)
		h.backend.leaveFn = func(model.CallRef) error { return errors.New("gone") }

		out := h.ctrl.End(context.Background())
		assert.True(t, out.Left)
		assert.NotEmpty(t, out.NextCallID)
	})

	t.Run("logged_out_goes_to_entry", func(t *testing.T) {
		h := newCtrlHarness(t)
		_, err := h.ctrl.Join(context.Background())
		require.NoError(t, err)
		h.authed.Store(false)

		out := h.ctrl.End(context.Background())
		assert.True(t, out.Left)
		assert.Empty(t, out.NextCallID)
		assert.Nil(t, h.ctrl.Handle())
	})

	t.Run("end_during_create_aborts_join", func(t *testing.T) {
		h := newCtrlHarness(t)
		entered := make(chan struct{})
		release := make(chan struct{})
		h.backend.getOrCreateFn = func(model.CallRef, CreateRequest) error {
			close(entered)
			<-release
			return nil
		}

		errCh := make(chan error, 1)
		go func() {
			_, err := h.ctrl.Join(context.Background())
			errCh <- err
		}()
		<-entered
		first := h.ctrl.Handle()
		out := h.ctrl.End(context.Background())
		assert.True(t, out.Left)
		close(release)

		require.ErrorIs(t, <-errCh, ErrCallEnded)
		assert.Equal(t, []string{"get_or_create", "leave"}, h.backend.Calls())
		assert.Equal(t, model.CallingStateLeft, first.State())
		assert.Equal(t, model.CallingStateIdle, h.ctrl.Handle().State())
	})

	t.Run("end_during_join_leaves_again", func(t *testing.T) {
		h := newCtrlHarness(t)
		entered := make(chan struct{})
		release := make(chan struct{})
		h.backend.joinFn = func(model.CallRef, int) error {
			close(entered)
			<-release
			return nil
		}

		errCh := make(chan error, 1)
		go func() {
			_, err := h.ctrl.Join(context.Background())
			errCh <- err
		}()
		<-entered
		h.ctrl.End(context.Background())
		close(release)

		require.ErrorIs(t, <-errCh, ErrCallEnded)
		assert.Equal(t, []string{"get_or_create", "update_members", "query_members", "join", "leave", "leave"}, h.backend.Calls())
	})

	t.Run("no_handle_no_leave", func(t *testing.T) {
		h := newCtrlHarness(t)
		h.authed.Store(false)
		out := h.ctrl.End(context.Background())
		assert.False(t, out.Left)
		assert.Empty(t, h.backend.Calls())
	})
}

func TestEnsureHandle(t *testing.T) {
	h := newCtrlHarness(t)
	a, err := h.ctrl.EnsureHandle()
	require.NoError(t, err)
	b, err := h.ctrl.EnsureHandle()
	require.NoError(t, err)
	assert.Same(t, a, b)

	h.authed.Store(false)
	_, err = h.ctrl.EnsureHandle()
	require.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSetRingCode(t *testing.T) {
	h := newCtrlHarness(t)
	first, err := h.ctrl.EnsureHandle()
	require.NoError(t, err)
	assert.Contains(t, first.Ref().ID, "FRONT")

	h.ctrl.SetRingCode("FRONT")
	assert.Same(t, first, h.ctrl.Handle())

	h.ctrl.SetRingCode("BACK")
	assert.Nil(t, h.ctrl.Handle())
	next, err := h.ctrl.EnsureHandle()
	require.NoError(t, err)
	assert.Contains(t, next.Ref().ID, "BACK")

	// 进行中的句柄不受影响
	_, err = h.ctrl.Join(context.Background())
	require.NoError(t, err)
	h.ctrl.SetRingCode("SIDE")
	assert.Same(t, next, h.ctrl.Handle())
}
