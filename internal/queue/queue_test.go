package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/shortify/internal/logger"
	"github.com/forPelevin/shortify/internal/types"
)

func TestDispatcher_PublishesRecord(t *testing.T) {
	p := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var rec types.JobRecord
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		if rec.ID != "job-1" || rec.Status != types.JobQueued {
			return errors.New("unexpected record")
		}
		return nil
	})
	d := newDispatcher(p, "shortify.jobs", nil)

	require.NoError(t, d.Dispatch(context.Background(), types.JobRecord{ID: "job-1", Status: types.JobQueued}))
	require.NoError(t, d.Close())
}

func TestDispatcher_SendFailure(t *testing.T) {
	p := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	d := newDispatcher(p, "shortify.jobs", nil)

	err := d.Dispatch(context.Background(), types.JobRecord{ID: "job-1"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, d.Close())
}

type fakeExecutor struct {
	got []types.JobRecord
	err error
	// failures makes the first calls fail with err; zero fails every call.
	failures int
	onExec   func(calls int)
}

func (f *fakeExecutor) Execute(_ context.Context, rec types.JobRecord) (types.JobRecord, error) {
	f.got = append(f.got, rec)
	if f.onExec != nil {
		f.onExec(len(f.got))
	}
	if f.err != nil && (f.failures == 0 || len(f.got) <= f.failures) {
		return types.JobRecord{}, f.err
	}
	rec.Status = types.JobSucceeded
	return rec, nil
}

func TestHandler_HandleMessage(t *testing.T) {
	ctx := context.Background()
	valid, err := json.Marshal(types.JobRecord{ID: "job-1", Status: types.JobQueued})
	require.NoError(t, err)

	cases := []struct {
		name     string
		msg      []byte
		execErr  error
		wantMark bool
		wantErr  bool
		wantRuns int
	}{
		{name: "valid", msg: valid, wantMark: true, wantRuns: 1},
		{name: "malformed json is skipped", msg: []byte("{"), wantMark: true},
		{name: "missing id is skipped", msg: []byte(`{"status":"queued"}`), wantMark: true},
		{name: "executor error is returned", msg: valid, execErr: errors.New("redis down"), wantErr: true, wantRuns: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{err: tc.execErr}
			mark, err := NewHandler(exec, nil).HandleMessage(ctx, tc.msg)
			require.Equal(t, tc.wantMark, mark)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Len(t, exec.got, tc.wantRuns)
		})
	}
}

type fakeSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
	onMark func(n int)
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "member-1" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg)
	if s.onMark != nil {
		s.onMark(len(s.marked))
	}
}

type fakeClaim struct {
	msgs <-chan *sarama.ConsumerMessage
}

func (c fakeClaim) Topic() string                            { return "shortify.jobs" }
func (c fakeClaim) Partition() int32                         { return 0 }
func (c fakeClaim) InitialOffset() int64                     { return sarama.OffsetOldest }
func (c fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

// jobPartition yields one message per job id from a mock partition consumer.
func jobPartition(t *testing.T, ids ...string) fakeClaim {
	t.Helper()
	consumer := mocks.NewConsumer(t, mocks.NewTestConfig())
	t.Cleanup(func() { require.NoError(t, consumer.Close()) })

	pc := consumer.ExpectConsumePartition("shortify.jobs", 0, sarama.OffsetOldest)
	for _, id := range ids {
		val, err := json.Marshal(types.JobRecord{ID: id, Status: types.JobQueued})
		require.NoError(t, err)
		pc.YieldMessage(&sarama.ConsumerMessage{Key: []byte(id), Value: val})
	}
	part, err := consumer.ConsumePartition("shortify.jobs", 0, sarama.OffsetOldest)
	require.NoError(t, err)
	return fakeClaim{msgs: part.Messages()}
}

func testGroupHandler(exec Executor) *groupHandler {
	g := newGroupHandler(NewHandler(exec, nil), logger.Nop())
	g.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return g
}

func TestGroupHandler_RetriesFailedMessageBeforeMarking(t *testing.T) {
	claim := jobPartition(t, "job-1", "job-2")
	exec := &fakeExecutor{err: errors.New("redis down"), failures: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session := &fakeSession{ctx: ctx, onMark: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	require.NoError(t, testGroupHandler(exec).ConsumeClaim(session, claim))

	require.Len(t, exec.got, 3)
	require.Equal(t, []string{"job-1", "job-1", "job-2"}, []string{exec.got[0].ID, exec.got[1].ID, exec.got[2].ID})
	require.Len(t, session.marked, 2)
	require.Equal(t, "job-1", string(session.marked[0].Key))
	require.Equal(t, "job-2", string(session.marked[1].Key))
}

func TestGroupHandler_DoesNotSkipPastUnhandledMessage(t *testing.T) {
	claim := jobPartition(t, "job-1", "job-2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := &fakeExecutor{err: errors.New("redis down"), onExec: func(calls int) {
		if calls == 3 {
			cancel()
		}
	}}
	session := &fakeSession{ctx: ctx}

	require.NoError(t, testGroupHandler(exec).ConsumeClaim(session, claim))

	require.Empty(t, session.marked)
	for _, rec := range exec.got {
		require.Equal(t, "job-1", rec.ID)
	}
}
