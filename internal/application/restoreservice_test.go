package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/archiverestore/internal/application"
	"github.com/ericfisherdev/archiverestore/internal/domain/model"
)

// recordingConfirmer answers with a fixed decision and records each request.
type recordingConfirmer struct {
	answer   bool
	err      error
	requests []application.ConfirmRequest
}

func (c *recordingConfirmer) Confirm(_ context.Context, req application.ConfirmRequest) (bool, error) {
	c.requests = append(c.requests, req)
	return c.answer, c.err
}

type resultCall struct {
	result model.RestoreResult
	err    error
}

type restoreFixture struct {
	svc      *application.RestoreService
	lister   *mockLister
	writer   *mockWriter
	progress []model.Progress
	results  []resultCall
}

func newRestoreFixture(cred model.Credential, lister *mockLister, writer *mockWriter) *restoreFixture {
	f := &restoreFixture{lister: lister, writer: writer}
	f.svc = application.NewRestoreService(
		staticCredentials{cred: cred},
		application.NewDiscoveryService(lister, 50, application.NoDelay{}),
		application.NewBatchMutator(writer, application.NoDelay{}),
		application.RestoreObservers{
			OnProgress: func(p model.Progress) { f.progress = append(f.progress, p) },
			OnResult: func(r model.RestoreResult, err error) {
				f.results = append(f.results, resultCall{result: r, err: err})
			},
		},
	)
	return f
}

var readyCred = model.Credential{Value: testBearer}

func TestRestoreAll_NotReadyMakesNoCalls(t *testing.T) {
	f := newRestoreFixture(model.Credential{}, newMockLister(makeItems("a", 3)), &mockWriter{})
	confirm := &recordingConfirmer{answer: true}

	result, err := f.svc.RestoreAll(context.Background(), confirm)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNotReady, result.Outcome)
	assert.Equal(t, model.OperationRestoreAll, result.Operation)
	assert.NotEmpty(t, result.JobID)
	assert.Empty(t, f.lister.offsets)
	assert.Empty(t, f.writer.attempted())
	assert.Empty(t, confirm.requests)
	assert.False(t, f.svc.Ready())
}

func TestRestoreList_NotReadyMakesNoCalls(t *testing.T) {
	f := newRestoreFixture(model.Credential{}, newMockLister(), &mockWriter{})

	result, err := f.svc.RestoreList(context.Background(), idOne, &recordingConfirmer{answer: true})

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNotReady, result.Outcome)
	assert.Empty(t, f.writer.attempted())
}

func TestRestoreAll_EmptyArchive(t *testing.T) {
	f := newRestoreFixture(readyCred, newMockLister(), &mockWriter{})
	confirm := &recordingConfirmer{answer: true}

	result, err := f.svc.RestoreAll(context.Background(), confirm)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNothingToRestore, result.Outcome)
	assert.Zero(t, result.Success)
	assert.Zero(t, result.Total)
	assert.Empty(t, f.writer.attempted())
	assert.Equal(t, []int{0}, f.lister.offsets)

	require.Len(t, confirm.requests, 1)
	assert.Equal(t, -1, confirm.requests[0].Count)
	assert.Equal(t, model.OperationRestoreAll, confirm.requests[0].Operation)
	assert.Equal(t, result.JobID, confirm.requests[0].JobID)
}

func TestRestoreAll_Declined(t *testing.T) {
	f := newRestoreFixture(readyCred, newMockLister(makeItems("a", 3)), &mockWriter{})

	result, err := f.svc.RestoreAll(context.Background(), &recordingConfirmer{answer: false})

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDeclined, result.Outcome)
	assert.Empty(t, f.lister.offsets)
	assert.Empty(t, f.writer.attempted())
}

func TestRestoreAll_NilConfirmerDeclines(t *testing.T) {
	f := newRestoreFixture(readyCred, newMockLister(makeItems("a", 3)), &mockWriter{})

	result, err := f.svc.RestoreAll(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDeclined, result.Outcome)
	assert.Empty(t, f.lister.offsets)
}

func TestRestoreAll_ConfirmerError(t *testing.T) {
	f := newRestoreFixture(readyCred, newMockLister(makeItems("a", 3)), &mockWriter{})
	promptErr := errors.New("prompt closed")

	_, err := f.svc.RestoreAll(context.Background(), &recordingConfirmer{err: promptErr})

	require.Error(t, err)
	assert.ErrorIs(t, err, promptErr)
	assert.Empty(t, f.lister.offsets)
	require.Len(t, f.results, 1)
	assert.ErrorIs(t, f.results[0].err, promptErr)
}

func TestRestoreAll_RestoresDiscoveredItemsInOrder(t *testing.T) {
	items := []model.ArchivedItem{{ID: "A"}, {ID: "B"}, {ID: ""}, {ID: "C"}}
	writer := &mockWriter{failIDs: map[string]bool{"B": true}}
	f := newRestoreFixture(readyCred, newMockLister(items), writer)

	result, err := f.svc.RestoreAll(context.Background(), &recordingConfirmer{answer: true})

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCompleted, result.Outcome)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, []string{"A", "B", "C"}, writer.attempted())

	require.Len(t, f.progress, 4)
	assert.Equal(t, model.PhaseDiscovering, f.progress[0].Phase)
	assert.Equal(t, 4, f.progress[0].Found)
	for i, p := range f.progress[1:] {
		assert.Equal(t, model.PhaseRestoring, p.Phase)
		assert.Equal(t, i+1, p.Completed)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, result.JobID, p.JobID)
	}

	report, ok := f.svc.LastRun()
	require.True(t, ok)
	assert.Equal(t, result, report.Result)
	assert.NoError(t, report.Err)
	assert.False(t, report.FinishedAt.IsZero())

	_, running := f.svc.Current()
	assert.False(t, running)
}

func TestRestoreAll_DiscoveryFailureMutatesNothing(t *testing.T) {
	lister := newMockLister(makeItems("a", 50), makeItems("b", 50))
	lister.failAt = 1
	lister.err = errors.New("HTTP 500")
	f := newRestoreFixture(readyCred, lister, &mockWriter{})

	result, err := f.svc.RestoreAll(context.Background(), &recordingConfirmer{answer: true})

	require.Error(t, err)
	assert.ErrorIs(t, err, application.ErrDiscoveryFailed)
	assert.Empty(t, f.writer.attempted())
	assert.Empty(t, result.Outcome)

	require.Len(t, f.results, 1)
	assert.ErrorIs(t, f.results[0].err, application.ErrDiscoveryFailed)

	report, ok := f.svc.LastRun()
	require.True(t, ok)
	assert.ErrorIs(t, report.Err, application.ErrDiscoveryFailed)
}

func TestRestoreList_NoValidIdentifiers(t *testing.T) {
	f := newRestoreFixture(readyCred, newMockLister(), &mockWriter{})
	confirm := &recordingConfirmer{answer: true}

	result, err := f.svc.RestoreList(context.Background(), "abc, def", confirm)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNoValidIdentifiers, result.Outcome)
	assert.Empty(t, confirm.requests)
	assert.Empty(t, f.writer.attempted())
}

func TestRestoreList_ConfirmsWithCountAndRestores(t *testing.T) {
	writer := &mockWriter{}
	f := newRestoreFixture(readyCred, newMockLister(), writer)
	confirm := &recordingConfirmer{answer: true}

	result, err := f.svc.RestoreList(context.Background(), `["`+idTwo+`","`+idOne+`","`+idTwo+`"]`, confirm)

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCompleted, result.Outcome)
	assert.Equal(t, model.OperationRestoreList, result.Operation)
	assert.Equal(t, 3, result.Success)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, []string{idTwo, idOne, idTwo}, writer.attempted())
	assert.Empty(t, f.lister.offsets)

	require.Len(t, confirm.requests, 1)
	assert.Equal(t, 3, confirm.requests[0].Count)
	assert.Equal(t, "Found 3 IDs. Restore them?", confirm.requests[0].Message)
}

func TestRestoreList_Declined(t *testing.T) {
	f := newRestoreFixture(readyCred, newMockLister(), &mockWriter{})

	result, err := f.svc.RestoreList(context.Background(), idOne, &recordingConfirmer{answer: false})

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDeclined, result.Outcome)
	assert.Empty(t, f.writer.attempted())
}

func TestRestoreService_SingleJobSlot(t *testing.T) {
	f := newRestoreFixture(readyCred, newMockLister(), &mockWriter{})

	res, err := f.svc.Reserve()
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID())

	_, err = f.svc.RestoreAll(context.Background(), &recordingConfirmer{answer: true})
	assert.ErrorIs(t, err, application.ErrJobRunning)
	_, err = f.svc.Reserve()
	assert.ErrorIs(t, err, application.ErrJobRunning)

	result, err := res.RestoreList(context.Background(), idOne, &recordingConfirmer{answer: true})
	require.NoError(t, err)
	assert.Equal(t, res.ID(), result.JobID)

	_, err = res.RestoreList(context.Background(), idOne, &recordingConfirmer{answer: true})
	assert.ErrorIs(t, err, application.ErrReservationUsed)

	// The slot is free again once the run finished.
	next, err := f.svc.Reserve()
	require.NoError(t, err)
	next.Release()
	next.Release()

	_, err = next.RestoreAll(context.Background(), nil)
	assert.ErrorIs(t, err, application.ErrReservationUsed)

	again, err := f.svc.Reserve()
	require.NoError(t, err)
	again.Release()
}

func TestRestoreService_CancelAbortsRemainingItems(t *testing.T) {
	writer := &mockWriter{}
	f := newRestoreFixture(readyCred, newMockLister(), writer)

	var snapshot model.BatchJob
	var sawJob bool
	writer.onCall = func(id string) {
		if id == idOne {
			snapshot, sawJob = f.svc.Current()
			_, ok := f.svc.Cancel()
			assert.True(t, ok)
		}
	}

	result, err := f.svc.RestoreList(context.Background(), idOne+"\n"+idTwo+"\n"+idThree, &recordingConfirmer{answer: true})

	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAborted, result.Outcome)
	assert.Equal(t, []string{idOne}, writer.attempted())
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 3, result.Total)

	require.True(t, sawJob)
	assert.Equal(t, result.JobID, snapshot.ID)
	assert.Equal(t, model.JobStatusRunning, snapshot.Status)
	assert.Equal(t, 3, snapshot.Total)

	_, ok := f.svc.Cancel()
	assert.False(t, ok)
}

func TestRestoreService_CancelBeforeRunStarts(t *testing.T) {
	tests := []struct {
		name string
		run  func(*application.Reservation, application.Confirmer) (model.RestoreResult, error)
	}{
		{
			name: "restore list",
			run: func(res *application.Reservation, c application.Confirmer) (model.RestoreResult, error) {
				return res.RestoreList(context.Background(), idOne, c)
			},
		},
		{
			name: "restore all",
			run: func(res *application.Reservation, c application.Confirmer) (model.RestoreResult, error) {
				return res.RestoreAll(context.Background(), c)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writer := &mockWriter{}
			f := newRestoreFixture(readyCred, newMockLister(makeItems("a", 2)), writer)

			res, err := f.svc.Reserve()
			require.NoError(t, err)

			_, running := f.svc.Current()
			assert.False(t, running)

			jobID, ok := f.svc.Cancel()
			require.True(t, ok)
			assert.Equal(t, res.ID(), jobID)

			result, err := tt.run(res, &recordingConfirmer{answer: true})

			require.NoError(t, err)
			assert.Equal(t, model.OutcomeAborted, result.Outcome)
			assert.Equal(t, res.ID(), result.JobID)
			assert.Empty(t, f.lister.offsets)
			assert.Empty(t, writer.attempted())

			_, ok = f.svc.Cancel()
			assert.False(t, ok)
		})
	}
}

func TestRestoreService_ReleaseClearsReservation(t *testing.T) {
	f := newRestoreFixture(readyCred, newMockLister(), &mockWriter{})

	res, err := f.svc.Reserve()
	require.NoError(t, err)
	res.Release()

	_, ok := f.svc.Cancel()
	assert.False(t, ok)
}

func TestRestoreService_ResultReportedOncePerRun(t *testing.T) {
	f := newRestoreFixture(readyCred, newMockLister(makeItems("a", 2)), &mockWriter{})

	_, err := f.svc.RestoreAll(context.Background(), &recordingConfirmer{answer: true})
	require.NoError(t, err)
	_, err = f.svc.RestoreList(context.Background(), "nothing here", nil)
	require.NoError(t, err)

	require.Len(t, f.results, 2)
	assert.Equal(t, model.OutcomeCompleted, f.results[0].result.Outcome)
	assert.Equal(t, model.OutcomeNoValidIdentifiers, f.results[1].result.Outcome)
	assert.NotEqual(t, f.results[0].result.JobID, f.results[1].result.JobID)
}
