package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacetech/docflow/internal/docflow/schema"
)

// setupTestDB creates an initialized store whose clock advances one second per read.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Initialize(context.Background(), testDBPath(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mu sync.Mutex
	clock := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	})

	return db
}

func newRecord(formType string) *schema.Record {
	return &schema.Record{
		FormType: formType,
		Fields: map[string]string{
			"assessmentDate": "2024-05-01",
			"jobFileNumber":  "A1-23",
		},
	}
}

func TestSave_AssignsIDAndPending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	rec := newRecord("flra")
	id, err := db.Save(ctx, rec)
	require.NoError(t, err)

	assert.Positive(t, id)
	assert.Equal(t, id, rec.LocalID)
	assert.Equal(t, schema.StatusPending, rec.Status)
	assert.False(t, rec.LastModified.IsZero())

	second, err := db.Save(ctx, newRecord("manlift"))
	require.NoError(t, err)
	assert.NotEqual(t, id, second)
}

func TestSave_ForcesPendingAndClearsOutcome(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	rec := newRecord("flra")
	id, err := db.Save(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, db.UpdateStatus(ctx, id, schema.StatusSynced, Patch{
		RemoteID:      "R-1",
		DocumentURL:   "https://example.test/doc.pdf",
		SignatureURLs: schema.SignatureURLs{"supervisor": "https://example.test/s.png"},
	}))

	stored, err := db.Get(ctx, id)
	require.NoError(t, err)
	stored.Fields["jobFileNumber"] = "B9"
	stored.Status = schema.StatusSynced

	_, err = db.Save(ctx, stored)
	require.NoError(t, err)

	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusPending, got.Status)
	assert.Equal(t, "B9", got.Field("jobFileNumber"))
	assert.Empty(t, got.RemoteID)
	assert.Empty(t, got.DocumentURL)
	assert.Nil(t, got.SignatureURLs)
}

func TestSave_ReplaceKeepsSingleRow(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	rec := newRecord("flra")
	id, err := db.Save(ctx, rec)
	require.NoError(t, err)

	rec.Fields["jobFileNumber"] = "Z"
	again, err := db.Save(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	all, err := db.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Z", all[0].Field("jobFileNumber"))
}

func TestSave_RejectsFormTypeChange(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	rec := newRecord("flra")
	id, err := db.Save(ctx, rec)
	require.NoError(t, err)

	rec.FormType = "manlift"
	_, err = db.Save(ctx, rec)
	require.ErrorIs(t, err, ErrFormTypeChanged)

	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "flra", got.FormType)
}

func TestSave_ExplicitIDMustExist(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	rec := newRecord("flra")
	rec.LocalID = 42
	_, err := db.Save(ctx, rec)
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 42, rec.LocalID)

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestSave_DeletedIDNotRevived(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	rec := newRecord("flra")
	id, err := db.Save(ctx, rec)
	require.NoError(t, err)
	require.NoError(t, db.Delete(ctx, id))

	_, err = db.Save(ctx, rec)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = db.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	rec.LocalID = 0
	next, err := db.Save(ctx, rec)
	require.NoError(t, err)
	assert.Greater(t, next, id)
}

func TestSave_InvalidRecord(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Save(context.Background(), &schema.Record{})
	require.Error(t, err)
}

func TestSave_PreservesSyncAttempts(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	rec := newRecord("flra")
	rec.SyncAttempts = 3
	id, err := db.Save(ctx, rec)
	require.NoError(t, err)

	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, got.SyncAttempts)
}

func TestGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	rec := &schema.Record{
		FormType: "flra",
		Fields: map[string]string{
			"assessmentDate": "2024-05-01",
			"supervisor":     "data:image/png;base64,AAAA",
		},
		Checklists: map[string]map[int]schema.ChecklistItem{
			"ppe": {0: {Value: "yes"}, 2: {Value: "other", FreeText: "gloves"}},
		},
		Mitigations: []schema.Mitigation{{Hazard: "Ice", Control: "Salt", Initial: "JD"}},
		Workers:     []schema.WorkerSignature{{Name: "Ann", Signature: "data:image/png;base64,BBBB"}},
		Document: &schema.Document{
			Bytes:       []byte("%PDF-1.4"),
			Filename:    "20240501_NOJOB_FLRA.pdf",
			FolderPath:  "FLRA/2024",
			ContentType: "application/pdf",
		},
	}
	id, err := db.Save(ctx, rec)
	require.NoError(t, err)

	got, err := db.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, rec.Fields, got.Fields)
	assert.Equal(t, rec.Checklists, got.Checklists)
	assert.Equal(t, rec.Mitigations, got.Mitigations)
	assert.Equal(t, rec.Workers, got.Workers)
	assert.Equal(t, rec.Document, got.Document)
	assert.True(t, rec.LastModified.Equal(got.LastModified))
}

func TestGet_NilContentStaysNil(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	id, err := db.Save(ctx, &schema.Record{FormType: "manlift"})
	require.NoError(t, err)

	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.Fields)
	assert.Nil(t, got.Checklists)
	assert.Nil(t, got.Mitigations)
	assert.Nil(t, got.Workers)
	assert.Nil(t, got.Document)
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Get(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestGetAll_MostRecentFirst(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	first, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	second, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	third, err := db.Save(ctx, newRecord("manlift"))
	require.NoError(t, err)

	// Touch the first record so it becomes the most recent.
	require.NoError(t, db.UpdateStatus(ctx, first, schema.StatusError, Patch{LastError: "boom"}))

	all, err := db.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{first, third, second}, []int64{all[0].LocalID, all[1].LocalID, all[2].LocalID})
}

func TestGetAll_Empty(t *testing.T) {
	db := setupTestDB(t)

	all, err := db.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestList_Filters(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	a, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	b, err := db.Save(ctx, newRecord("manlift"))
	require.NoError(t, err)
	_, err = db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	require.NoError(t, db.UpdateStatus(ctx, a, schema.StatusSynced, Patch{RemoteID: "R"}))

	synced, err := db.List(ctx, ListFilter{Status: schema.StatusSynced})
	require.NoError(t, err)
	require.Len(t, synced, 1)
	assert.Equal(t, a, synced[0].LocalID)

	manlifts, err := db.List(ctx, ListFilter{FormType: "manlift"})
	require.NoError(t, err)
	require.Len(t, manlifts, 1)
	assert.Equal(t, b, manlifts[0].LocalID)

	limited, err := db.List(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	bRec, err := db.Get(ctx, b)
	require.NoError(t, err)
	since, err := db.List(ctx, ListFilter{Since: bRec.LastModified})
	require.NoError(t, err)
	// b, the third save and the synced update all happened at or after b's save.
	assert.Len(t, since, 3)
}

func TestGetPending_OnlyPending(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	ids := make([]int64, 4)
	for i := range ids {
		id, err := db.Save(ctx, newRecord("flra"))
		require.NoError(t, err)
		ids[i] = id
	}
	require.NoError(t, db.UpdateStatus(ctx, ids[1], schema.StatusSynced, Patch{}))
	require.NoError(t, db.UpdateStatus(ctx, ids[2], schema.StatusError, Patch{LastError: "x"}))

	pending, err := db.GetPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].LocalID)
	assert.Equal(t, ids[3], pending[1].LocalID)
	for _, rec := range pending {
		assert.Equal(t, schema.StatusPending, rec.Status)
	}
}

func TestUpdateStatus_Synced(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	id, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	before, err := db.Get(ctx, id)
	require.NoError(t, err)

	err = db.UpdateStatus(ctx, id, schema.StatusSynced, Patch{
		RemoteID:      "R-7",
		DocumentURL:   "https://example.test/r7.pdf",
		SignatureURLs: schema.SignatureURLs{"worker_signature_0": "https://example.test/w0.png"},
	})
	require.NoError(t, err)

	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusSynced, got.Status)
	assert.Equal(t, "R-7", got.RemoteID)
	assert.Equal(t, "https://example.test/r7.pdf", got.DocumentURL)
	assert.Equal(t, "https://example.test/w0.png", got.SignatureURLs["worker_signature_0"])
	assert.Equal(t, 0, got.SyncAttempts)
	assert.Empty(t, got.LastError)
	assert.True(t, got.LastModified.After(before.LastModified))
	assert.Equal(t, before.Fields, got.Fields)
}

func TestUpdateStatus_ErrorIncrementsAttempts(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	id, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)

	require.NoError(t, db.UpdateStatus(ctx, id, schema.StatusError, Patch{LastError: "HTTP 500"}))
	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusError, got.Status)
	assert.Equal(t, 1, got.SyncAttempts)
	assert.Equal(t, "HTTP 500", got.LastError)

	require.NoError(t, db.UpdateStatus(ctx, id, schema.StatusPending, Patch{}))
	require.NoError(t, db.UpdateStatus(ctx, id, schema.StatusError, Patch{LastError: "HTTP 502"}))
	got, err = db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SyncAttempts)
	assert.Equal(t, "HTTP 502", got.LastError)

	// error -> synced clears the error text
	require.NoError(t, db.UpdateStatus(ctx, id, schema.StatusSynced, Patch{RemoteID: "R"}))
	got, err = db.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.LastError)
	assert.Equal(t, 2, got.SyncAttempts)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	db := setupTestDB(t)

	err := db.UpdateStatus(context.Background(), 404, schema.StatusSynced, Patch{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_DeletedDuringPass(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	id, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	require.NoError(t, db.Delete(ctx, id))

	err = db.UpdateStatus(ctx, id, schema.StatusSynced, Patch{RemoteID: "R"})
	require.ErrorIs(t, err, ErrNotFound)

	all, err := db.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	id, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	require.NoError(t, db.UpdateStatus(ctx, id, schema.StatusSynced, Patch{}))

	err = db.UpdateStatus(ctx, id, schema.StatusError, Patch{LastError: "late failure"})
	require.ErrorIs(t, err, ErrInvalidTransition)

	got, err := db.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusSynced, got.Status)
	assert.Equal(t, 0, got.SyncAttempts)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	db := setupTestDB(t)

	err := db.UpdateStatus(context.Background(), 1, schema.Status("archived"), Patch{})
	require.Error(t, err)
}

func TestRequeueErrored(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	fresh, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	tired, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)

	require.NoError(t, db.UpdateStatus(ctx, fresh, schema.StatusError, Patch{LastError: "a"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, db.UpdateStatus(ctx, tired, schema.StatusError, Patch{LastError: "b"}))
		if i < 2 {
			require.NoError(t, db.UpdateStatus(ctx, tired, schema.StatusPending, Patch{}))
		}
	}

	n, err := db.RequeueErrored(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := db.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusPending, got.Status)
	assert.Empty(t, got.LastError)

	got, err = db.Get(ctx, tired)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusError, got.Status)

	// No cap requeues everything left in error.
	n, err = db.RequeueErrored(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	id, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	require.NoError(t, db.UpdateStatus(ctx, id, schema.StatusSynced, Patch{}))

	require.NoError(t, db.Delete(ctx, id))
	require.NoError(t, db.Delete(ctx, id))

	_, err = db.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_IDNotReused(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	id, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	require.NoError(t, db.Delete(ctx, id))

	next, err := db.Save(ctx, newRecord("flra"))
	require.NoError(t, err)
	assert.Greater(t, next, id)
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := db.Save(ctx, newRecord("flra"))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, db.UpdateStatus(ctx, ids[0], schema.StatusSynced, Patch{}))
	require.NoError(t, db.UpdateStatus(ctx, ids[1], schema.StatusSynced, Patch{}))
	require.NoError(t, db.UpdateStatus(ctx, ids[2], schema.StatusError, Patch{LastError: "x"}))

	stats, err = db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 5, Pending: 2, Synced: 2, Error: 1}, stats)
	assert.Equal(t, stats.Total, stats.Pending+stats.Synced+stats.Error)
}

func TestSave_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.Save(ctx, newRecord("flra")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Save() failed: %v", err)
	}

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, stats.Pending)
}
