package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/openadeia/teesync/pkg/permit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "teesync.sqlite"))
	require.NoError(t, err)
	db.now = func() time.Time { return time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { db.Close() })
	return db
}

func intp(n int) *int { return &n }

func TestImportProject(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	uid, err := db.EnsureUser(ctx, "maria")
	require.NoError(t, err)

	app := permit.Application{
		PermitCode: "2024/001",
		Title:      "Νέα κατοικία",
		TypeCode:   intp(9),
		YdID:       intp(44),
		Address:    "Σταδίου 1",
		City:       "Αθήνα",
		ParcelCode: "050102",
		StatusText: "Εγκρίθηκε",
		Raw:        `{"code":"2024/001"}`,
	}
	res, err := db.ImportProject(ctx, app, uid)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "PRJ-2025-001", res.Code)
	assert.Equal(t, permit.StageApproved, res.Stage)

	p, err := db.GetProject(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Νέα κατοικία", p.Title)
	assert.Equal(t, permit.TypeVOD, p.Type)
	assert.Equal(t, permit.StageApproved, p.Stage)
	assert.Equal(t, "2024/001", p.PermitCode)
	require.NotNil(t, p.TypeCode)
	assert.Equal(t, 9, *p.TypeCode)
	assert.Nil(t, p.DimosAA)
	assert.Equal(t, uid, p.CreatedBy)
	assert.Equal(t, "Εισήχθη από ΤΕΕ e-Adeies (14/3/2025)", p.Notes)
	assert.False(t, p.SyncedAt.IsZero())

	prop, err := db.GetProperty(ctx, res.ID)
	require.NoError(t, err)
	require.NotNil(t, prop)
	assert.Equal(t, "Σταδίου 1", prop.Address)
	assert.Equal(t, "050102", prop.KAEK)

	logs, err := db.ListWorkflowLogs(ctx, res.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Εισαγωγή από ΤΕΕ e-Adeies (κωδ. 2024/001)", logs[0].Action)
	assert.Equal(t, permit.StageApproved, logs[0].ToStage)
	assert.Equal(t, map[string]string{"source": SOURCE_TEE_SYNC, "tee_permit_code": "2024/001"}, logs[0].Metadata)
}

func TestImportProjectIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	app := permit.Application{PermitCode: "2024/001"}

	first, err := db.ImportProject(ctx, app, 0)
	require.NoError(t, err)
	second, err := db.ImportProject(ctx, app, 0)
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)

	codes, err := db.ExistingPermitCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"2024/001": first.ID}, codes)

	all, err := db.ListProjects(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestImportProjectDefaultsAndNoProperty(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	res, err := db.ImportProject(ctx, permit.Application{PermitCode: "2023/7", IsContinuation: true, TypeCode: intp(3)}, 0)
	require.NoError(t, err)

	p, err := db.GetProject(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Άδεια ΤΕΕ 2023/7", p.Title)
	assert.Equal(t, permit.TypeFileUpdate, p.Type)
	assert.True(t, p.IsContinuation)
	assert.Equal(t, permit.StageDataCollection, p.Stage)

	prop, err := db.GetProperty(ctx, res.ID)
	require.NoError(t, err)
	assert.Nil(t, prop)
}

func TestImportProjectRejectsEmptyCode(t *testing.T) {
	db := openTestDB(t)
	_, err := db.ImportProject(context.Background(), permit.Application{PermitCode: "  "}, 0)
	assert.ErrorIs(t, err, ErrMissingPermitCode)
}

func TestProjectCodesAreSequential(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	var codes []string
	for _, c := range []string{"a/1", "a/2", "a/3"} {
		res, err := db.ImportProject(ctx, permit.Application{PermitCode: c}, 0)
		require.NoError(t, err)
		codes = append(codes, res.Code)
	}
	assert.Equal(t, []string{"PRJ-2025-001", "PRJ-2025-002", "PRJ-2025-003"}, codes)
}

func TestConcurrentImportsGetDistinctCodes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	codes := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := db.ImportProject(ctx, permit.Application{PermitCode: fmt.Sprintf("2024/%03d", i)}, 0)
			codes[i], errs[i] = res.Code, err
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[codes[i]], "code %s allocated twice", codes[i])
		seen[codes[i]] = true
	}
	existing, err := db.ExistingPermitCodes(ctx)
	require.NoError(t, err)
	assert.Len(t, existing, n)
}

func TestUpdateStage(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	res, err := db.ImportProject(ctx, permit.Application{PermitCode: "2024/9", StatusText: "Σε έλεγχο"}, 0)
	require.NoError(t, err)

	err = db.UpdateStage(ctx, res.ID, permit.StageApproved, 0, "Ενημέρωση κατάστασης από ΤΕΕ: Εγκρίθηκε",
		map[string]string{"source": SOURCE_TEE_REFRESH, "tee_status": "Εγκρίθηκε"})
	require.NoError(t, err)

	p, err := db.GetProject(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, permit.StageApproved, p.Stage)

	logs, err := db.ListWorkflowLogs(ctx, res.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, permit.StageReview, logs[0].FromStage)
	assert.Equal(t, permit.StageApproved, logs[0].ToStage)
	assert.Equal(t, SOURCE_TEE_REFRESH, logs[0].Metadata["source"])

	assert.ErrorIs(t, db.UpdateStage(ctx, 999, permit.StageApproved, 0, "x", nil), ErrProjectNotFound)
}

func TestGetProjectNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetProject(context.Background(), 42)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestCredentials(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	uid, err := db.EnsureUser(ctx, "maria")
	require.NoError(t, err)
	again, err := db.EnsureUser(ctx, "maria")
	require.NoError(t, err)
	assert.Equal(t, uid, again)

	cred, err := db.GetCredential(ctx, uid)
	require.NoError(t, err)
	assert.False(t, cred.Configured())

	require.NoError(t, db.SetCredential(ctx, uid, "m.engineer", "00:11"))
	cred, err = db.GetCredential(ctx, uid)
	require.NoError(t, err)
	assert.True(t, cred.Configured())
	assert.Equal(t, "m.engineer", cred.TEEUsername)

	assert.ErrorIs(t, db.SetCredential(ctx, 999, "x", "y"), ErrUserNotFound)
	_, err = db.GetCredential(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListProjectsFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ImportProject(ctx, permit.Application{PermitCode: "1/1", StatusCode: "5"}, 0)
	require.NoError(t, err)
	_, err = db.ImportProject(ctx, permit.Application{PermitCode: "1/2", StatusCode: "1"}, 0)
	require.NoError(t, err)

	approved, err := db.ListProjects(ctx, ListOptions{Stage: permit.StageApproved, LinkedOnly: true})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "1/1", approved[0].PermitCode)
}
