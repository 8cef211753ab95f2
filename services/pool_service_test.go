package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prizmbets/pickem/models"
	"github.com/prizmbets/pickem/storage"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
	failNext error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploaded: make(map[string][]byte)}
}

func (u *fakeUploader) Upload(_ context.Context, key string, _ string, reader io.Reader) (*storage.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failNext != nil {
		err := u.failNext
		u.failNext = nil
		return nil, err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	u.uploaded[key] = data
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) Delete(_ context.Context, key string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.deleted = append(u.deleted, key)
	delete(u.uploaded, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

type poolFixture struct {
	st      *memStore
	db      *sql.DB
	mock    sqlmock.Sqlmock
	service PoolService
}

func newPoolFixture(t *testing.T, uploader storage.FileUploader) *poolFixture {
	t.Helper()
	st := newMemStore()
	db, mock := newTxDB(t)
	cal := NewSeasonCalendar(time.Date(2025, 9, 4, 0, 0, 0, 0, time.UTC))
	svc := NewPoolService(db, fakePoolRepo{st}, fakeMembershipRepo{st}, fakeUserRepo{st}, fakeWeekRepo{st}, uploader, cal, discardLogger())
	return &poolFixture{st: st, db: db, mock: mock, service: svc}
}

func (f *poolFixture) createPool(t *testing.T, creator *models.User, maxMembers int) *models.Pool {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	pool, err := f.service.CreatePool(context.Background(), CreatePoolInput{
		CreatorID:  creator.ID,
		Name:       "Sunday Sweat",
		MaxMembers: &maxMembers,
	})
	require.NoError(t, err)
	return pool
}

func TestCreatePool(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice := f.st.addUser("alice")

	pool := f.createPool(t, alice, 10)

	require.NotZero(t, pool.ID)
	require.Len(t, pool.InviteCode, inviteCodeLength)
	require.Equal(t, 2025, pool.SeasonYear)
	require.Equal(t, models.PickTypeStraightUp, pool.Settings.PickType)
	require.Equal(t, models.TiebreakerCorrectPicks, pool.Settings.Tiebreaker)
	require.True(t, pool.IsActive)
	require.Equal(t, 1, pool.MemberCount)

	m := f.st.membership(pool.ID, alice.ID)
	require.NotNil(t, m)
	require.True(t, m.IsAdmin)
	require.True(t, m.IsActive)
	require.Equal(t, "alice", m.DisplayName)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreatePoolValidation(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice := f.st.addUser("alice")
	ctx := context.Background()

	tests := []struct {
		name    string
		input   CreatePoolInput
		wantErr error
	}{
		{"empty name", CreatePoolInput{CreatorID: alice.ID, Name: "   "}, ErrPoolNameRequired},
		{"long name", CreatePoolInput{CreatorID: alice.ID, Name: strings.Repeat("x", 101)}, ErrPoolNameTooLong},
		{"bad pick type", CreatePoolInput{CreatorID: alice.ID, Name: "p", Settings: &models.PoolSettings{PickType: "parlay"}}, ErrInvalidPickType},
		{"bad tiebreaker", CreatePoolInput{CreatorID: alice.ID, Name: "p", Settings: &models.PoolSettings{Tiebreaker: "coin_flip"}}, ErrInvalidTiebreaker},
		{"max members too small", CreatePoolInput{CreatorID: alice.ID, Name: "p", MaxMembers: intPtr(1)}, ErrInvalidMaxMembers},
		{"max members too large", CreatePoolInput{CreatorID: alice.ID, Name: "p", MaxMembers: intPtr(501)}, ErrInvalidMaxMembers},
		{"unknown creator", CreatePoolInput{CreatorID: 9999, Name: "p"}, ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreatePool(ctx, tt.input)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestJoinPoolCapacity(t *testing.T) {
	f := newPoolFixture(t, nil)
	ctx := context.Background()
	alice := f.st.addUser("alice")
	bob := f.st.addUser("bob")
	carol := f.st.addUser("carol")

	pool := f.createPool(t, alice, 2)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	res, err := f.service.JoinPool(ctx, JoinPoolInput{UserID: bob.ID, InviteCode: strings.ToLower(pool.InviteCode)})
	require.NoError(t, err)
	require.Equal(t, pool.ID, res.Pool.ID)
	require.Equal(t, 2, res.Pool.MemberCount)
	require.False(t, res.Membership.IsAdmin)
	require.False(t, res.Rejoined)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.service.JoinPool(ctx, JoinPoolInput{UserID: carol.ID, InviteCode: pool.InviteCode})
	require.ErrorIs(t, err, ErrPoolFull)
	require.Nil(t, f.st.membership(pool.ID, carol.ID))

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestJoinPoolErrors(t *testing.T) {
	f := newPoolFixture(t, nil)
	ctx := context.Background()
	alice := f.st.addUser("alice")
	bob := f.st.addUser("bob")
	pool := f.createPool(t, alice, 10)

	// Невалидный формат отклоняется до транзакции.
	_, err := f.service.JoinPool(ctx, JoinPoolInput{UserID: bob.ID, InviteCode: "bad"})
	require.ErrorIs(t, err, ErrInvalidInviteCode)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.service.JoinPool(ctx, JoinPoolInput{UserID: bob.ID, InviteCode: "ZZZZZZZZ"})
	require.ErrorIs(t, err, ErrInvalidInviteCode)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.service.JoinPool(ctx, JoinPoolInput{UserID: alice.ID, InviteCode: pool.InviteCode})
	require.ErrorIs(t, err, ErrAlreadyMember)

	_, err = f.service.JoinPool(ctx, JoinPoolInput{UserID: bob.ID, InviteCode: pool.InviteCode, DisplayName: func() *string { s := strings.Repeat("n", 51); return &s }()})
	require.ErrorIs(t, err, ErrDisplayNameTooLong)

	require.NoError(t, f.service.DeactivatePool(ctx, pool.ID, alice.ID))
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err = f.service.JoinPool(ctx, JoinPoolInput{UserID: bob.ID, InviteCode: pool.InviteCode})
	require.ErrorIs(t, err, ErrPoolInactive)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLeaveAndRejoinPool(t *testing.T) {
	f := newPoolFixture(t, nil)
	ctx := context.Background()
	alice := f.st.addUser("alice")
	bob := f.st.addUser("bob")
	pool := f.createPool(t, alice, 10)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err := f.service.JoinPool(ctx, JoinPoolInput{UserID: bob.ID, InviteCode: pool.InviteCode})
	require.NoError(t, err)

	// Единственный админ не может выйти, пока в пуле есть другие участники.
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	require.ErrorIs(t, f.service.LeavePool(ctx, pool.ID, alice.ID), ErrLastAdminCannotLeave)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	require.NoError(t, f.service.LeavePool(ctx, pool.ID, bob.ID))
	require.False(t, f.st.membership(pool.ID, bob.ID).IsActive)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	require.ErrorIs(t, f.service.LeavePool(ctx, pool.ID, bob.ID), ErrNotPoolMember)

	name := "Bobby"
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	res, err := f.service.JoinPool(ctx, JoinPoolInput{UserID: bob.ID, InviteCode: pool.InviteCode, DisplayName: &name})
	require.NoError(t, err)
	require.True(t, res.Rejoined)
	require.Equal(t, "Bobby", f.st.membership(pool.ID, bob.ID).DisplayName)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPoolAdminOperations(t *testing.T) {
	f := newPoolFixture(t, nil)
	ctx := context.Background()
	alice := f.st.addUser("alice")
	bob := f.st.addUser("bob")
	carol := f.st.addUser("carol")
	pool := f.createPool(t, alice, 10)

	for _, u := range []*models.User{bob, carol} {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
		_, err := f.service.JoinPool(ctx, JoinPoolInput{UserID: u.ID, InviteCode: pool.InviteCode})
		require.NoError(t, err)
	}

	newName := "Renamed"
	_, err := f.service.UpdateSettings(ctx, pool.ID, bob.ID, UpdatePoolInput{Name: &newName})
	require.ErrorIs(t, err, ErrNotPoolAdmin)

	_, err = f.service.UpdateSettings(ctx, pool.ID, alice.ID, UpdatePoolInput{MaxMembers: intPtr(2)})
	require.ErrorIs(t, err, ErrMaxMembersBelowCount)

	updated, err := f.service.UpdateSettings(ctx, pool.ID, alice.ID, UpdatePoolInput{
		Name:       &newName,
		Settings:   &models.PoolSettings{PickType: models.PickTypeConfidence},
		MaxMembers: intPtr(3),
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, models.PickTypeConfidence, updated.Settings.PickType)
	require.Equal(t, models.TiebreakerCorrectPicks, updated.Settings.Tiebreaker)
	require.Equal(t, 3, updated.MaxMembers)

	regenerated, err := f.service.RegenerateInviteCode(ctx, pool.ID, alice.ID)
	require.NoError(t, err)
	require.NotEqual(t, pool.InviteCode, regenerated.InviteCode)

	detail, err := f.service.GetPoolDetail(ctx, pool.ID, carol.ID)
	require.NoError(t, err)
	require.False(t, detail.IsAdmin)
	require.Len(t, detail.Members, 3)
	require.Equal(t, alice.ID, detail.Members[0].UserID)
	require.Nil(t, detail.CurrentWeek)

	outsider := f.st.addUser("dave")
	_, err = f.service.GetPoolDetail(ctx, pool.ID, outsider.ID)
	require.ErrorIs(t, err, ErrNotPoolMember)
	require.ErrorIs(t, f.service.EnsureMember(ctx, pool.ID, outsider.ID), ErrNotPoolMember)
	require.NoError(t, f.service.EnsureMember(ctx, pool.ID, bob.ID))

	pools, err := f.service.ListUserPools(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.Equal(t, 3, pools[0].MemberCount)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUploadLogo(t *testing.T) {
	ctx := context.Background()

	t.Run("storage not configured", func(t *testing.T) {
		f := newPoolFixture(t, nil)
		alice := f.st.addUser("alice")
		pool := f.createPool(t, alice, 10)
		_, err := f.service.UploadLogo(ctx, pool.ID, alice.ID, bytes.NewReader([]byte("png")), "image/png")
		require.ErrorIs(t, err, ErrStorageUnavailable)
	})

	t.Run("replaces previous logo", func(t *testing.T) {
		uploader := newFakeUploader()
		f := newPoolFixture(t, uploader)
		alice := f.st.addUser("alice")
		pool := f.createPool(t, alice, 10)

		first, err := f.service.UploadLogo(ctx, pool.ID, alice.ID, bytes.NewReader([]byte("one")), "image/png")
		require.NoError(t, err)
		require.NotNil(t, first.LogoURL)
		require.True(t, strings.HasSuffix(*first.LogoKey, ".png"))

		second, err := f.service.UploadLogo(ctx, pool.ID, alice.ID, bytes.NewReader([]byte("two")), "image/webp")
		require.NoError(t, err)
		require.NotEqual(t, *first.LogoKey, *second.LogoKey)
		require.Equal(t, []string{*first.LogoKey}, uploader.deleted)
		require.Len(t, uploader.uploaded, 1)
	})

	t.Run("rejects unsupported type and failed upload", func(t *testing.T) {
		uploader := newFakeUploader()
		f := newPoolFixture(t, uploader)
		alice := f.st.addUser("alice")
		pool := f.createPool(t, alice, 10)

		_, err := f.service.UploadLogo(ctx, pool.ID, alice.ID, bytes.NewReader(nil), "application/pdf")
		require.ErrorIs(t, err, ErrUnsupportedFileType)

		uploader.failNext = errors.New("r2 down")
		_, err = f.service.UploadLogo(ctx, pool.ID, alice.ID, bytes.NewReader([]byte("x")), "image/jpeg")
		require.Error(t, err)
		require.Empty(t, uploader.uploaded)
	})
}
