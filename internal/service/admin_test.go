package service

import (
	"context"
	"database/sql"
	"testing"

	"classifieds/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type adminFixture struct {
	users    *mockUserRepository
	ads      *mockAdRepository
	payments *mockPaymentRepository
	events   *recordingPublisher
	svc      AdminService
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		users:    new(mockUserRepository),
		ads:      new(mockAdRepository),
		payments: new(mockPaymentRepository),
		events:   &recordingPublisher{},
	}
	f.svc = NewAdminService(f.users, f.ads, f.payments, f.events, newTestMetrics())
	return f
}

func TestAdminStats(t *testing.T) {
	f := newAdminFixture()
	f.users.On("CountByStatus", mock.Anything).Return(map[domain.UserStatus]int{
		domain.UserStatusActive: 8,
		domain.UserStatusBanned: 2,
	}, nil)
	f.ads.On("CountByStatus", mock.Anything).Return(map[domain.AdStatus]int{domain.AdStatusActive: 5}, nil)
	totals := &domain.PaymentTotals{
		Counts:  map[domain.PaymentStatus]int{domain.PaymentStatusPaid: 3},
		Revenue: map[string]int64{"usd": 1497},
	}
	f.payments.On("Totals", mock.Anything).Return(totals, nil)

	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Users)
	assert.Equal(t, 2, stats.BannedUsers)
	assert.Equal(t, 5, stats.Ads[domain.AdStatusActive])
	assert.Equal(t, totals, stats.Payments)
}

func TestAdminCannotLockThemselvesOut(t *testing.T) {
	ctx := context.Background()
	f := newAdminFixture()

	_, err := f.svc.SetUserStatus(ctx, 1, 1, domain.UserStatusBanned)
	assert.ErrorIs(t, err, ErrSelfModification)

	_, err = f.svc.SetUserRole(ctx, 1, 1, domain.RoleUser)
	assert.ErrorIs(t, err, ErrSelfModification)

	f.users.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	f.users.AssertNotCalled(t, "UpdateRole", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminSetUserStatus(t *testing.T) {
	ctx := context.Background()
	f := newAdminFixture()
	f.users.On("UpdateStatus", mock.Anything, int64(4), domain.UserStatusBanned).Return(nil)
	f.users.On("GetByID", mock.Anything, int64(4)).Return(&domain.User{ID: 4, Status: domain.UserStatusBanned}, nil)
	f.users.On("UpdateStatus", mock.Anything, int64(404), domain.UserStatusBanned).Return(sql.ErrNoRows)

	user, err := f.svc.SetUserStatus(ctx, 1, 4, domain.UserStatusBanned)
	require.NoError(t, err)
	assert.True(t, user.IsBanned())

	_, err = f.svc.SetUserStatus(ctx, 1, 404, domain.UserStatusBanned)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.svc.SetUserStatus(ctx, 1, 4, "suspended")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.SetUserRole(ctx, 1, 4, "root")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestAdminListUsersPaginates(t *testing.T) {
	f := newAdminFixture()
	f.users.On("List", mock.Anything, "jane", 10, 10).Return([]*domain.User{{ID: 1}}, nil)
	f.users.On("Count", mock.Anything, "jane").Return(11, nil)

	page, err := f.svc.ListUsers(context.Background(), " jane ", 2, 10)
	require.NoError(t, err)
	assert.Len(t, page.Users, 1)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 1, page.PrevPage)
	assert.Equal(t, 0, page.NextPage)
	assert.Equal(t, 11, page.Total)
}

func TestModerateAd(t *testing.T) {
	ctx := context.Background()

	t.Run("approve pending ad", func(t *testing.T) {
		f := newAdminFixture()
		f.ads.On("GetByIDUncached", mock.Anything, int64(3)).Return(&domain.Ad{ID: 3, UserID: 8, Status: domain.AdStatusPending}, nil)
		f.ads.On("UpdateStatus", mock.Anything, int64(3), domain.AdStatusActive, "").Return(nil)

		ad, err := f.svc.ModerateAd(ctx, 3, domain.AdStatusActive, "")
		require.NoError(t, err)
		assert.Equal(t, domain.AdStatusActive, ad.Status)
		require.Len(t, f.events.events, 1)
		assert.Equal(t, []int64{8}, f.events.events[0].Recipients)
	})

	t.Run("reject with reason", func(t *testing.T) {
		f := newAdminFixture()
		f.ads.On("GetByIDUncached", mock.Anything, int64(3)).Return(&domain.Ad{ID: 3, UserID: 8, Status: domain.AdStatusActive}, nil)
		f.ads.On("UpdateStatus", mock.Anything, int64(3), domain.AdStatusRejected, "prohibited item").Return(nil)

		ad, err := f.svc.ModerateAd(ctx, 3, domain.AdStatusRejected, " prohibited item ")
		require.NoError(t, err)
		assert.Equal(t, "prohibited item", ad.ModerationNote)
	})

	t.Run("sold ads cannot be approved", func(t *testing.T) {
		f := newAdminFixture()
		f.ads.On("GetByIDUncached", mock.Anything, int64(3)).Return(&domain.Ad{ID: 3, Status: domain.AdStatusSold}, nil)

		_, err := f.svc.ModerateAd(ctx, 3, domain.AdStatusActive, "")
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("archive a sold ad", func(t *testing.T) {
		f := newAdminFixture()
		f.ads.On("GetByIDUncached", mock.Anything, int64(3)).Return(&domain.Ad{ID: 3, UserID: 8, Status: domain.AdStatusSold}, nil)
		f.ads.On("UpdateStatus", mock.Anything, int64(3), domain.AdStatusArchived, "spam").Return(nil)

		ad, err := f.svc.ModerateAd(ctx, 3, domain.AdStatusArchived, "spam")
		require.NoError(t, err)
		assert.Equal(t, domain.AdStatusArchived, ad.Status)
		require.Len(t, f.events.events, 1)
	})

	t.Run("already archived", func(t *testing.T) {
		f := newAdminFixture()
		f.ads.On("GetByIDUncached", mock.Anything, int64(3)).Return(&domain.Ad{ID: 3, Status: domain.AdStatusArchived}, nil)

		_, err := f.svc.ModerateAd(ctx, 3, domain.AdStatusArchived, "")
		assert.ErrorIs(t, err, ErrInvalidStatus)
		f.ads.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAdminListPaymentsRejectsUnknownStatus(t *testing.T) {
	f := newAdminFixture()
	_, err := f.svc.ListPayments(context.Background(), "refunded", 1, 20)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
