package user

import (
	"context"
	"testing"
	"time"

	"github.com/example/sportshop/internal/apperr"
	"github.com/example/sportshop/internal/auth"
	"github.com/example/sportshop/internal/delivery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	service        *Service
	repo           *MemoryRepository
	now            time.Time
	passwordChecks int
}

func newTestUserService(t *testing.T) *testEnv {
	t.Helper()
	region, err := delivery.Load("")
	require.NoError(t, err)

	env := &testEnv{
		repo: NewMemoryRepository(),
		now:  time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	env.service = NewService(env.repo, region, nil)
	env.service.now = func() time.Time { return env.now }
	env.service.hashPassword = func(p string) (string, error) {
		if len(p) < 8 {
			return "", auth.ErrPasswordTooShort
		}
		h, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.MinCost)
		return string(h), err
	}
	env.service.checkPassword = func(p, h string) bool {
		env.passwordChecks++
		return auth.CheckPassword(p, h)
	}
	return env
}

func (e *testEnv) register(t *testing.T, email string) *User {
	t.Helper()
	u, err := e.service.Register(context.Background(), RegisterInput{
		Email: email, Password: "correct-horse", Name: "Tran Minh",
	})
	require.NoError(t, err)
	return u
}

// ============================================
// Register Tests
// ============================================

func TestService_Register(t *testing.T) {
	env := newTestUserService(t)

	u, err := env.service.Register(context.Background(), RegisterInput{
		Email: "  Minh@Example.com ", Password: "correct-horse", Name: " Tran Minh ", Phone: "090.123.4567",
	})
	require.NoError(t, err)
	assert.Equal(t, "minh@example.com", u.Email)
	assert.Equal(t, "Tran Minh", u.Name)
	assert.Equal(t, "0901234567", u.Phone)
	assert.Equal(t, RoleUser, u.Role)
	assert.True(t, u.IsActive)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)
}

func TestService_Register_Rejects(t *testing.T) {
	env := newTestUserService(t)
	env.register(t, "minh@example.com")

	tests := []struct {
		name    string
		in      RegisterInput
		wantErr error
	}{
		{"bad email", RegisterInput{Email: "minh", Password: "correct-horse", Name: "M"}, ErrInvalidEmail},
		{"missing name", RegisterInput{Email: "a@example.com", Password: "correct-horse"}, ErrInvalidName},
		{"short password", RegisterInput{Email: "a@example.com", Password: "short", Name: "M"}, auth.ErrPasswordTooShort},
		{"bad phone", RegisterInput{Email: "a@example.com", Password: "correct-horse", Name: "M", Phone: "123"}, ErrInvalidPhone},
		{"duplicate email", RegisterInput{Email: "MINH@example.com", Password: "correct-horse", Name: "M"}, ErrEmailTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 409, apperr.HTTPStatus(ErrEmailTaken))
}

// ============================================
// Authenticate Tests
// ============================================

func TestService_Authenticate_Success(t *testing.T) {
	env := newTestUserService(t)
	env.register(t, "minh@example.com")

	u, err := env.service.Authenticate(context.Background(), "MINH@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotNil(t, u.LastLoginAt)
	assert.Equal(t, env.now, *u.LastLoginAt)
}

func TestService_Authenticate_UnknownEmail(t *testing.T) {
	env := newTestUserService(t)
	_, err := env.service.Authenticate(context.Background(), "ghost@example.com", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Authenticate_Lockout(t *testing.T) {
	env := newTestUserService(t)
	registered := env.register(t, "minh@example.com")
	ctx := context.Background()

	for i := 1; i <= MaxFailedLogins; i++ {
		_, err := env.service.Authenticate(ctx, "minh@example.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}
	stored, err := env.repo.Get(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, MaxFailedLogins, stored.FailedLogins)
	require.NotNil(t, stored.LockedUntil)
	assert.Equal(t, env.now.Add(LockDuration), *stored.LockedUntil)

	checks := env.passwordChecks
	_, err = env.service.Authenticate(ctx, "minh@example.com", "correct-horse")
	require.ErrorIs(t, err, ErrAccountLocked)
	assert.Equal(t, checks, env.passwordChecks, "password must not be checked while locked")

	env.now = env.now.Add(LockDuration + time.Second)
	u, err := env.service.Authenticate(ctx, "minh@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Zero(t, u.FailedLogins)
	assert.Nil(t, u.LockedUntil)
}

func TestService_Authenticate_ExpiredLockResetsCounter(t *testing.T) {
	env := newTestUserService(t)
	registered := env.register(t, "minh@example.com")
	ctx := context.Background()

	for range MaxFailedLogins {
		_, _ = env.service.Authenticate(ctx, "minh@example.com", "wrong-password")
	}
	env.now = env.now.Add(LockDuration)

	_, err := env.service.Authenticate(ctx, "minh@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	stored, _ := env.repo.Get(ctx, registered.ID)
	assert.Equal(t, 1, stored.FailedLogins)
	assert.Nil(t, stored.LockedUntil)
}

func TestService_Authenticate_SuccessResetsCounter(t *testing.T) {
	env := newTestUserService(t)
	registered := env.register(t, "minh@example.com")
	ctx := context.Background()

	for range MaxFailedLogins - 1 {
		_, _ = env.service.Authenticate(ctx, "minh@example.com", "wrong-password")
	}
	_, err := env.service.Authenticate(ctx, "minh@example.com", "correct-horse")
	require.NoError(t, err)

	stored, _ := env.repo.Get(ctx, registered.ID)
	assert.Zero(t, stored.FailedLogins)
}

func TestService_Authenticate_Deactivated(t *testing.T) {
	env := newTestUserService(t)
	u := env.register(t, "minh@example.com")
	_, err := env.service.SetActive(context.Background(), "admin-1", u.ID, false)
	require.NoError(t, err)

	_, err = env.service.Authenticate(context.Background(), "minh@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrUserDeactivated)
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
}

// ============================================
// Profile Tests
// ============================================

func TestService_ChangePassword(t *testing.T) {
	env := newTestUserService(t)
	u := env.register(t, "minh@example.com")
	ctx := context.Background()

	err := env.service.ChangePassword(ctx, u.ID, "not-current", "new-password-1")
	require.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, env.service.ChangePassword(ctx, u.ID, "correct-horse", "new-password-1"))
	_, err = env.service.Authenticate(ctx, "minh@example.com", "new-password-1")
	assert.NoError(t, err)
}

func TestService_UpdateProfile(t *testing.T) {
	env := newTestUserService(t)
	u := env.register(t, "minh@example.com")

	updated, err := env.service.UpdateProfile(context.Background(), u.ID, "Minh Tran", "+84 912 345 678")
	require.NoError(t, err)
	assert.Equal(t, "Minh Tran", updated.Name)
	assert.Equal(t, "0912345678", updated.Phone)

	_, err = env.service.UpdateProfile(context.Background(), u.ID, "", "")
	assert.ErrorIs(t, err, ErrInvalidName)
}

// ============================================
// Address Tests
// ============================================

func TestService_Addresses(t *testing.T) {
	env := newTestUserService(t)
	u := env.register(t, "minh@example.com")
	ctx := context.Background()

	home, err := env.service.AddAddress(ctx, u.ID, AddressInput{Label: "Home", Street: "1 Nguyen Hue", District: "q1"})
	require.NoError(t, err)
	assert.True(t, home.IsDefault)
	assert.Equal(t, "District 1", home.DistrictName)

	work, err := env.service.AddAddress(ctx, u.ID, AddressInput{Label: "Work", Street: "5 Cong Hoa", District: "Tan Binh"})
	require.NoError(t, err)
	assert.False(t, work.IsDefault)

	require.NoError(t, env.service.SetDefaultAddress(ctx, u.ID, work.ID))
	addrs, err := env.service.Addresses(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.False(t, addrs[0].IsDefault)
	assert.True(t, addrs[1].IsDefault)

	require.NoError(t, env.service.DeleteAddress(ctx, u.ID, work.ID))
	addrs, _ = env.service.Addresses(ctx, u.ID)
	require.Len(t, addrs, 1)
	assert.True(t, addrs[0].IsDefault)

	updated, err := env.service.UpdateAddress(ctx, u.ID, home.ID, AddressInput{Label: "Home", Street: "2 Nguyen Hue", District: "District 3"})
	require.NoError(t, err)
	assert.Equal(t, "q3", updated.DistrictCode)
	assert.True(t, updated.IsDefault)

	_, err = env.service.AddAddress(ctx, u.ID, AddressInput{Street: "1 Trang Tien", District: "Hoan Kiem"})
	assert.ErrorIs(t, err, ErrUnknownDistrict)
	assert.ErrorIs(t, env.service.DeleteAddress(ctx, u.ID, "missing"), ErrAddressNotFound)
}

func TestService_ToggleFavorite(t *testing.T) {
	env := newTestUserService(t)
	u := env.register(t, "minh@example.com")
	ctx := context.Background()

	added, err := env.service.ToggleFavorite(ctx, u.ID, "shoe-1")
	require.NoError(t, err)
	assert.True(t, added)

	favs, _ := env.service.Favorites(ctx, u.ID)
	assert.Equal(t, []string{"shoe-1"}, favs)

	added, err = env.service.ToggleFavorite(ctx, u.ID, "shoe-1")
	require.NoError(t, err)
	assert.False(t, added)
	favs, _ = env.service.Favorites(ctx, u.ID)
	assert.Empty(t, favs)
}

// ============================================
// Admin Tests
// ============================================

func TestService_AdminCannotModifySelf(t *testing.T) {
	env := newTestUserService(t)
	admin, err := env.service.RegisterAdmin(context.Background(), RegisterInput{
		Email: "admin@example.com", Password: "correct-horse", Name: "Admin",
	})
	require.NoError(t, err)

	_, err = env.service.SetRole(context.Background(), admin.ID, admin.ID, RoleUser)
	assert.ErrorIs(t, err, ErrSelfModification)
	_, err = env.service.SetActive(context.Background(), admin.ID, admin.ID, false)
	assert.ErrorIs(t, err, ErrSelfModification)
}

func TestService_SetRoleAndList(t *testing.T) {
	env := newTestUserService(t)
	a := env.register(t, "a@example.com")
	env.now = env.now.Add(time.Minute)
	env.register(t, "b@example.com")

	promoted, err := env.service.SetRole(context.Background(), "admin-1", a.ID, RoleAdmin)
	require.NoError(t, err)
	assert.True(t, promoted.IsAdmin())

	_, err = env.service.SetRole(context.Background(), "admin-1", a.ID, Role("root"))
	assert.ErrorIs(t, err, ErrInvalidRole)

	page, err := env.service.List(context.Background(), Filter{Role: RoleAdmin})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, a.ID, page.Items[0].ID)

	page, err = env.service.List(context.Background(), Filter{Query: "example"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, "b@example.com", page.Items[0].Email)
}
