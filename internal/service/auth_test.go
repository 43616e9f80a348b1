package service

import (
	"context"
	"testing"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/config"
	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/storage"
	"github.com/pribylovaa/orchard-analysis/mocks"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "unit-test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "orchard-analysis",
	}
}

func newSvc(t *testing.T) (*Service, *mocks.MockStorage, *gomock.Controller) {
	t.Helper()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	svc := New(st, testCfg())
	return svc, st, ctrl
}

func mustHashPW(t *testing.T, pw string) string {
	t.Helper()
	h, err := hashPassword(pw)
	require.NoError(t, err)
	return h
}

func activeUser(t *testing.T, username, pw string, role models.Role) *models.User {
	t.Helper()
	return &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: mustHashPW(t, pw),
		Role:         role,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestAuthenticate_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)

	st.EXPECT().UserByUsername(gomock.Any(), "grower").Return(user, nil)
	st.EXPECT().UpdateLastLogin(gomock.Any(), user.ID, gomock.Any()).Return(nil)

	got, err := svc.Authenticate(context.Background(), "grower", "secret-password")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotNil(t, got.LastLoginAt)
}

func TestAuthenticate_ByEmail(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)

	st.EXPECT().UserByUsername(gomock.Any(), user.Email).Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByEmail(gomock.Any(), user.Email).Return(user, nil)
	st.EXPECT().UpdateLastLogin(gomock.Any(), user.ID, gomock.Any()).Return(nil)

	got, err := svc.Authenticate(context.Background(), user.Email, "secret-password")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)

	st.EXPECT().UserByUsername(gomock.Any(), "grower").Return(user, nil)

	_, err := svc.Authenticate(context.Background(), "grower", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().UserByUsername(gomock.Any(), "ghost").Return(nil, storage.ErrNotFound)
	st.EXPECT().UserByEmail(gomock.Any(), "ghost").Return(nil, storage.ErrNotFound)

	// «Нет пользователя» и «неверный пароль» неразличимы для вызывающего.
	_, err := svc.Authenticate(context.Background(), "ghost", "whatever-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_EmptyInput(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, err := svc.Authenticate(context.Background(), "", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_LastLoginFailureDoesNotBlock(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)

	st.EXPECT().UserByUsername(gomock.Any(), "grower").Return(user, nil)
	st.EXPECT().UpdateLastLogin(gomock.Any(), user.ID, gomock.Any()).Return(context.DeadlineExceeded)

	_, err := svc.Authenticate(context.Background(), "grower", "secret-password")
	require.NoError(t, err)
}

func TestCreateUser_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	var saved *models.User
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		})

	user, err := svc.CreateUser(context.Background(), "grower", "Grower@Example.com", "secret-password", models.RolePremium)
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, "grower", user.Username)
	require.Equal(t, "grower@example.com", user.Email)
	require.Equal(t, models.RolePremium, user.Role)
	require.True(t, user.Active)

	// Пароль хранится только как bcrypt-хэш и проходит обратную проверку.
	require.NotEqual(t, "secret-password", saved.PasswordHash)
	require.True(t, checkPassword(saved.PasswordHash, "secret-password"))
}

func TestCreateUser_Invalid(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Короткий username.
	_, err := svc.CreateUser(context.Background(), "ab", "a@b.com", "longenough", models.RoleStandard)
	require.ErrorIs(t, err, ErrInvalidInput)

	// Короткий пароль.
	_, err = svc.CreateUser(context.Background(), "grower", "a@b.com", "short", models.RoleStandard)
	require.ErrorIs(t, err, ErrInvalidInput)

	// Пустой email.
	_, err = svc.CreateUser(context.Background(), "grower", "", "longenough", models.RoleStandard)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateUser_UnknownRoleCoerced(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(nil)

	user, err := svc.CreateUser(context.Background(), "grower", "g@example.com", "secret-password", models.Role("superuser"))
	require.NoError(t, err)
	require.Equal(t, models.RoleStandard, user.Role)
}

func TestCreateUser_Duplicate(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists)

	_, err := svc.CreateUser(context.Background(), "grower", "g@example.com", "secret-password", models.RoleStandard)
	require.ErrorIs(t, err, ErrUserExists)
}

func TestEnsureDefaultAdmin_CreatesAndLogsIn(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	var saved *models.User
	st.EXPECT().UserByUsername(gomock.Any(), "admin").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		})

	require.NoError(t, svc.EnsureDefaultAdmin(context.Background()))
	require.NotNil(t, saved)
	require.Equal(t, models.RoleAdmin, saved.Role)

	// Дефолтные учётные данные рабочие сразу после бутстрапа.
	st.EXPECT().UserByUsername(gomock.Any(), "admin").Return(saved, nil)
	st.EXPECT().UpdateLastLogin(gomock.Any(), saved.ID, gomock.Any()).Return(nil)

	got, err := svc.Authenticate(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.Equal(t, saved.ID, got.ID)
}

func TestEnsureDefaultAdmin_Idempotent(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	admin := activeUser(t, "admin", "admin123", models.RoleAdmin)

	// Существующий admin: без создания.
	st.EXPECT().UserByUsername(gomock.Any(), "admin").Return(admin, nil)
	require.NoError(t, svc.EnsureDefaultAdmin(context.Background()))
}

func TestEnsureDefaultAdmin_BootstrapRace(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Параллельный старт успел создать admin между проверкой и вставкой.
	st.EXPECT().UserByUsername(gomock.Any(), "admin").Return(nil, storage.ErrNotFound)
	st.EXPECT().SaveUser(gomock.Any(), gomock.Any()).Return(storage.ErrAlreadyExists)

	require.NoError(t, svc.EnsureDefaultAdmin(context.Background()))
}

func TestRequireAuthenticated_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)
	token, _, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

	got, err := svc.RequireAuthenticated(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestRequireAuthenticated_GarbageToken(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	_, err := svc.RequireAuthenticated(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.RequireAuthenticated(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRequireAuthenticated_InactiveUser(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)
	token, _, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	user.Active = false
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

	_, err = svc.RequireAuthenticated(context.Background(), token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRequireRole_ForbiddenIsNotUnauthenticated(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)
	token, _, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

	// Валидный токен с недостаточной ролью — 403, не 401.
	_, err = svc.RequireRole(context.Background(), token, models.RolePremium)
	require.ErrorIs(t, err, ErrForbidden)
	require.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestRequireRole_AdminPassesAnyCheck(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	admin := activeUser(t, "root", "secret-password", models.RoleAdmin)
	token, _, err := svc.GenerateAccessToken(admin)
	require.NoError(t, err)

	st.EXPECT().UserByID(gomock.Any(), admin.ID).Return(admin, nil).Times(2)

	_, err = svc.RequireRole(context.Background(), token, models.RolePremium)
	require.NoError(t, err)

	_, err = svc.RequireRole(context.Background(), token, models.RoleStandard)
	require.NoError(t, err)
}

func TestOptionalUser_NeverErrors(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	require.Nil(t, svc.OptionalUser(context.Background(), ""))
	require.Nil(t, svc.OptionalUser(context.Background(), "garbage"))

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)
	token, _, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	require.NotNil(t, svc.OptionalUser(context.Background(), token))
}

func TestDeactivateUser(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	id := uuid.New()
	st.EXPECT().DeactivateUser(gomock.Any(), id).Return(nil)
	require.NoError(t, svc.DeactivateUser(context.Background(), id))

	st.EXPECT().DeactivateUser(gomock.Any(), id).Return(storage.ErrNotFound)
	require.ErrorIs(t, svc.DeactivateUser(context.Background(), id), storage.ErrNotFound)
}
