package service

import (
	"context"
	"testing"
	"time"

	"github.com/pribylovaa/orchard-analysis/internal/models"
	"github.com/pribylovaa/orchard-analysis/internal/storage"
	"github.com/pribylovaa/orchard-analysis/mocks"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestIssueTokenPair_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RolePremium)

	var session *models.Session
	st.EXPECT().SaveSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *models.Session) error {
			session = s
			return nil
		})

	pair, err := svc.IssueTokenPair(context.Background(), user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.WithinDuration(t, time.Now().Add(svc.cfg.AccessTokenTTL), pair.AccessExpiresAt, 2*time.Second)

	// Access-токен проходит проверку и несёт роль владельца.
	claims, err := svc.VerifyAccessToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, user.Username, claims.Username)
	require.Equal(t, models.RolePremium, claims.Role)

	// В хранилище попадает хэш refresh-токена, не сам токен.
	require.NotNil(t, session)
	require.Equal(t, user.ID, session.UserID)
	require.NotEqual(t, pair.RefreshToken, session.TokenHash)
	require.Equal(t, hashToken(pair.RefreshToken), session.TokenHash)
	require.True(t, session.Active)
}

func TestVerifyAccessToken_TypeIsolation(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	st.EXPECT().SaveSession(gomock.Any(), gomock.Any()).Return(nil)

	refresh, err := svc.GenerateRefreshToken(context.Background(), uuid.New())
	require.NoError(t, err)

	// Refresh-токен не принимается как access.
	_, err = svc.VerifyAccessToken(context.Background(), refresh)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Access-токен не принимается как refresh.
	user := activeUser(t, "grower", "secret-password", models.RoleStandard)
	access, _, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	_, _, err = svc.RefreshAccessToken(context.Background(), access)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.AccessTokenTTL = -time.Minute

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	svc := New(mocks.NewMockStorage(ctrl), cfg)

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)
	token, _, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccessToken_WrongSecret(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	otherCfg := testCfg()
	otherCfg.JWTSecret = "another-secret"
	other := New(mocks.NewMockStorage(ctrl), otherCfg)

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)
	token, _, err := other.GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyAccessToken_Garbage(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := svc.VerifyAccessToken(context.Background(), token)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
}

func TestRevokeToken_AccessImmediate(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)
	token, _, err := svc.GenerateAccessToken(user)
	require.NoError(t, err)

	_, err = svc.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)

	svc.RevokeToken(context.Background(), token)

	// Отзыв действует немедленно, до истечения exp.
	_, err = svc.VerifyAccessToken(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevokeToken_RefreshDeactivatesSession(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	var session *models.Session
	st.EXPECT().SaveSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *models.Session) error {
			session = s
			return nil
		})

	refresh, err := svc.GenerateRefreshToken(context.Background(), uuid.New())
	require.NoError(t, err)
	require.NotNil(t, session)

	st.EXPECT().RevokeSession(gomock.Any(), session.ID).Return(nil)

	svc.RevokeToken(context.Background(), refresh)
}

func TestRevokeToken_GarbageDoesNotPanic(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	// Мусор попадает в blacklist с консервативным дедлайном.
	svc.RevokeToken(context.Background(), "garbage")
	require.True(t, svc.revoked.contains("garbage"))
}

func TestRefreshAccessToken_OK(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)

	var session *models.Session
	st.EXPECT().SaveSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *models.Session) error {
			session = s
			return nil
		})

	refresh, err := svc.GenerateRefreshToken(context.Background(), user.ID)
	require.NoError(t, err)

	// Роль могла поменяться после выпуска refresh: новый access несёт текущую.
	user.Role = models.RolePremium

	st.EXPECT().SessionByID(gomock.Any(), session.ID).Return(session, nil)
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)
	st.EXPECT().TouchSession(gomock.Any(), session.ID, gomock.Any()).Return(nil)

	access, expires, err := svc.RefreshAccessToken(context.Background(), refresh)
	require.NoError(t, err)
	require.False(t, expires.IsZero())

	claims, err := svc.VerifyAccessToken(context.Background(), access)
	require.NoError(t, err)
	require.Equal(t, models.RolePremium, claims.Role)
}

func TestRefreshAccessToken_RevokedSession(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	var session *models.Session
	st.EXPECT().SaveSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *models.Session) error {
			session = s
			return nil
		})

	refresh, err := svc.GenerateRefreshToken(context.Background(), uuid.New())
	require.NoError(t, err)

	revoked := *session
	revoked.Active = false
	st.EXPECT().SessionByID(gomock.Any(), session.ID).Return(&revoked, nil)

	_, _, err = svc.RefreshAccessToken(context.Background(), refresh)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshAccessToken_UnknownSession(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	var session *models.Session
	st.EXPECT().SaveSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *models.Session) error {
			session = s
			return nil
		})

	refresh, err := svc.GenerateRefreshToken(context.Background(), uuid.New())
	require.NoError(t, err)

	st.EXPECT().SessionByID(gomock.Any(), session.ID).Return(nil, storage.ErrNotFound)

	_, _, err = svc.RefreshAccessToken(context.Background(), refresh)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshAccessToken_InactiveUser(t *testing.T) {
	t.Parallel()

	svc, st, ctrl := newSvc(t)
	defer ctrl.Finish()

	user := activeUser(t, "grower", "secret-password", models.RoleStandard)
	user.Active = false

	var session *models.Session
	st.EXPECT().SaveSession(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s *models.Session) error {
			session = s
			return nil
		})

	refresh, err := svc.GenerateRefreshToken(context.Background(), user.ID)
	require.NoError(t, err)

	st.EXPECT().SessionByID(gomock.Any(), session.ID).Return(session, nil)
	st.EXPECT().UserByID(gomock.Any(), user.ID).Return(user, nil)

	_, _, err = svc.RefreshAccessToken(context.Background(), refresh)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSweepRevokedTokens(t *testing.T) {
	t.Parallel()

	svc, _, ctrl := newSvc(t)
	defer ctrl.Finish()

	svc.revoked.add("stale", time.Now().Add(-time.Minute))
	svc.revoked.add("fresh", time.Now().Add(time.Hour))

	svc.SweepRevokedTokens(time.Now())

	require.False(t, svc.revoked.contains("stale"))
	require.True(t, svc.revoked.contains("fresh"))
}
