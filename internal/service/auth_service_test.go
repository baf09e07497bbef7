package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/repository"
)

type mockAuthRepo struct {
	mock.Mock
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockAuthRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockAuthRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockAuthRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockAuthRepo) UpsertProfile(ctx context.Context, profile *models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *mockAuthRepo) CreateSession(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockAuthRepo) DeleteSession(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func (m *mockAuthRepo) UpdateLastLoginAt(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	tm := NewTokenManager("access-secret-for-tests", "refresh-secret-for-tests", 15*time.Minute, 720*time.Hour)
	return NewAuthService(repo, tm)
}

func TestAuthService_Register(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newAuthService(repo)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ivan@example.com").Return(nil, repository.ErrUserNotFound)
	repo.On("Create", ctx, mock.MatchedBy(func(u *models.User) bool {
		return u.Email == "ivan@example.com" && u.Role == models.RoleClient && u.Username == "ivan"
	})).Return(nil)
	repo.On("UpsertProfile", ctx, mock.AnythingOfType("*models.Profile")).Return(nil)
	repo.On("CreateSession", ctx, mock.AnythingOfType("*models.Session")).Return(nil)

	result, err := svc.Register(ctx, RegisterInput{
		Email:       "ivan@example.com",
		Password:    "Password1",
		DisplayName: "Иван",
	}, map[string]string{"ip": "127.0.0.1"})
	assert.NoError(t, err)
	assert.NotEmpty(t, result.TokenPair.AccessToken)
	assert.NotEmpty(t, result.TokenPair.RefreshToken)
	assert.Equal(t, "Иван", result.Profile.DisplayName)
	repo.AssertExpectations(t)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newAuthService(repo)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ivan@example.com").Return(&models.User{ID: uuid.New()}, nil)

	_, err := svc.Register(ctx, RegisterInput{Email: "ivan@example.com", Password: "Password1"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "уже зарегистрирован")
}

func TestAuthService_Register_AdminRoleRejected(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newAuthService(repo)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "boss@example.com").Return(nil, repository.ErrUserNotFound)

	_, err := svc.Register(ctx, RegisterInput{
		Email:    "boss@example.com",
		Password: "Password1",
		Role:     models.RoleAdmin,
	}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "недопустимая роль")
}

func TestAuthService_Login(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newAuthService(repo)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("Password1"), bcrypt.MinCost)
	userID := uuid.New()
	user := &models.User{ID: userID, Email: "ivan@example.com", PasswordHash: string(hash), IsActive: true, Role: models.RoleClient}

	repo.On("GetByEmail", ctx, "ivan@example.com").Return(user, nil)
	repo.On("UpdateLastLoginAt", ctx, userID).Return(nil)
	repo.On("CreateSession", ctx, mock.AnythingOfType("*models.Session")).Return(nil)
	repo.On("GetProfile", ctx, userID).Return(&models.Profile{UserID: userID, DisplayName: "Иван"}, nil)

	result, err := svc.Login(ctx, LoginInput{Email: "ivan@example.com", Password: "Password1"}, nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, result.TokenPair.AccessToken)

	gotID, role, err := svc.tokenManager.ParseAccess(result.TokenPair.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, models.RoleClient, role)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newAuthService(repo)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("Password1"), bcrypt.MinCost)
	repo.On("GetByEmail", ctx, "ivan@example.com").
		Return(&models.User{ID: uuid.New(), PasswordHash: string(hash), IsActive: true}, nil)

	_, err := svc.Login(ctx, LoginInput{Email: "ivan@example.com", Password: "WrongPass1"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "неверный email или пароль")
}

func TestAuthService_Login_Inactive(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newAuthService(repo)
	ctx := context.Background()

	repo.On("GetByEmail", ctx, "ivan@example.com").
		Return(&models.User{ID: uuid.New(), IsActive: false}, nil)

	_, err := svc.Login(ctx, LoginInput{Email: "ivan@example.com", Password: "Password1"}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "заблокирован")
}

func TestAuthService_Refresh_RotatesSession(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newAuthService(repo)
	ctx := context.Background()

	userID := uuid.New()
	user := &models.User{ID: userID, Role: models.RoleStudent, IsActive: true}
	pair, _, _, err := svc.tokenManager.GeneratePair(user)
	assert.NoError(t, err)

	repo.On("GetByID", ctx, userID).Return(user, nil)
	repo.On("DeleteSession", ctx, pair.RefreshToken).Return(nil)
	repo.On("CreateSession", ctx, mock.AnythingOfType("*models.Session")).Return(nil)

	newPair, err := svc.Refresh(ctx, pair.RefreshToken, nil)
	assert.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, newPair.RefreshToken)
	repo.AssertExpectations(t)
}

func TestAuthService_Refresh_GarbageToken(t *testing.T) {
	repo := new(mockAuthRepo)
	svc := newAuthService(repo)
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "не-jwt-вовсе", nil)
	assert.Error(t, err)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestTokenManager_ParseAccess_WrongSecret(t *testing.T) {
	tm := NewTokenManager("secret-a", "refresh-a", time.Minute, time.Hour)
	other := NewTokenManager("secret-b", "refresh-b", time.Minute, time.Hour)

	pair, _, _, err := tm.GeneratePair(&models.User{ID: uuid.New(), Role: models.RoleClient})
	assert.NoError(t, err)

	_, _, err = other.ParseAccess(pair.AccessToken)
	assert.Error(t, err)
}

func TestTokenManager_RefreshNotAcceptedAsAccess(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)

	pair, _, _, err := tm.GeneratePair(&models.User{ID: uuid.New(), Role: models.RoleClient})
	assert.NoError(t, err)

	// Refresh подписан другим секретом и как access не проходит.
	_, _, err = tm.ParseAccess(pair.RefreshToken)
	assert.Error(t, err)
}

func TestTokenManager_RejectsUnsignedToken(t *testing.T) {
	tm := NewTokenManager("access-secret", "refresh-secret", time.Minute, time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	assert.NoError(t, err)

	_, _, err = tm.ParseAccess(unsigned)
	assert.Error(t, err)

	_, err = tm.ParseRefresh(unsigned)
	assert.Error(t, err)
}
