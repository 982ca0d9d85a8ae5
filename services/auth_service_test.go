package services

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"roadlink/auth"
	"roadlink/domain"
	"roadlink/errors"
	"roadlink/repositories"
)

func newAuthService(t *testing.T) IAuthService {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewAuthService(
		repositories.NewUserRepository(db),
		auth.NewAuthenticator("test-secret", time.Hour),
	)
}

func validRegistration() auth.RegisterRequest {
	return auth.RegisterRequest{
		Name:     "Priya Sharma",
		Email:    "priya@example.com",
		Phone:    "+33612345678",
		Password: "Str0ng&Secret!pass",
	}
}

func TestAuthService_RegisterThenLogin(t *testing.T) {
	req := require.New(t)
	svc := newAuthService(t)

	token, identity, err := svc.Register(validRegistration())
	req.NoError(err)
	req.NotEmpty(token)
	req.Equal("Priya Sharma", identity.Name)
	req.Equal(domain.RoleUser, identity.Role)
	req.NotEmpty(identity.UserID)

	token, logged, err := svc.Login("priya@example.com", "Str0ng&Secret!pass")
	req.NoError(err)
	req.NotEmpty(token)
	req.Equal(identity.UserID, logged.UserID)
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	req := require.New(t)
	svc := newAuthService(t)

	_, _, err := svc.Register(validRegistration())
	req.NoError(err)

	_, _, err = svc.Register(validRegistration())
	req.ErrorIs(err, errors.ErrUserAlreadyExists)
}

func TestAuthService_RegisterRejectsWeakPassword(t *testing.T) {
	req := require.New(t)
	svc := newAuthService(t)

	reg := validRegistration()
	reg.Password = "alllowercasebutlong"

	_, _, err := svc.Register(reg)
	req.ErrorIs(err, errors.ErrInvalidPassword)
}

func TestAuthService_LoginWrongPassword(t *testing.T) {
	req := require.New(t)
	svc := newAuthService(t)

	_, _, err := svc.Register(validRegistration())
	req.NoError(err)

	_, _, err = svc.Login("priya@example.com", "not-the-password")
	req.ErrorIs(err, errors.ErrInvalidCredentials)
}

func TestAuthService_LoginUnknownEmail(t *testing.T) {
	req := require.New(t)
	svc := newAuthService(t)

	_, _, err := svc.Login("nobody@example.com", "whatever-password")
	req.ErrorIs(err, errors.ErrInvalidCredentials)
}

func TestAuthService_VerifyRoundTrip(t *testing.T) {
	req := require.New(t)
	svc := newAuthService(t)

	token, identity, err := svc.Register(validRegistration())
	req.NoError(err)

	verified, err := svc.Verify(token.String())
	req.NoError(err)
	req.Equal(identity, verified)

	_, err = svc.Verify("not-a-token")
	req.ErrorIs(err, errors.ErrUnauthenticated)
}
