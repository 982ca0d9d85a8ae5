//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"fmt"

	"roadlink/auth"
	"roadlink/domain"
	"roadlink/errors"
	"roadlink/repositories"
)

type IAuthService interface {
	Register(req auth.RegisterRequest) (Token, domain.Identity, error)
	Login(email, password string) (Token, domain.Identity, error)
	Verify(token string) (domain.Identity, error)
}

type Token string

func (t Token) String() string {
	return string(t)
}

type AuthService struct {
	users         repositories.IUserRepository
	authenticator *auth.Authenticator
}

func NewAuthService(users repositories.IUserRepository, authenticator *auth.Authenticator) IAuthService {
	return &AuthService{users: users, authenticator: authenticator}
}

func (s *AuthService) Register(req auth.RegisterRequest) (Token, domain.Identity, error) {
	// Validate business rules before any expensive cryptographic operation.
	if err := auth.ValidateRegister(req); err != nil {
		return "", domain.Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// Hash in the service layer to keep the repository unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", domain.Identity{}, fmt.Errorf("hashing failed: %w", err)
	}

	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}

	userID, err := s.users.CreateUser(req.Name, req.Email, req.Phone, hashedPassword, role)
	if err != nil {
		return "", domain.Identity{}, err // Propagates ErrUserAlreadyExists if email is taken.
	}

	identity := domain.Identity{UserID: userID, Name: req.Name, Role: role}
	token, err := s.authenticator.GenerateToken(identity)
	if err != nil {
		return "", domain.Identity{}, errors.ErrTokenGeneration
	}
	return Token(token), identity, nil
}

func (s *AuthService) Login(email, password string) (Token, domain.Identity, error) {
	user, err := s.users.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks.
		return "", domain.Identity{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", domain.Identity{}, errors.ErrInvalidCredentials
	}

	identity := domain.Identity{UserID: user.ID, Name: user.Name, Role: user.Role}
	token, err := s.authenticator.GenerateToken(identity)
	if err != nil {
		return "", domain.Identity{}, errors.ErrTokenGeneration
	}
	return Token(token), identity, nil
}

func (s *AuthService) Verify(token string) (domain.Identity, error) {
	return s.authenticator.Verify(token)
}
