package services

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"merry-chat/config"
	chaterrors "merry-chat/errors"
	"merry-chat/models"
	"merry-chat/repository"
	"merry-chat/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

type RegisterRequest struct {
	Username     string `json:"username" validate:"required,min=3,max=20,alphanum"`
	Password     string `json:"password" validate:"required,min=6,max=72"`
	Name         string `json:"name" validate:"required,max=50"`
	ImageProfile string `json:"image_profile" validate:"omitempty,url"`
}

type AuthService struct {
	users  repository.UserRepository
	config *config.Config
	log    *slog.Logger
}

func NewAuthService(userRepo repository.UserRepository, cfg *config.Config, log *slog.Logger) *AuthService {
	return &AuthService{users: userRepo, config: cfg, log: log}
}

func (s *AuthService) Register(req RegisterRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", chaterrors.ErrInvalidRequest, err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Password:     string(hashed),
		Name:         req.Name,
		ImageProfile: req.ImageProfile,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}
	s.log.Info("User registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

func (s *AuthService) Login(username, password string) (string, *models.User, error) {
	if username == "" || password == "" {
		return "", nil, fmt.Errorf("%w: username and password are required", chaterrors.ErrInvalidRequest)
	}

	u, err := s.users.FindByUsername(username)
	if err != nil {
		// Same answer for unknown users and bad passwords
		if errors.Is(err, chaterrors.ErrUserNotFound) {
			return "", nil, chaterrors.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return "", nil, chaterrors.ErrInvalidCredentials
	}
	token, err := s.CreateToken(u.ID, u.Username)
	return token, u, err
}

func (s *AuthService) CreateToken(userID, username string) (string, error) {
	return utils.GenerateJWT(s.config.JWTSecret, userID, username, s.config.JWTTTL())
}

// ParseToken accepts a bare token or an "Authorization: Bearer" value.
func (s *AuthService) ParseToken(token string) (string, string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	uid, uname, err := utils.ParseJWT(s.config.JWTSecret, token)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", chaterrors.ErrInvalidToken, err)
	}
	return uid, uname, nil
}

func (s *AuthService) Profile(userID string) (*models.Profile, error) {
	u, err := s.users.FindByID(userID)
	if err != nil {
		return nil, err
	}
	p := u.Profile()
	return &p, nil
}
