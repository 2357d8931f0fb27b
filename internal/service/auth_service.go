package service

import (
	"errors"
	"fmt"
	"log/slog"

	"autopay/config"
	"autopay/internal/auth"
	"autopay/internal/domain"
	"autopay/internal/models"
	"autopay/internal/repository"
	"autopay/pkg/mailer"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailExists     = errors.New("email already registered")
	ErrInvalidCreds    = errors.New("invalid email or password")
	ErrEmailUnverified = errors.New("email not verified")
	ErrInvalidOTP      = errors.New("invalid or expired code")
)

type AuthService struct {
	cfg      *config.Config
	userRepo *repository.UserRepository
	otp      *OTPService
	mail     mailer.Sender
}

func NewAuthService(cfg *config.Config, userRepo *repository.UserRepository, otp *OTPService, mail mailer.Sender) *AuthService {
	return &AuthService{cfg: cfg, userRepo: userRepo, otp: otp, mail: mail}
}

// Register creates an unverified user and emails a verification code. Tokens
// are only issued after the email is verified.
func (s *AuthService) Register(name, email, phone, password string) (*models.User, error) {
	_, err := s.userRepo.GetByEmail(email)
	if err == nil {
		return nil, ErrEmailExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(u); err != nil {
		return nil, err
	}
	if err := s.SendVerificationOTP(email); err != nil {
		slog.Warn("verification code not sent", "email", email, "err", err)
	}
	return u, nil
}

// SendVerificationOTP issues a fresh signup code for the address.
func (s *AuthService) SendVerificationOTP(email string) error {
	if _, err := s.userRepo.GetByEmail(email); err != nil {
		return err
	}
	code, err := s.otp.Generate(domain.OTPPurposeVerifyEmail, email)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Your AutoPay verification code is %s. It expires in %d minutes.",
		code, int(s.cfg.OTP.TTL.Minutes()))
	return s.mail.Send(email, "AutoPay: verify your email", body)
}

// VerifyEmail consumes the signup code and marks the user verified.
func (s *AuthService) VerifyEmail(email, code string) error {
	u, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return ErrInvalidOTP
	}
	if !s.otp.Verify(domain.OTPPurposeVerifyEmail, email, code) {
		return ErrInvalidOTP
	}
	return s.userRepo.MarkEmailVerified(u.ID)
}

func (s *AuthService) Login(email, password string) (*models.User, string, string, error) {
	u, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", "", ErrInvalidCreds
		}
		return nil, "", "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", "", ErrInvalidCreds
	}
	if !u.EmailVerified {
		return nil, "", "", ErrEmailUnverified
	}
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email)
	if err != nil {
		return nil, "", "", err
	}
	refresh, err := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	if err != nil {
		return nil, "", "", err
	}
	return u, access, refresh, nil
}

func (s *AuthService) Refresh(refreshToken string) (access, refresh string, err error) {
	userID, err := auth.ParseRefreshToken(&s.cfg.JWT, refreshToken)
	if err != nil {
		return "", "", auth.ErrInvalidToken
	}
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "", "", auth.ErrInvalidToken
	}
	access, err = auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email)
	if err != nil {
		return "", "", err
	}
	refresh, err = auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	return access, refresh, err
}

// SendPasswordReset emails a short-lived reset link. A missing account is
// reported as success to the caller to avoid address probing.
func (s *AuthService) SendPasswordReset(email, linkBase string) error {
	u, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	token, err := auth.GenerateResetToken(&s.cfg.JWT, u.ID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Dear %s,\n\nReset your AutoPay password here:\n%s?token=%s\n\nThe link expires in %d minutes.",
		u.Name, linkBase, token, int(s.cfg.JWT.ResetExpiry.Minutes()))
	return s.mail.Send(u.Email, "AutoPay: password reset", body)
}

func (s *AuthService) ResetPassword(token, newPassword string) error {
	userID, err := auth.ParseResetToken(&s.cfg.JWT, token)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.userRepo.SetPasswordHash(userID, string(hash))
}

// SendBankOTP issues a bank-link code for the user's address.
func (s *AuthService) SendBankOTP(userID uint) error {
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	code, err := s.otp.Generate(domain.OTPPurposeLinkBank, u.Email)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Your AutoPay bank-link code is %s. It expires in %d minutes.",
		code, int(s.cfg.OTP.TTL.Minutes()))
	return s.mail.Send(u.Email, "AutoPay: confirm bank link", body)
}

// VerifyBankOTP consumes the bank-link code and records the linked bank.
func (s *AuthService) VerifyBankOTP(userID uint, code, bankName string) error {
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if !s.otp.Verify(domain.OTPPurposeLinkBank, u.Email, code) {
		return ErrInvalidOTP
	}
	return s.userRepo.SetBankName(u.ID, bankName)
}
