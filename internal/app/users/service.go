package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Overland-East-Bay/trip-tracker-api/internal/domain"
	clockport "github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/clock"
	"github.com/Overland-East-Bay/trip-tracker-api/internal/ports/out/userrepo"
)

type Service struct {
	repo userrepo.Repository
	clk  clockport.Clock
	log  *zap.Logger

	newUserID func() domain.UserID
}

func NewService(repo userrepo.Repository, clk clockport.Clock, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo: repo,
		clk:  clk,
		log:  log.Named("users"),
		newUserID: func() domain.UserID {
			return domain.UserID(uuid.NewString())
		},
	}
}

// SetNewUserIDForTest overrides user ID generation for deterministic tests.
// It should not be used in production code.
func (s *Service) SetNewUserIDForTest(fn func() domain.UserID) {
	if fn != nil {
		s.newUserID = fn
	}
}

// ResolveCaller maps an authenticated subject to its provisioned user.
func (s *Service) ResolveCaller(ctx context.Context, subject domain.SubjectID) (domain.User, error) {
	u, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return domain.User{}, errNotProvisioned()
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *Service) GetMe(ctx context.Context, subject domain.SubjectID) (domain.User, error) {
	return s.ResolveCaller(ctx, subject)
}

func (s *Service) CreateMe(ctx context.Context, subject domain.SubjectID, in CreateMeInput) (domain.User, error) {
	if _, err := s.repo.GetBySubject(ctx, subject); err == nil {
		return domain.User{}, errAlreadyExists()
	} else if !errors.Is(err, userrepo.ErrNotFound) {
		return domain.User{}, err
	}

	displayName := domain.NormalizeHumanName(in.DisplayName)
	if displayName == "" {
		return domain.User{}, errValidation("displayName", "must be non-empty")
	}
	email := strings.TrimSpace(in.Email)
	if err := validateEmail(email); err != nil {
		return domain.User{}, errValidation("email", err.Error())
	}

	now := s.clk.Now().UTC()
	u := domain.User{
		ID:          s.newUserID(),
		Subject:     subject,
		DisplayName: displayName,
		Email:       email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		// A concurrent CreateMe for the same subject lost the race.
		if errors.Is(err, userrepo.ErrSubjectAlreadyBound) || errors.Is(err, userrepo.ErrAlreadyExists) {
			return domain.User{}, errAlreadyExists()
		}
		return domain.User{}, err
	}
	s.log.Info("user provisioned", zap.String("userId", string(u.ID)))
	return u, nil
}

func (s *Service) UpdateMe(ctx context.Context, subject domain.SubjectID, in UpdateMeInput) (domain.User, error) {
	u, err := s.ResolveCaller(ctx, subject)
	if err != nil {
		return domain.User{}, err
	}

	if in.DisplayName.IsSpecified() {
		if in.DisplayName.IsNull() {
			return domain.User{}, errValidation("displayName", "cannot be null")
		}
		name := domain.NormalizeHumanName(in.DisplayName.Value())
		if name == "" {
			return domain.User{}, errValidation("displayName", "must be non-empty")
		}
		u.DisplayName = name
	}
	if in.Email.IsSpecified() {
		if in.Email.IsNull() {
			return domain.User{}, errValidation("email", "cannot be null")
		}
		email := strings.TrimSpace(in.Email.Value())
		if err := validateEmail(email); err != nil {
			return domain.User{}, errValidation("email", err.Error())
		}
		u.Email = email
	}

	u.UpdatedAt = s.clk.Now().UTC()
	if err := s.repo.Update(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return domain.User{}, errNotProvisioned()
		}
		return domain.User{}, err
	}
	return u, nil
}

func errAlreadyExists() *Error {
	return &Error{
		Status:  409,
		Code:    "USER_ALREADY_EXISTS",
		Message: "A user profile already exists for the authenticated subject.",
	}
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("must be non-empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return err
	}
	// Ensure no "Name <email@x>" format sneaks in.
	if addr.Address != email {
		return errors.New("must be a bare email address")
	}
	return nil
}
