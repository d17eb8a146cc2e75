package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/avatar"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/notify"
	"github.com/sakif/task-manager/internal/repository"
)

// ProfileService handles changes to the caller's own account: profile
// fields, avatar, and account deletion.
type ProfileService struct {
	users     repository.UserRepository
	tasks     repository.TaskRepository
	passwords *auth.PasswordService
	avatars   *avatar.Normalizer
	mailer    notify.Mailer
	logger    *slog.Logger
}

func NewProfileService(
	users repository.UserRepository,
	tasks repository.TaskRepository,
	passwords *auth.PasswordService,
	avatars *avatar.Normalizer,
	mailer notify.Mailer,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		users:     users,
		tasks:     tasks,
		passwords: passwords,
		avatars:   avatars,
		mailer:    mailer,
		logger:    logger,
	}
}

// ProfilePatch is a type-checked partial profile update. Nil fields are left
// unchanged; values are validated by UpdateProfile.
type ProfilePatch struct {
	Name     *string
	Age      *int
	Email    *string
	Password *string
}

// ParseProfilePatch checks a raw JSON update against the allow-list
// {name, age, email, password}. Any other key rejects the whole patch.
func ParseProfilePatch(raw map[string]json.RawMessage) (ProfilePatch, error) {
	var patch ProfilePatch
	for key, value := range raw {
		var err error
		switch key {
		case "name":
			patch.Name = new(string)
			err = decodeField(key, value, patch.Name)
		case "age":
			patch.Age = new(int)
			err = decodeField(key, value, patch.Age)
		case "email":
			patch.Email = new(string)
			err = decodeField(key, value, patch.Email)
		case "password":
			patch.Password = new(string)
			err = decodeField(key, value, patch.Password)
		default:
			err = apperror.ValidationFailed(key, "Invalid updates!")
		}
		if err != nil {
			return ProfilePatch{}, err
		}
	}
	return patch, nil
}

// UpdateProfile validates every supplied field and saves them together.
// Nothing is written if any field is invalid.
func (s *ProfileService) UpdateProfile(ctx context.Context, user *model.User, patch ProfilePatch) (*model.User, error) {
	updated := *user

	if patch.Name != nil {
		name, err := normalizeName(*patch.Name)
		if err != nil {
			return nil, err
		}
		updated.Name = name
	}
	if patch.Age != nil {
		if err := validateAge(*patch.Age); err != nil {
			return nil, err
		}
		updated.Age = *patch.Age
	}
	if patch.Email != nil {
		email, err := normalizeEmail(*patch.Email)
		if err != nil {
			return nil, err
		}
		updated.Email = email
	}
	if patch.Password != nil {
		password, err := normalizePassword(*patch.Password)
		if err != nil {
			return nil, err
		}
		hash, err := s.passwords.Hash(password)
		if err != nil {
			return nil, apperror.Internal("Unable to update profile", err)
		}
		updated.PasswordHash = hash
	}

	if err := s.users.UpdateUser(ctx, &updated); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("email", "Email is already in use")
		}
		return nil, storeError("Unable to update profile", err)
	}

	*user = updated
	s.logger.Info("profile updated", slog.String("userID", user.ID))
	return user, nil
}

// DeleteAccount removes the user and then every task they own.
//
// The two deletes are separate statements. If the process dies in between,
// the tasks are left without an owner; nothing can reach them any more
// because every task query is owner-scoped.
func (s *ProfileService) DeleteAccount(ctx context.Context, user *model.User) (*model.User, error) {
	if err := s.mailer.SendGoodbye(ctx, user.Email, user.Name); err != nil {
		s.logger.Warn("goodbye email failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.users.DeleteUser(ctx, user.ID); err != nil {
		return nil, storeError("Unable to delete account", err)
	}

	n, err := s.tasks.DeleteTasksByOwner(ctx, user.ID)
	if err != nil {
		s.logger.Error("orphaned tasks after account deletion",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Internal("Unable to delete account tasks", err)
	}

	s.logger.Info("account deleted",
		slog.String("userID", user.ID),
		slog.Int64("tasksDeleted", n),
	)
	return user, nil
}

// SetAvatar validates an upload, normalizes it to a square PNG and stores it.
func (s *ProfileService) SetAvatar(ctx context.Context, user *model.User, filename string, data []byte) error {
	png, err := s.avatars.Normalize(filename, data)
	if err != nil {
		return avatarError(err)
	}
	if err := s.users.SetAvatar(ctx, user.ID, png); err != nil {
		return storeError("Unable to save avatar", err)
	}

	s.logger.Info("avatar updated",
		slog.String("userID", user.ID),
		slog.Int("bytes", len(png)),
	)
	return nil
}

// CheckAvatar applies the type and size rules before the upload body is read
// in full.
func (s *ProfileService) CheckAvatar(filename string, size int64) error {
	if err := s.avatars.Check(filename, size); err != nil {
		return avatarError(err)
	}
	return nil
}

// MaxAvatarBytes is the upload limit.
func (s *ProfileService) MaxAvatarBytes() int64 {
	return s.avatars.MaxBytes()
}

func (s *ProfileService) ClearAvatar(ctx context.Context, user *model.User) error {
	if err := s.users.ClearAvatar(ctx, user.ID); err != nil {
		return storeError("Unable to remove avatar", err)
	}
	return nil
}

// GetAvatar returns the stored PNG of any user. It needs no authentication.
func (s *ProfileService) GetAvatar(ctx context.Context, userID string) ([]byte, error) {
	data, err := s.users.GetAvatar(ctx, userID)
	if err != nil {
		return nil, storeError("Unable to load avatar", err)
	}
	return data, nil
}

func avatarError(err error) error {
	switch {
	case errors.Is(err, avatar.ErrUnsupportedType):
		return apperror.ValidationFailed("avatar", "Please upload an image (jpg, jpeg or png)")
	case errors.Is(err, avatar.ErrTooLarge):
		return apperror.ValidationFailed("avatar", "File too large")
	case errors.Is(err, avatar.ErrUndecodable):
		return apperror.ValidationFailed("avatar", "File is not a readable image")
	default:
		return apperror.Internal("Unable to process avatar", err)
	}
}
