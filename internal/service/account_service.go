package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

type AccountService interface {
	Register(ctx context.Context, in *transfer.AccountCreation) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	Get(ctx context.Context, id int64) (*models.Account, error)
	Update(ctx context.Context, id int64, in *transfer.AccountUpdate) (*models.Account, error)
	Delete(ctx context.Context, id int64) error
	// Probe checks the account with the publisher and records the result
	// as active or inactive.
	Probe(ctx context.Context, id int64) (*models.Account, error)
	Credentials(ctx context.Context, id int64) (models.Credentials, error)
}

type accountService struct {
	ar        repository.AccountRepository
	publisher Publisher
	secretKey []byte
}

func NewAccountService(ar repository.AccountRepository, publisher Publisher, secretKey string) AccountService {
	return &accountService{
		ar:        ar,
		publisher: publisher,
		secretKey: []byte(secretKey),
	}
}

func (s *accountService) Register(ctx context.Context, in *transfer.AccountCreation) (*models.Account, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: missing account data", models.ErrValidation)
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", models.ErrValidation)
	}
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password cannot be empty", models.ErrValidation)
	}

	sealed, err := utils.Encrypt([]byte(in.Password), s.secretKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt credentials: %w", err)
	}

	account := &models.Account{
		Username:        username,
		EncryptedSecret: sealed,
		Status:          models.AccountStatusActive,
	}
	if _, err := s.ar.Create(ctx, account); err != nil {
		return nil, err
	}

	slog.Info("account registered", "account_id", account.ID, "username", account.Username)
	return account, nil
}

func (s *accountService) List(ctx context.Context) ([]*models.Account, error) {
	return s.ar.List(ctx)
}

func (s *accountService) Get(ctx context.Context, id int64) (*models.Account, error) {
	account, err := s.ar.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", id, models.ErrNotFound)
	}
	return account, nil
}

func (s *accountService) Update(ctx context.Context, id int64, in *transfer.AccountUpdate) (*models.Account, error) {
	if in == nil || (in.Status == "" && in.Password == "") {
		return nil, fmt.Errorf("%w: nothing to update", models.ErrValidation)
	}

	status := models.AccountStatus(in.Status)
	if in.Status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, in.Status)
	}

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	if in.Password != "" {
		sealed, err := utils.Encrypt([]byte(in.Password), s.secretKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt credentials: %w", err)
		}
		if err := s.ar.UpdateSecret(ctx, id, sealed); err != nil {
			return nil, err
		}
	}

	if in.Status != "" {
		if err := s.ar.UpdateStatus(ctx, id, status); err != nil {
			return nil, err
		}
		slog.Info("account status updated", "account_id", id, "status", status)
	}

	return s.Get(ctx, id)
}

func (s *accountService) Delete(ctx context.Context, id int64) error {
	err := s.ar.Remove(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("account %d: %w", id, models.ErrNotFound)
	}
	return err
}

func (s *accountService) Probe(ctx context.Context, id int64) (*models.Account, error) {
	creds, err := s.Credentials(ctx, id)
	if err != nil {
		return nil, err
	}

	status := models.AccountStatusActive
	if err := s.publisher.ProbeAccount(ctx, creds); err != nil {
		slog.Warn("account probe failed", "account_id", id, "error", err)
		status = models.AccountStatusInactive
	}

	if err := s.ar.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *accountService) Credentials(ctx context.Context, id int64) (models.Credentials, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return models.Credentials{}, err
	}

	secret, err := utils.Decrypt(account.EncryptedSecret, s.secretKey)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("decrypt credentials for account %d: %w", id, err)
	}

	return models.Credentials{
		AccountID: account.ID,
		Username:  account.Username,
		Secret:    secret,
	}, nil
}
