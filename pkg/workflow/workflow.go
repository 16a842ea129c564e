// Package workflow is the calling layer of the sync engine: it loads the
// user's portal credentials, runs the portal client and applies the
// reconciliation and refresh outcomes to the local store.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openadeia/teesync/pkg/permit"
	"github.com/openadeia/teesync/pkg/storage"
	"github.com/openadeia/teesync/pkg/tee"
	"github.com/openadeia/teesync/pkg/vault"
)

var (
	ErrNothingToImport    = errors.New("Δεν δόθηκαν αιτήσεις για εισαγωγή")
	ErrProjectNotLinked   = errors.New("Φάκελος δεν βρέθηκε ή δεν συνδέεται με ΤΕΕ")
	ErrCredentialDecrypt  = errors.New("Αδυναμία αποκρυπτογράφησης κωδικού ΤΕΕ.")
	ErrInvalidCredentials = errors.New("Συμπληρώστε username και κωδικό ΤΕΕ.")
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Portal is the part of the portal client the engine needs. *tee.Client
// implements it.
type Portal interface {
	Sync(ctx context.Context, cred tee.Credential) ([]permit.Application, error)
	RefreshPermit(ctx context.Context, cred tee.Credential, permitCode string, local permit.Stage) (*tee.RefreshResult, error)
}

type Engine struct {
	Store  *storage.DB
	Portal Portal
	// Secret is the key the stored portal passwords are encrypted with.
	Secret string
	Log    Logger // optional; nil = no logging

	now func() time.Time
}

func (e *Engine) log() Logger {
	if e.Log == nil {
		return nopLogger{}
	}
	return e.Log
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// HTTPStatus maps an engine error to the status code of the host API.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNothingToImport), errors.Is(err, ErrInvalidCredentials):
		return http.StatusBadRequest
	case errors.Is(err, ErrProjectNotLinked):
		return http.StatusNotFound
	case errors.Is(err, ErrCredentialDecrypt):
		return http.StatusInternalServerError
	}
	return tee.HTTPStatus(err)
}

// Status reports whether a user has portal credentials on record.
type Status struct {
	Configured  bool    `json:"configured"`
	TEEUsername *string `json:"tee_username"`
}

func (e *Engine) Status(ctx context.Context, userID int64) (*Status, error) {
	uc, err := e.Store.GetCredential(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, err
	}
	st := &Status{Configured: uc.Configured()}
	if uc.TEEUsername != "" {
		name := uc.TEEUsername
		st.TEEUsername = &name
	}
	return st, nil
}

// SetCredentials encrypts and stores a user's portal login.
func (e *Engine) SetCredentials(ctx context.Context, userID int64, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	enc, err := vault.Encrypt(e.Secret, password)
	if err != nil {
		return fmt.Errorf("encrypting portal password: %w", err)
	}
	return e.Store.SetCredential(ctx, userID, username, enc)
}

func (e *Engine) credential(ctx context.Context, userID int64) (tee.Credential, error) {
	uc, err := e.Store.GetCredential(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) || (err == nil && !uc.Configured()) {
		return tee.Credential{}, tee.MissingCredentials()
	}
	if err != nil {
		return tee.Credential{}, err
	}
	password, err := vault.Decrypt(e.Secret, uc.TEEPasswordEnc)
	if err != nil {
		e.log().Errorf("cannot decrypt portal password of user %d: %v", userID, err)
		return tee.Credential{}, ErrCredentialDecrypt
	}
	return tee.Credential{Username: uc.TEEUsername, Password: password}, nil
}
