// Package escrow implements the master-key escrow engine: every user holds
// their own wrapped copy of the single vault master secret, bound to their
// login password, and the engine loads, verifies and re-wraps that copy as
// passwords and the secret itself change.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/cryptox"
	"github.com/dmitrijs2005/passvault/internal/events"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/masterkeys"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/users"
)

// rotationContext is the derivation context for the rotation chain. The
// chain is installation-wide, so it cannot be keyed by a login name.
const rotationContext = "rotation-chain"

// Result carries the unlock outcome. Secret is populated only on StatusOK
// and must stay request-scoped; it is never persisted or logged.
type Result struct {
	Status Status
	Secret []byte
}

// Engine drives the escrow state machine for one installation. It is
// stateless between calls; all durable state lives in the repositories.
type Engine struct {
	users users.Repository
	keys  masterkeys.Repository
	salt  []byte
	sink  events.Sink
	log   logging.Logger
}

type Option func(*Engine)

// WithSink routes state-transition events to the given sink.
func WithSink(s events.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

func NewEngine(users users.Repository, keys masterkeys.Repository, installSalt []byte, log logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		users: users,
		keys:  keys,
		salt:  installSalt,
		sink:  events.NopSink{},
		log:   log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) transition(ctx context.Context, user *models.User, op string, st Status) {
	e.sink.Emit(ctx, events.New(events.TypeEscrowTransition,
		"user_id", user.ID, "op", op, "status", st.String()))
}

// Load attempts to recover the vault master secret for the user with their
// current login password.
func (e *Engine) Load(ctx context.Context, user *models.User, loginPassword string) (*Result, error) {
	res, err := e.load(ctx, user, loginPassword, false, false)
	if err != nil {
		return nil, err
	}
	e.transition(ctx, user, "load", res.Status)
	return res, nil
}

// load runs the unlock sequence. explicit marks the password as a caller
// supplied previous password, which bypasses the password-just-changed gate;
// skipStale additionally bypasses the rotation staleness gate so the
// pre-rotation secret can be recovered during re-provisioning.
func (e *Engine) load(ctx context.Context, user *models.User, password string, explicit bool, skipStale bool) (*Result, error) {
	rec, err := e.keys.Get(ctx)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &Result{Status: StatusNotSet}, nil
		}
		return nil, fmt.Errorf("loading master key record: %w", err)
	}

	if len(rec.Verifier) == 0 || !user.HasUnlockKey() {
		return &Result{Status: StatusNotSet}, nil
	}

	if !skipStale && user.UnlockUpdatedAt.Before(rec.RotatedAt) {
		return &Result{Status: StatusChanged}, nil
	}

	if user.PasswordJustChanged && !explicit {
		return &Result{Status: StatusCheckOld}, nil
	}

	dk := cryptox.DeriveKey([]byte(password), user.Login, e.salt)
	defer common.WipeByteArray(dk)

	plaintext, err := cryptox.Unwrap(user.UnlockKey, user.UnlockSecuredKey, dk)
	if err != nil {
		if errors.Is(err, cryptox.ErrIntegrity) {
			return &Result{Status: StatusCheckOld}, nil
		}
		return nil, fmt.Errorf("unwrapping unlock key: %w", err)
	}

	if !cryptox.VerifySecret(plaintext, e.salt, rec.Verifier) {
		common.WipeByteArray(plaintext)
		return &Result{Status: StatusWrong}, nil
	}

	return &Result{Status: StatusOK, Secret: plaintext}, nil
}

// UpdateFromOldPass recovers the vault secret with the previous login
// password and re-wraps it under the new one. If the secret itself was
// rotated since the user's copy was written, the rotation chain on the
// master record is followed to reach the current secret.
// Any outcome other than StatusOK is returned unchanged, with no writes.
func (e *Engine) UpdateFromOldPass(ctx context.Context, user *models.User, oldPassword, newPassword string) (*Result, error) {
	res, err := e.load(ctx, user, oldPassword, true, true)
	if err != nil {
		return nil, err
	}

	if res.Status == StatusWrong {
		// The old password unwrapped a pre-rotation secret. Walk the chain.
		recovered, chainErr := e.recoverRotated(ctx, user, oldPassword)
		if chainErr != nil {
			return nil, chainErr
		}
		if recovered == nil {
			e.transition(ctx, user, "update_from_old_pass", StatusWrong)
			return &Result{Status: StatusWrong}, nil
		}
		res = &Result{Status: StatusOK, Secret: recovered}
	}

	if res.Status != StatusOK {
		e.transition(ctx, user, "update_from_old_pass", res.Status)
		return res, nil
	}

	if err := e.wrapAndStore(ctx, user, res.Secret, newPassword); err != nil {
		common.WipeByteArray(res.Secret)
		return nil, err
	}

	e.transition(ctx, user, "update_from_old_pass", StatusOK)
	return res, nil
}

// recoverRotated unwraps the user's copy with the old password and, when it
// holds a pre-rotation secret, follows the rotation chain to the current
// one. Returns nil plaintext when the chain does not lead to a secret that
// matches the canonical verifier.
func (e *Engine) recoverRotated(ctx context.Context, user *models.User, oldPassword string) ([]byte, error) {
	rec, err := e.keys.Get(ctx)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading master key record: %w", err)
	}
	if !rec.HasRotationChain() {
		return nil, nil
	}

	dk := cryptox.DeriveKey([]byte(oldPassword), user.Login, e.salt)
	defer common.WipeByteArray(dk)

	previous, err := cryptox.Unwrap(user.UnlockKey, user.UnlockSecuredKey, dk)
	if err != nil {
		if errors.Is(err, cryptox.ErrIntegrity) {
			return nil, nil
		}
		return nil, fmt.Errorf("unwrapping unlock key: %w", err)
	}
	defer common.WipeByteArray(previous)

	chainKey := cryptox.DeriveKey(previous, rotationContext, e.salt)
	defer common.WipeByteArray(chainKey)

	current, err := cryptox.Unwrap(rec.RotationWrapped, rec.RotationSecuredKey, chainKey)
	if err != nil {
		if errors.Is(err, cryptox.ErrIntegrity) {
			return nil, nil
		}
		return nil, fmt.Errorf("unwrapping rotation chain: %w", err)
	}

	if !cryptox.VerifySecret(current, e.salt, rec.Verifier) {
		common.WipeByteArray(current)
		return nil, nil
	}
	return current, nil
}

// UpdateOnLogin wraps the freshly unlocked vault secret under the current
// login password and persists it as the user's copy. Used right after a
// successful directory or local login when no copy existed yet.
func (e *Engine) UpdateOnLogin(ctx context.Context, user *models.User, vaultSecret []byte, loginPassword string) error {
	if err := e.wrapAndStore(ctx, user, vaultSecret, loginPassword); err != nil {
		return err
	}
	e.transition(ctx, user, "update_on_login", StatusOK)
	return nil
}

// Create establishes or replaces the canonical vault secret and produces the
// provisioning user's first wrapped copy. Replacing discards any rotation
// chain; existing user copies become unrecoverable by design.
func (e *Engine) Create(ctx context.Context, user *models.User, vaultSecret []byte, loginPassword string) error {
	rec := &models.MasterKeyRecord{
		Verifier: cryptox.Verifier(vaultSecret, e.salt),
	}
	if err := e.keys.Save(ctx, rec); err != nil {
		return fmt.Errorf("saving master key record: %w", err)
	}

	if err := e.wrapAndStore(ctx, user, vaultSecret, loginPassword); err != nil {
		return err
	}

	e.transition(ctx, user, "create", StatusOK)
	return nil
}

// Rotate replaces the vault secret with newSecret, recording a rotation
// chain so other users can follow their stale copies forward. The calling
// user must be able to unlock the current secret; callers must serialize
// rotations.
func (e *Engine) Rotate(ctx context.Context, user *models.User, loginPassword string, newSecret []byte) (*Result, error) {
	res, err := e.load(ctx, user, loginPassword, false, false)
	if err != nil {
		return nil, err
	}
	if res.Status != StatusOK {
		e.transition(ctx, user, "rotate", res.Status)
		return res, nil
	}
	defer common.WipeByteArray(res.Secret)

	chainKey := cryptox.DeriveKey(res.Secret, rotationContext, e.salt)
	defer common.WipeByteArray(chainKey)

	wrapped, securedKey, err := cryptox.Wrap(newSecret, chainKey)
	if err != nil {
		return nil, fmt.Errorf("wrapping rotation chain: %w", err)
	}

	rec := &models.MasterKeyRecord{
		Verifier:           cryptox.Verifier(newSecret, e.salt),
		RotationWrapped:    wrapped,
		RotationSecuredKey: securedKey,
	}
	if err := e.keys.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving master key record: %w", err)
	}

	if err := e.wrapAndStore(ctx, user, newSecret, loginPassword); err != nil {
		return nil, err
	}

	e.transition(ctx, user, "rotate", StatusOK)
	return &Result{Status: StatusOK}, nil
}

func (e *Engine) wrapAndStore(ctx context.Context, user *models.User, secret []byte, password string) error {
	dk := cryptox.DeriveKey([]byte(password), user.Login, e.salt)
	defer common.WipeByteArray(dk)

	wrapped, securedKey, err := cryptox.Wrap(secret, dk)
	if err != nil {
		return fmt.Errorf("wrapping vault secret: %w", err)
	}

	if err := e.users.SaveUnlockKey(ctx, user.ID, wrapped, securedKey); err != nil {
		return fmt.Errorf("saving unlock key: %w", err)
	}

	// Keep the in-memory record coherent for later steps in the same request.
	user.UnlockKey = wrapped
	user.UnlockSecuredKey = securedKey
	user.UnlockUpdatedAt = time.Now()
	user.PasswordJustChanged = false
	return nil
}
