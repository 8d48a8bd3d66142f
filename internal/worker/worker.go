// Package worker holds the handlers behind the RabbitMQ consumers.
package worker

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/iliyamo/game-tracker/internal/queue"
	"github.com/iliyamo/game-tracker/internal/service"
)

// VerificationSender delivers one verification mail.
type VerificationSender interface {
	SendVerification(ctx context.Context, email, username, code string) error
}

// LibrarySyncer imports a user's Steam library.
type LibrarySyncer interface {
	SyncLibrary(ctx context.Context, userID uint64) (service.SyncReport, error)
}

var errInvalidEvent = errors.New("worker: invalid event")

// VerificationEmail sends the mail described by a VerificationEmailEvent.
func VerificationEmail(sender VerificationSender) queue.Handler {
	return queue.JSONHandler(func(ctx context.Context, ev queue.VerificationEmailEvent) error {
		if ev.Email == "" || ev.Code == "" {
			return errInvalidEvent
		}
		if err := sender.SendVerification(ctx, ev.Email, ev.Username, ev.Code); err != nil {
			return err
		}
		log.Ctx(ctx).Info().Str("username", ev.Username).Msg("verification mail sent")
		return nil
	})
}

// LibrarySync runs a library import for the user in a LibrarySyncEvent.
func LibrarySync(syncer LibrarySyncer) queue.Handler {
	return queue.JSONHandler(func(ctx context.Context, ev queue.LibrarySyncEvent) error {
		if ev.UserID == 0 {
			return errInvalidEvent
		}
		rep, err := syncer.SyncLibrary(ctx, ev.UserID)
		if err != nil {
			return err
		}
		log.Ctx(ctx).Info().Uint64("user_id", ev.UserID).Int("imported", rep.Imported).Int("failed", rep.Failed).
			Str("requested_at", ev.RequestedAt).Msg("async library sync finished")
		return nil
	})
}
