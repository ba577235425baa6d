package linking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/openredstone/linkore/internal/domain"
	"github.com/openredstone/linkore/internal/storage"
	"github.com/openredstone/linkore/internal/token"
)

var (
	// ErrAlreadyLinked is returned when either side of a requested link is
	// already taken.
	ErrAlreadyLinked = errors.New("account is already linked")
	// ErrInvalidToken is returned for unknown, consumed or expired codes.
	ErrInvalidToken = errors.New("invalid or expired link code")
	// ErrNotLinked is returned when an operation needs an existing link.
	ErrNotLinked = errors.New("account is not linked")
)

// UserStore is the persistence the coordinator needs. *storage.Store
// implements it.
type UserStore interface {
	GetUserByUUID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByDiscordID(ctx context.Context, discordID int64) (*domain.User, error)
	LinkUser(ctx context.Context, user domain.User) error
	UnlinkUser(ctx context.Context, discordID int64) error
	UpdateUserName(ctx context.Context, id uuid.UUID, name string) error
}

// Service coordinates link codes, the link table and the reconciler. All
// user-facing outcomes are the typed errors above; storage failures come back
// wrapped and fail the request.
type Service struct {
	store  UserStore
	tokens *token.Store
	syncer *Syncer

	// OnEvent, if set, receives an audit event after each successful state
	// change.
	OnEvent func(domain.Event)
	// Announce, if set, posts a human-readable notice, e.g. to the Discord
	// log channel. Best effort.
	Announce func(ctx context.Context, text string)
}

// NewService wires the coordinator.
func NewService(store UserStore, tokens *token.Store, syncer *Syncer) *Service {
	return &Service{store: store, tokens: tokens, syncer: syncer}
}

// RequestLink issues a link code for an in-game player. Already-linked
// players get ErrAlreadyLinked and no code.
func (s *Service) RequestLink(ctx context.Context, id uuid.UUID, name string) (string, error) {
	_, err := s.store.GetUserByUUID(ctx, id)
	if err == nil {
		return "", ErrAlreadyLinked
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("checking existing link: %w", err)
	}
	return s.tokens.Create(domain.UnlinkedUser{UUID: id, Name: name})
}

// CompleteLink redeems a code for a Discord account, persists the link and
// reconciles roles and nickname. The reconciliation is best effort: once the
// link row is written the command succeeds even if Discord misbehaves.
func (s *Service) CompleteLink(ctx context.Context, discordID int64, code string) (domain.User, error) {
	if existing, err := s.store.GetUserByDiscordID(ctx, discordID); err == nil {
		return *existing, ErrAlreadyLinked
	} else if !errors.Is(err, storage.ErrNotFound) {
		return domain.User{}, fmt.Errorf("checking existing link: %w", err)
	}

	unlinked, ok := s.tokens.Consume(code)
	if !ok {
		return domain.User{}, ErrInvalidToken
	}

	user := unlinked.LinkTo(discordID)
	if err := s.store.LinkUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDiscordIDTaken) {
			// Lost a race with another link for the same Discord account
			return domain.User{}, ErrAlreadyLinked
		}
		return domain.User{}, err
	}

	s.syncBestEffort(ctx, user)
	s.emit(domain.EventLinked, domain.LinkedEvent{User: user})
	s.announce(ctx, fmt.Sprintf("**%s** linked their Minecraft account (`%s`).", user.Name, user.UUID))
	return user, nil
}

// Unlink removes the link for a Discord account and clears the tracked roles
// and nickname best effort. by records who asked, for the audit stream.
func (s *Service) Unlink(ctx context.Context, discordID int64, by string) (domain.User, error) {
	user, err := s.store.GetUserByDiscordID(ctx, discordID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, ErrNotLinked
		}
		return domain.User{}, err
	}
	return s.unlink(ctx, *user, by)
}

// UnlinkByUUID is Unlink keyed by the Minecraft account, for in-game and
// admin use.
func (s *Service) UnlinkByUUID(ctx context.Context, id uuid.UUID, by string) (domain.User, error) {
	user, err := s.store.GetUserByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, ErrNotLinked
		}
		return domain.User{}, err
	}
	return s.unlink(ctx, *user, by)
}

func (s *Service) unlink(ctx context.Context, user domain.User, by string) (domain.User, error) {
	if err := s.store.UnlinkUser(ctx, user.DiscordID); err != nil {
		return domain.User{}, err
	}
	if err := s.syncer.ClearUser(ctx, user); err != nil {
		log.Printf("linking: clearing discord state of %s: %v", user, err)
	}
	s.emit(domain.EventUnlinked, domain.UnlinkedEvent{User: user, By: by})
	s.announce(ctx, fmt.Sprintf("**%s** (`%s`) was unlinked.", user.Name, user.UUID))
	return user, nil
}

// Rename records a changed in-game name and refreshes the Discord nickname.
func (s *Service) Rename(ctx context.Context, id uuid.UUID, newName string) error {
	user, err := s.store.GetUserByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotLinked
		}
		return err
	}
	if user.Name == newName {
		return nil
	}
	oldName := user.Name
	if err := s.store.UpdateUserName(ctx, id, newName); err != nil {
		return err
	}
	user.Name = newName
	s.syncBestEffort(ctx, *user)
	s.emit(domain.EventRenamed, domain.RenamedEvent{User: *user, OldName: oldName})
	return nil
}

// ForceSync reconciles a linked Discord account on demand. Unlike the
// best-effort sync after a link, errors here surface to the caller because
// the sync is the whole point of the command.
func (s *Service) ForceSync(ctx context.Context, discordID int64) (domain.User, error) {
	user, err := s.store.GetUserByDiscordID(ctx, discordID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, ErrNotLinked
		}
		return domain.User{}, err
	}
	primary, err := s.syncer.SyncUser(ctx, *user)
	if err != nil {
		return *user, err
	}
	s.emit(domain.EventSynced, domain.SyncedEvent{User: *user, PrimaryGroup: primary})
	return *user, nil
}

// SyncByUUID reconciles a linked Minecraft account, used by the permission
// change listener. Unlinked players are ErrNotLinked.
func (s *Service) SyncByUUID(ctx context.Context, id uuid.UUID) error {
	user, err := s.store.GetUserByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotLinked
		}
		return err
	}
	primary, err := s.syncer.SyncUser(ctx, *user)
	if err != nil {
		return err
	}
	s.emit(domain.EventSynced, domain.SyncedEvent{User: *user, PrimaryGroup: primary})
	return nil
}

// LookupDiscord returns the link for a Discord account, ErrNotLinked if none.
func (s *Service) LookupDiscord(ctx context.Context, discordID int64) (domain.User, error) {
	user, err := s.store.GetUserByDiscordID(ctx, discordID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, ErrNotLinked
		}
		return domain.User{}, err
	}
	return *user, nil
}

// LookupUUID returns the link for a Minecraft account, ErrNotLinked if none.
func (s *Service) LookupUUID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	user, err := s.store.GetUserByUUID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.User{}, ErrNotLinked
		}
		return domain.User{}, err
	}
	return *user, nil
}

func (s *Service) syncBestEffort(ctx context.Context, user domain.User) {
	primary, err := s.syncer.SyncUser(ctx, user)
	if err != nil {
		log.Printf("linking: syncing %s: %v", user, err)
		return
	}
	s.emit(domain.EventSynced, domain.SyncedEvent{User: user, PrimaryGroup: primary})
}

func (s *Service) emit(eventType string, data interface{}) {
	if s.OnEvent == nil {
		return
	}
	s.OnEvent(domain.Event{Type: eventType, Timestamp: time.Now(), Data: data})
}

func (s *Service) announce(ctx context.Context, text string) {
	if s.Announce == nil {
		return
	}
	s.Announce(ctx, text)
}
