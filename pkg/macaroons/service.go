package macaroons

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"gopkg.in/macaroon-bakery.v2/bakery"
	macaroon "gopkg.in/macaroon.v2"
)

var (
	// ErrMissingMacaroon is returned when validating an empty macaroon.
	ErrMissingMacaroon = errors.New("missing macaroon")
	// ErrInvalidMacaroon is returned for a macaroon that can't be decoded.
	ErrInvalidMacaroon = errors.New("invalid macaroon")
	// ErrPermissionDenied is returned for a valid macaroon that doesn't
	// grant the required operations.
	ErrPermissionDenied = errors.New("permission denied")
)

// Service bakes and validates the macaroons guarding the operator interface.
type Service struct {
	*bakery.Bakery
	db *badger.DB
}

// NewService opens (or creates if not exists) the root key db in dbDir and
// returns a service baking macaroons for the given location. An empty dbDir
// opens an in-memory db.
func NewService(
	dbDir, location string, logger badger.Logger,
) (*Service, error) {
	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger
	if len(dbDir) <= 0 {
		opts.InMemory = true
	} else {
		opts.SyncWrites = true
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening macaroon db: %w", err)
	}

	b := bakery.New(bakery.BakeryParams{
		Location:     location,
		RootKeyStore: NewRootKeyStorage(db),
	})
	return &Service{b, db}, nil
}

// NewMacaroon bakes a macaroon granting the given operations, signed with
// the root key of the given id.
func (s *Service) NewMacaroon(
	ctx context.Context, rootKeyID []byte, ops ...bakery.Op,
) (*bakery.Macaroon, error) {
	if len(rootKeyID) <= 0 {
		return nil, ErrMissingRootKeyID
	}
	ctx = ContextWithRootKeyID(ctx, rootKeyID)
	return s.Oven.NewMacaroon(ctx, bakery.LatestVersion, nil, ops...)
}

// ValidateMacaroon checks that the binary serialized macaroon was baked by
// this service and grants every required operation.
func (s *Service) ValidateMacaroon(
	ctx context.Context, macBytes []byte, requiredPermissions ...bakery.Op,
) error {
	if len(macBytes) <= 0 {
		return ErrMissingMacaroon
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMacaroon, err)
	}

	authChecker := s.Checker.Auth(macaroon.Slice{mac})
	// A macaroon signed with an unknown root key grants nothing, so it is
	// denied like one lacking the required operations.
	if _, err := authChecker.Allow(ctx, requiredPermissions...); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil
}

// Close closes the root key db.
func (s *Service) Close() error {
	return s.db.Close()
}
