package httpinterface

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vaultgate/vaultgate/pkg/macaroons"
	"gopkg.in/macaroon-bakery.v2/bakery"
)

// bakeMacaroon creates a new macaroon with newest version and the given
// permissions then returns it binary serialized.
func bakeMacaroon(
	ctx context.Context, svc *macaroons.Service, permissions []bakery.Op,
) ([]byte, error) {
	mac, err := svc.NewMacaroon(
		ctx, macaroons.DefaultRootKeyID, permissions...,
	)
	if err != nil {
		return nil, err
	}

	return mac.M().MarshalBinary()
}

// genMacaroons writes the admin and read-only macaroon files in datadir
// unless they already exist. The admin one is readable by the owner only.
func genMacaroons(
	ctx context.Context, svc *macaroons.Service, datadir string,
) error {
	adminMacFile := filepath.Join(datadir, AdminMacaroonFile)
	roMacFile := filepath.Join(datadir, ReadOnlyMacaroonFile)
	if pathExists(adminMacFile) && pathExists(roMacFile) {
		return nil
	}

	if err := makeDirectoryIfNotExists(datadir); err != nil {
		return err
	}

	for macFilename, macPermissions := range Macaroons {
		macBytes, err := bakeMacaroon(ctx, svc, macPermissions)
		if err != nil {
			return err
		}
		macFile := filepath.Join(datadir, macFilename)
		perms := fs.FileMode(0644)
		if macFilename == AdminMacaroonFile {
			perms = 0600
		}
		if err := os.WriteFile(macFile, macBytes, perms); err != nil {
			os.Remove(macFile)
			return err
		}
	}

	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if pathExists(path) {
		return nil
	}
	return os.MkdirAll(path, os.ModeDir|0755)
}

func pathExists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}
