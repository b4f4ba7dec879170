package commands

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"keyvault/internal/domain"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the local identity account",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			acc, err := w.Store.GetOrCreateAccount(generateAccount)
			if err != nil {
				return err
			}
			fmt.Printf("Account ready.\nDevice ID:    %s\nIdentity key: %s\nSigning key:  %s\n",
				acc.DeviceID, acc.IdentityKey, acc.SigningKey)
			return nil
		},
	}
}

func generateAccount() (domain.Account, error) {
	deviceID, err := randomToken(5)
	if err != nil {
		return domain.Account{}, err
	}
	identityKey, err := randomToken(32)
	if err != nil {
		return domain.Account{}, err
	}
	signingKey, err := randomToken(32)
	if err != nil {
		return domain.Account{}, err
	}
	pickle := make([]byte, 64)
	if _, err := rand.Read(pickle); err != nil {
		return domain.Account{}, err
	}
	return domain.Account{
		DeviceID:    deviceID,
		IdentityKey: identityKey,
		SigningKey:  signingKey,
		Pickle:      pickle,
	}, nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(b), nil
}
