package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "leaseth"
	keyringUser    = "api_key"
	apiKeyFileName = "api_key"
	apiKeyFileMode = 0600
)

var (
	apiKeyFlag = &cli.StringFlag{
		Name:  "key",
		Usage: "API key value (prompted for when omitted)",
	}

	clearKeyFlag = &cli.BoolFlag{
		Name:  "clear",
		Usage: "Remove the stored API key; serve stops requiring X-API-Key",
	}

	authCmd = &cli.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store or rotate the API key the serve endpoints require",
		Action:          cmdAuth,
		Flags: []cli.Flag{
			apiKeyFlag,
			clearKeyFlag,
		},
	}
)

func cmdAuth(c *cli.Context) error {
	cfg := getConfig(c)

	if c.Bool(clearKeyFlag.Name) {
		if err := clearAPIKey(cfg.Home); err != nil {
			return fmt.Errorf("clearing API key: %w", err)
		}
		fmt.Println("API key cleared")
		return nil
	}

	key := strings.TrimSpace(c.String(apiKeyFlag.Name))
	if key == "" {
		fmt.Print("API key: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	if err := saveAPIKey(cfg.Home, key); err != nil {
		return fmt.Errorf("saving API key: %w", err)
	}

	fmt.Println("API key saved")
	return nil
}

func saveAPIKey(home, key string) error {
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return os.WriteFile(filepath.Join(home, apiKeyFileName), []byte(key), apiKeyFileMode)
	}

	// clean up any earlier file fallback
	os.Remove(filepath.Join(home, apiKeyFileName))
	return nil
}

// getAPIKey returns the stored serve API key, or "" when none is
// configured. Keys saved to the file fallback migrate to the keychain
// when it becomes available.
func getAPIKey(home string) string {
	if key, err := keyring.Get(keyringService, keyringUser); err == nil && key != "" {
		return key
	}

	path := filepath.Join(home, apiKeyFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		return ""
	}

	if err := keyring.Set(keyringService, keyringUser, key); err == nil {
		slog.Info("migrated API key from file to OS keychain")
		os.Remove(path)
	}
	return key
}

func clearAPIKey(home string) error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil {
		slog.Debug("keychain delete", "error", err)
	}
	if err := os.Remove(filepath.Join(home, apiKeyFileName)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
