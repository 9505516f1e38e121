package providers

import (
	"github.com/samber/do/v2"

	"github.com/boilergroups/groups-server/internal/auth"
	"github.com/boilergroups/groups-server/internal/config"
	"github.com/boilergroups/groups-server/internal/logger"
)

// AuthKey is the symmetric PASETO v4 key shared by token issue and verify.
type AuthKey []byte

// ProvideAuthKey uses AUTH_KEY when set and otherwise the key file kept under the
// data path, creating it on first start.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Auth.KeyHex, cfg.Storage.DataPath)
	if err != nil {
		return nil, err
	}
	source := "data_path"
	if cfg.Auth.KeyHex != "" {
		source = "env"
	}
	log.Debug("Token key ready", "source", source, "token_ttl", cfg.Auth.AccessTokenDuration)
	return key, nil
}

func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	return auth.NewTokenService(do.MustInvoke[AuthKey](i), do.MustInvoke[*config.Config](i).Auth.AccessTokenDuration)
}

func ProvidePasswordHasher(do.Injector) (*auth.PasswordHasher, error) {
	return auth.NewPasswordHasher(auth.DefaultArgon2Params), nil
}
