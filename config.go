package comm

import (
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// Config is the raw plugin configuration document as read from config.toml.
// It only carries declarations; NewCredentialBundle turns it into usable
// capabilities.
type Config struct {
	// InternalURL is the internal-facing URL of the plugin.
	InternalURL string `toml:"internal_url"`
	// ExternalURL is the external-facing URL. Defaults to InternalURL.
	ExternalURL string `toml:"external_url"`

	// DecryptionPrivKey decrypts inbound JWE instructions.
	DecryptionPrivKey KeyMaterialEntry `toml:"decryption_privkey"`
	// SignaturePubKey verifies inbound JWS instructions.
	SignaturePubKey KeyMaterialEntry `toml:"signature_pubkey"`

	// Auth-during-comm extension. The block is all-or-nothing: setting
	// core_url requires every other field below.
	CoreURL                 string            `toml:"core_url"`
	WidgetURL               string            `toml:"widget_url"`
	DisplayName             string            `toml:"display_name"`
	WidgetSigningPrivKey    *KeyMaterialEntry `toml:"widget_signing_privkey"`
	StartAuthSigningPrivKey *KeyMaterialEntry `toml:"start_auth_signing_privkey"`
	StartAuthKeyID          string            `toml:"start_auth_key_id"`
	GuestSignatureSecret    string            `toml:"guest_signature_secret"`
	HostSignatureSecret     string            `toml:"host_signature_secret"`
}

// AuthDuringCommEnabled reports whether the extension block is configured.
func (c Config) AuthDuringCommEnabled() bool {
	return c.CoreURL != ""
}

// Validate checks the document before any key resolution happens.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.InternalURL, validation.Required, is.URL),
		validation.Field(&c.ExternalURL, is.URL),
		validation.Field(&c.DecryptionPrivKey, validation.By(requireKeyEntry)),
		validation.Field(&c.SignaturePubKey, validation.By(requireKeyEntry)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}

	if !c.AuthDuringCommEnabled() {
		return nil
	}

	err = validation.ValidateStruct(&c,
		validation.Field(&c.CoreURL, validation.Required, is.URL),
		validation.Field(&c.WidgetURL, validation.Required, is.URL),
		validation.Field(&c.DisplayName, validation.Required),
		validation.Field(&c.WidgetSigningPrivKey, validation.Required),
		validation.Field(&c.StartAuthSigningPrivKey, validation.Required),
		validation.Field(&c.StartAuthKeyID, validation.Required),
		validation.Field(&c.GuestSignatureSecret, validation.Required),
		validation.Field(&c.HostSignatureSecret, validation.Required),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid auth during comm configuration")
	}
	return nil
}

func requireKeyEntry(value any) error {
	entry, ok := value.(KeyMaterialEntry)
	if !ok || entry.isZero() {
		return validation.NewError("key_entry_required", "key entry is required")
	}
	return nil
}

// LoadConfig reads a TOML configuration file, expanding ${VAR} environment
// references before decoding.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "unable to read configuration file")
	}
	return DecodeConfig(string(data))
}

// DecodeConfig parses and validates a TOML configuration document.
func DecodeConfig(document string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(expandEnvVars(document), &cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "unable to parse configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(name)
	})
}
