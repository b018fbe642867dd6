package comm

import (
	goerrors "github.com/goliatone/go-errors"
)

// CredentialBundle holds every resolved cryptographic capability plus the
// URLs a plugin needs at runtime. It is built once from a validated Config,
// is immutable afterwards, and is shared read-only by all request handlers.
type CredentialBundle struct {
	internalURL string
	externalURL string

	decrypter Decrypter
	validator Verifier

	authDuringComm *AuthDuringComm
}

// AuthDuringComm carries the extension capabilities for plugins that let
// guests authenticate while a communication session is running. It is nil on
// the bundle when the extension is not configured; there is no compile-time
// fork.
type AuthDuringComm struct {
	coreURL        string
	widgetURL      string
	displayName    string
	startAuthKeyID string

	widgetSigner    Signer
	startAuthSigner Signer
	guestValidator  Verifier
	hostValidator   Verifier
}

// NewCredentialBundle resolves every key declaration in cfg. Construction is
// all-or-nothing: the first entry that fails aborts the bundle, so a
// partially resolved bundle is never observable.
func NewCredentialBundle(cfg *Config) (*CredentialBundle, error) {
	if cfg == nil {
		return nil, goerrors.New("configuration is required", goerrors.CategoryBadInput)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	decrypter, err := ResolveDecrypter(cfg.DecryptionPrivKey)
	if err != nil {
		return nil, err
	}
	validator, err := ResolveVerifier(cfg.SignaturePubKey)
	if err != nil {
		return nil, err
	}

	bundle := &CredentialBundle{
		internalURL: cfg.InternalURL,
		externalURL: cfg.ExternalURL,
		decrypter:   decrypter,
		validator:   validator,
	}

	if cfg.AuthDuringCommEnabled() {
		authDuringComm, err := newAuthDuringComm(cfg)
		if err != nil {
			return nil, err
		}
		bundle.authDuringComm = authDuringComm
	}

	return bundle, nil
}

func newAuthDuringComm(cfg *Config) (*AuthDuringComm, error) {
	widgetSigner, err := ResolveSigner(*cfg.WidgetSigningPrivKey)
	if err != nil {
		return nil, err
	}
	startAuthSigner, err := ResolveSignerWithKeyID(*cfg.StartAuthSigningPrivKey, cfg.StartAuthKeyID)
	if err != nil {
		return nil, err
	}
	guestValidator, err := ResolveVerifier(KeyMaterialEntry{Type: KeyTypeOct, Key: cfg.GuestSignatureSecret})
	if err != nil {
		return nil, err
	}
	hostValidator, err := ResolveVerifier(KeyMaterialEntry{Type: KeyTypeOct, Key: cfg.HostSignatureSecret})
	if err != nil {
		return nil, err
	}

	return &AuthDuringComm{
		coreURL:         cfg.CoreURL,
		widgetURL:       cfg.WidgetURL,
		displayName:     cfg.DisplayName,
		startAuthKeyID:  cfg.StartAuthKeyID,
		widgetSigner:    widgetSigner,
		startAuthSigner: startAuthSigner,
		guestValidator:  guestValidator,
		hostValidator:   hostValidator,
	}, nil
}

// InternalURL returns the internal-facing URL of the plugin.
func (c *CredentialBundle) InternalURL() string {
	return c.internalURL
}

// ExternalURL returns the external-facing URL, falling back to the internal
// URL when none was configured.
func (c *CredentialBundle) ExternalURL() string {
	if c.externalURL != "" {
		return c.externalURL
	}
	return c.internalURL
}

// Decrypter returns the capability for opening inbound JWE instructions.
func (c *CredentialBundle) Decrypter() Decrypter {
	return c.decrypter
}

// Validator returns the capability for checking inbound JWS instructions.
func (c *CredentialBundle) Validator() Verifier {
	return c.validator
}

// DecodeInstruction opens a nested instruction token from the core: decrypt
// first, then verify, then decode into claims.
func (c *CredentialBundle) DecodeInstruction(token string, claims any) error {
	return DecryptAndVerify(token, c.decrypter, c.validator, claims)
}

// AuthDuringComm returns the extension capabilities, or false when the
// extension is not configured.
func (c *CredentialBundle) AuthDuringComm() (*AuthDuringComm, bool) {
	return c.authDuringComm, c.authDuringComm != nil
}

// CoreURL is the URL to reach the core directly.
func (a *AuthDuringComm) CoreURL() string {
	return a.coreURL
}

// WidgetURL is where guests are sent to run the authentication widget.
func (a *AuthDuringComm) WidgetURL() string {
	return a.widgetURL
}

// DisplayName is the plugin name presented to the user.
func (a *AuthDuringComm) DisplayName() string {
	return a.displayName
}

// StartAuthKeyID is the key identifier stamped on start-auth tokens.
func (a *AuthDuringComm) StartAuthKeyID() string {
	return a.startAuthKeyID
}

// GuestValidator verifies guest tokens issued by the hosting platform.
func (a *AuthDuringComm) GuestValidator() Verifier {
	return a.guestValidator
}

// HostValidator verifies host tokens issued by the hosting platform.
func (a *AuthDuringComm) HostValidator() Verifier {
	return a.hostValidator
}

// SignWidgetParams produces the signed parameter token handed to the widget.
func (a *AuthDuringComm) SignWidgetParams(params WidgetParams) (string, error) {
	return a.widgetSigner.Sign(params)
}

// SignStartAuth produces the signed start-authentication request for the
// core. The token header carries the configured key identifier.
func (a *AuthDuringComm) SignStartAuth(request StartAuthRequest) (string, error) {
	return a.startAuthSigner.Sign(request)
}

// DecodeGuestToken verifies and decodes a guest token.
func (a *AuthDuringComm) DecodeGuestToken(token string) (*GuestToken, error) {
	return DecodeGuestToken(token, a.guestValidator)
}

// DecodeHostToken verifies and decodes a host token.
func (a *AuthDuringComm) DecodeHostToken(token string) (*HostToken, error) {
	return DecodeHostToken(token, a.hostValidator)
}
