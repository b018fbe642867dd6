package comm

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// KeyType discriminates the supported key material families.
type KeyType string

const (
	// KeyTypeEC is an elliptic curve key (ES256 signatures, ECDH-ES encryption).
	KeyTypeEC KeyType = "EC"
	// KeyTypeRSA is an RSA key (RS256 signatures, RSA-OAEP encryption).
	KeyTypeRSA KeyType = "RSA"
	// KeyTypeOKP is an octet key pair (EdDSA signatures).
	KeyTypeOKP KeyType = "OKP"
	// KeyTypeOct is a shared secret (HMAC-SHA-256 signatures).
	KeyTypeOct KeyType = "oct"
)

// ParseKeyType validates a key type discriminator.
func ParseKeyType(s string) (KeyType, error) {
	switch KeyType(s) {
	case KeyTypeEC, KeyTypeRSA, KeyTypeOKP, KeyTypeOct:
		return KeyType(s), nil
	}
	return "", invalidKeyMaterial(nil, fmt.Sprintf("unknown key type %q", s))
}

// UnmarshalText lets configuration decoders reject unknown discriminators.
func (t *KeyType) UnmarshalText(text []byte) error {
	parsed, err := ParseKeyType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// KeyMaterialEntry is one declarative key entry from the configuration
// document: a family discriminator plus the raw PEM or secret text. It only
// exists during configuration resolution.
type KeyMaterialEntry struct {
	Type KeyType `toml:"type" json:"type"`
	Key  string  `toml:"key" json:"key"`
}

func (e KeyMaterialEntry) isZero() bool {
	return e.Type == "" && e.Key == ""
}

// Decrypter opens a compact JWE and returns its plaintext payload.
type Decrypter interface {
	Decrypt(token string) ([]byte, error)
}

// Signer produces a compact signed token over the given claims.
type Signer interface {
	Sign(claims any) (string, error)
}

// Verifier checks a compact signed token and decodes its claims.
type Verifier interface {
	Verify(token string, claims any) error
}

var jweContentEncryptions = []jose.ContentEncryption{
	jose.A128CBC_HS256,
	jose.A192CBC_HS384,
	jose.A256CBC_HS512,
	jose.A128GCM,
	jose.A192GCM,
	jose.A256GCM,
}

// ResolveDecrypter turns a key entry into a decryption capability. Only the
// asymmetric EC and RSA families can decrypt; anything else, including public
// keys, is rejected.
func ResolveDecrypter(entry KeyMaterialEntry) (Decrypter, error) {
	switch entry.Type {
	case KeyTypeEC:
		key, err := parsePrivateKey(entry.Key)
		if err != nil {
			return nil, err
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, invalidKeyMaterial(nil, "EC decryption requires an EC private key")
		}
		return &joseDecrypter{key: ecKey, algs: []jose.KeyAlgorithm{
			jose.ECDH_ES, jose.ECDH_ES_A128KW, jose.ECDH_ES_A192KW, jose.ECDH_ES_A256KW,
		}}, nil
	case KeyTypeRSA:
		key, err := parsePrivateKey(entry.Key)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, invalidKeyMaterial(nil, "RSA decryption requires an RSA private key")
		}
		return &joseDecrypter{key: rsaKey, algs: []jose.KeyAlgorithm{
			jose.RSA_OAEP, jose.RSA_OAEP_256,
		}}, nil
	case KeyTypeOKP:
		return nil, invalidKeyMaterial(nil, "OKP key material signs and verifies only, it cannot decrypt")
	case KeyTypeOct:
		return nil, invalidKeyMaterial(nil, "symmetric key material yields HMAC capabilities only, it cannot decrypt")
	}
	return nil, invalidKeyMaterial(nil, fmt.Sprintf("unknown key type %q", entry.Type))
}

// ResolveSigner turns a key entry into a signing capability: ES256 for EC,
// RS256 for RSA, EdDSA for OKP, HMAC-SHA-256 for shared secrets.
func ResolveSigner(entry KeyMaterialEntry) (Signer, error) {
	return ResolveSignerWithKeyID(entry, "")
}

// ResolveSignerWithKeyID is ResolveSigner with a key identifier stamped into
// the token header, so relying parties can select the right verification key.
func ResolveSignerWithKeyID(entry KeyMaterialEntry, keyID string) (Signer, error) {
	if entry.Type == KeyTypeOct {
		if entry.Key == "" {
			return nil, invalidKeyMaterial(nil, "shared secret must not be empty")
		}
		return &hmacSigner{secret: []byte(entry.Key), keyID: keyID}, nil
	}

	var alg jose.SignatureAlgorithm
	key, err := parsePrivateKey(entry.Key)
	if err != nil {
		return nil, err
	}

	switch entry.Type {
	case KeyTypeEC:
		if _, ok := key.(*ecdsa.PrivateKey); !ok {
			return nil, invalidKeyMaterial(nil, "EC signing requires an EC private key")
		}
		alg = jose.ES256
	case KeyTypeRSA:
		if _, ok := key.(*rsa.PrivateKey); !ok {
			return nil, invalidKeyMaterial(nil, "RSA signing requires an RSA private key")
		}
		alg = jose.RS256
	case KeyTypeOKP:
		if _, ok := key.(ed25519.PrivateKey); !ok {
			return nil, invalidKeyMaterial(nil, "OKP signing requires an Ed25519 private key")
		}
		alg = jose.EdDSA
	default:
		return nil, invalidKeyMaterial(nil, fmt.Sprintf("unknown key type %q", entry.Type))
	}

	opts := (&jose.SignerOptions{}).WithType("JWT")
	if keyID != "" {
		opts = opts.WithHeader(jose.HeaderKey("kid"), keyID)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	if err != nil {
		return nil, invalidKeyMaterial(err, "unable to construct signer")
	}
	return &joseSigner{signer: signer}, nil
}

// ResolveVerifier turns a key entry into a verification capability. For the
// asymmetric families the entry may hold a public key or a private key whose
// public half is used.
func ResolveVerifier(entry KeyMaterialEntry) (Verifier, error) {
	if entry.Type == KeyTypeOct {
		if entry.Key == "" {
			return nil, invalidKeyMaterial(nil, "shared secret must not be empty")
		}
		return &hmacVerifier{secret: []byte(entry.Key)}, nil
	}

	key, err := parseVerificationKey(entry.Key)
	if err != nil {
		return nil, err
	}

	switch entry.Type {
	case KeyTypeEC:
		if _, ok := key.(*ecdsa.PublicKey); !ok {
			return nil, invalidKeyMaterial(nil, "EC verification requires an EC public key")
		}
		return &joseVerifier{key: key, alg: jose.ES256}, nil
	case KeyTypeRSA:
		if _, ok := key.(*rsa.PublicKey); !ok {
			return nil, invalidKeyMaterial(nil, "RSA verification requires an RSA public key")
		}
		return &joseVerifier{key: key, alg: jose.RS256}, nil
	case KeyTypeOKP:
		if _, ok := key.(ed25519.PublicKey); !ok {
			return nil, invalidKeyMaterial(nil, "OKP verification requires an Ed25519 public key")
		}
		return &joseVerifier{key: key, alg: jose.EdDSA}, nil
	}
	return nil, invalidKeyMaterial(nil, fmt.Sprintf("unknown key type %q", entry.Type))
}

type joseDecrypter struct {
	key  any
	algs []jose.KeyAlgorithm
}

func (d *joseDecrypter) Decrypt(token string) ([]byte, error) {
	object, err := jose.ParseEncrypted(token, d.algs, jweContentEncryptions)
	if err != nil {
		return nil, invalidToken(err, "unable to parse encrypted token")
	}
	payload, err := object.Decrypt(d.key)
	if err != nil {
		return nil, invalidToken(err, "unable to decrypt token")
	}
	return payload, nil
}

type joseSigner struct {
	signer jose.Signer
}

func (s *joseSigner) Sign(claims any) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode claims")
	}
	object, err := s.signer.Sign(payload)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to sign claims")
	}
	return object.CompactSerialize()
}

type joseVerifier struct {
	key any
	alg jose.SignatureAlgorithm
}

func (v *joseVerifier) Verify(token string, claims any) error {
	object, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{v.alg})
	if err != nil {
		return invalidToken(err, "unable to parse signed token")
	}
	payload, err := object.Verify(v.key)
	if err != nil {
		return invalidToken(err, "token signature does not validate")
	}
	if err := json.Unmarshal(payload, claims); err != nil {
		return invalidToken(err, "unable to decode token claims")
	}
	return nil
}

type hmacSigner struct {
	secret []byte
	keyID  string
}

func (s *hmacSigner) Sign(claims any) (string, error) {
	mapClaims, err := toMapClaims(claims)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims)
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "unable to sign claims")
	}
	return signed, nil
}

type hmacVerifier struct {
	secret []byte
}

func (v *hmacVerifier) Verify(token string, claims any) error {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return invalidToken(err, "token signature does not validate")
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return invalidToken(nil, "unable to map token claims")
	}
	payload, err := json.Marshal(mapClaims)
	if err != nil {
		return invalidToken(err, "unable to encode token claims")
	}
	if err := json.Unmarshal(payload, claims); err != nil {
		return invalidToken(err, "unable to decode token claims")
	}
	return nil
}

func toMapClaims(claims any) (jwt.MapClaims, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode claims")
	}
	var mapClaims jwt.MapClaims
	if err := json.Unmarshal(payload, &mapClaims); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to encode claims")
	}
	return mapClaims, nil
}

func parsePrivateKey(pemText string) (crypto.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, invalidKeyMaterial(nil, "key material is not valid PEM")
	}
	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, invalidKeyMaterial(err, "unable to parse private key")
		}
		return key, nil
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, invalidKeyMaterial(err, "unable to parse EC private key")
		}
		return key, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, invalidKeyMaterial(err, "unable to parse RSA private key")
		}
		return key, nil
	}
	return nil, invalidKeyMaterial(nil, fmt.Sprintf("expected a private key, got PEM block %q", block.Type))
}

func parseVerificationKey(pemText string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, invalidKeyMaterial(nil, "key material is not valid PEM")
	}
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, invalidKeyMaterial(err, "unable to parse public key")
		}
		return key, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, invalidKeyMaterial(err, "unable to parse RSA public key")
		}
		return key, nil
	case "PRIVATE KEY", "EC PRIVATE KEY", "RSA PRIVATE KEY":
		priv, err := parsePrivateKey(pemText)
		if err != nil {
			return nil, err
		}
		signer, ok := priv.(crypto.Signer)
		if !ok {
			return nil, invalidKeyMaterial(nil, "private key has no public half")
		}
		return signer.Public(), nil
	}
	return nil, invalidKeyMaterial(nil, fmt.Sprintf("expected a public key, got PEM block %q", block.Type))
}
