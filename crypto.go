package main

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// kdf derives a 32B key from passphrase and salt using Argon2id.
// m=64 MiB, t=2, p=1.
func kdf(pass, salt []byte) []byte {
	return argon2.IDKey(pass, salt, 2, 64*1024, 1, 32)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// sealBytes encrypts plain under key with XChaCha20-Poly1305: nonce|ct.
func sealBytes(key, plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return append(nonce, aead.Seal(nil, nonce, plain, nil)...), nil
}

// openBytes reverses sealBytes.
func openBytes(key, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize() {
		return nil, errors.New("sealed blob too short")
	}
	nonce, ct := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, errors.New("decrypt failed (wrong passphrase?)")
	}
	return plain, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func publicKeyFromB64(s string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad public key encoding: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("bad public key length %d", len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// marshalCanonical emits compact JSON with lexicographically sorted keys and
// raw UTF-8. Map round-trip gives the sorting; UseNumber keeps integers exact.
func marshalCanonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	delete(m, "signature")
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// signEnvelope fills env.Signature with the base64 Ed25519 signature over
// the canonical form (signature field excluded).
func signEnvelope(env *Envelope, priv ed25519.PrivateKey) error {
	body, err := marshalCanonical(env)
	if err != nil {
		return fmt.Errorf("canonical form: %w", err)
	}
	env.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, body))
	return nil
}

// verifyEnvelope checks env.Signature against the canonical form under pub.
func verifyEnvelope(env *Envelope, pub ed25519.PublicKey) error {
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return fmt.Errorf("bad signature encoding: %w", err)
	}
	body, err := marshalCanonical(env)
	if err != nil {
		return fmt.Errorf("canonical form: %w", err)
	}
	if !ed25519.Verify(pub, body, sig) {
		return errors.New("signature mismatch")
	}
	return nil
}

// verifySignedText checks a detached base64 signature over a text, as used
// by the login challenge.
func verifySignedText(pub ed25519.PublicKey, text, sigB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("bad signature encoding: %w", err)
	}
	if !ed25519.Verify(pub, []byte(text), sig) {
		return errors.New("signature mismatch")
	}
	return nil
}
