package identity

import "warden/cmd/security/token"

// KeyBytes is the default entropy of a cookie or nonce key.
const KeyBytes = 32

// KeyPair is a rotating secret and its stored digest.
// Key is transient: it is known only right after RotateKey and is never persisted.
type KeyPair struct {
	Key  string
	Hash string
}

// SetKey assigns key and recomputes its digest.
func (k *KeyPair) SetKey(key string) {
	k.Key = key
	k.Hash = token.HashKeyHex(key)
}

// RotateKey replaces the key with nBytes of fresh entropy and returns it.
func (k *KeyPair) RotateKey(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = KeyBytes
	}
	key, err := token.NewOpaque(nBytes)
	if err != nil {
		return "", err
	}
	k.SetKey(key)
	return key, nil
}

// MatchKey reports, in constant time, whether key hashes to the stored digest.
// Digests written under a retired HMAC scheme match while token.MatchKeyHex
// still accepts it.
func (k *KeyPair) MatchKey(key string) bool {
	if k.Hash == "" || key == "" {
		return false
	}
	return token.MatchKeyHex(k.Hash, key)
}
