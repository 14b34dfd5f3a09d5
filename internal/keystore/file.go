package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	magic        = "QGWV"
	vaultVersion = 1

	saltLen  = 16
	nonceLen = 12
	keyLen   = 32
)

// argon2Params mirrors the teacher keystore's Argon2id cost parameters.
var argon2Params = struct {
	time    uint32
	memory  uint32
	threads uint8
}{time: 3, memory: 64 * 1024, threads: 4}

// FileKeystore is an AES-256-GCM-encrypted, Argon2id-keyed vault file on
// disk (spec §4.9).
type FileKeystore struct {
	mu         sync.RWMutex
	path       string
	masterKeys MasterKeySource
}

// NewFileKeystore returns a FileKeystore rooted at path, deriving its
// encryption key from masterKeys.
func NewFileKeystore(path string, masterKeys MasterKeySource) *FileKeystore {
	return &FileKeystore{path: path, masterKeys: masterKeys}
}

type vaultData struct {
	Entries map[string]string `json:"entries"`
}

func (k *FileKeystore) deriveKey(salt []byte) ([]byte, error) {
	master, err := k.masterKeys.MasterKey()
	if err != nil {
		return nil, err
	}
	return argon2.IDKey([]byte(master), salt, argon2Params.time, argon2Params.memory, argon2Params.threads, keyLen), nil
}

// loadData reads and decrypts the vault file, returning an empty vault
// if it does not yet exist.
func (k *FileKeystore) loadData() (vaultData, error) {
	raw, err := os.ReadFile(k.path)
	if err != nil {
		if os.IsNotExist(err) {
			return vaultData{Entries: map[string]string{}}, nil
		}
		return vaultData{}, err
	}
	if len(raw) < len(magic)+1+saltLen+nonceLen {
		return vaultData{}, errors.New("keystore: vault file too short")
	}
	if string(raw[:len(magic)]) != magic {
		return vaultData{}, errors.New("keystore: bad vault magic header")
	}
	pos := len(magic)
	version := raw[pos]
	pos++
	if version != vaultVersion {
		return vaultData{}, fmt.Errorf("keystore: unsupported vault version %d", version)
	}
	salt := raw[pos : pos+saltLen]
	pos += saltLen
	nonce := raw[pos : pos+nonceLen]
	pos += nonceLen
	ciphertext := raw[pos:]

	key, err := k.deriveKey(salt)
	if err != nil {
		return vaultData{}, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return vaultData{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return vaultData{}, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return vaultData{}, fmt.Errorf("keystore: decrypt failed (wrong master key?): %w", err)
	}
	var vd vaultData
	if err := json.Unmarshal(plaintext, &vd); err != nil {
		return vaultData{}, err
	}
	if vd.Entries == nil {
		vd.Entries = map[string]string{}
	}
	return vd, nil
}

// saveData encrypts and writes vd to the vault file, with a fresh random
// salt and nonce each time.
func (k *FileKeystore) saveData(vd vaultData) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	key, err := k.deriveKey(salt)
	if err != nil {
		return err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	plaintext, err := json.Marshal(vd)
	if err != nil {
		return err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(magic)+1+saltLen+nonceLen+len(ciphertext))
	out = append(out, []byte(magic)...)
	out = append(out, vaultVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(k.path, out, 0o600)
}

func (k *FileKeystore) Set(name, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	vd, err := k.loadData()
	if err != nil {
		return err
	}
	vd.Entries[name] = value
	return k.saveData(vd)
}

func (k *FileKeystore) Get(name string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	vd, err := k.loadData()
	if err != nil {
		return "", err
	}
	v, ok := vd.Entries[name]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (k *FileKeystore) Delete(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	vd, err := k.loadData()
	if err != nil {
		return err
	}
	if _, ok := vd.Entries[name]; !ok {
		return ErrKeyNotFound
	}
	delete(vd.Entries, name)
	return k.saveData(vd)
}

func (k *FileKeystore) List() ([]string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	vd, err := k.loadData()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(vd.Entries))
	for name := range vd.Entries {
		names = append(names, name)
	}
	return names, nil
}
