package sftp

import (
	"bytes"
	"crypto/dsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

// assemblePPK renders a syntactically exact .ppk file, including the
// Private-MAC trailer, from raw wire-format blobs.
func assemblePPK(t *testing.T, version int, alg, enc, comment string, pub, priv []byte) []byte {
	t.Helper()
	payload := ssh.Marshal(struct {
		Algorithm  string
		Encryption string
		Comment    string
		Public     []byte
		Private    []byte
	}{alg, enc, comment, pub, priv})

	var mac []byte
	switch version {
	case 2:
		key := sha1.Sum([]byte("putty-private-key-file-mac-key"))
		h := hmac.New(sha1.New, key[:])
		h.Write(payload)
		mac = h.Sum(nil)
	case 3:
		h := hmac.New(sha256.New, nil)
		h.Write(payload)
		mac = h.Sum(nil)
	default:
		t.Fatalf("unsupported ppk version %d", version)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "PuTTY-User-Key-File-%d: %s\r\n", version, alg)
	fmt.Fprintf(&b, "Encryption: %s\r\n", enc)
	fmt.Fprintf(&b, "Comment: %s\r\n", comment)
	writePPKBlob(&b, "Public-Lines", pub)
	writePPKBlob(&b, "Private-Lines", priv)
	fmt.Fprintf(&b, "Private-MAC: %s\r\n", hex.EncodeToString(mac))
	return []byte(b.String())
}

func writePPKBlob(b *strings.Builder, header string, blob []byte) {
	enc := base64.StdEncoding.EncodeToString(blob)
	lines := (len(enc) + 63) / 64
	fmt.Fprintf(b, "%s: %d\r\n", header, lines)
	for i := 0; i < len(enc); i += 64 {
		end := i + 64
		if end > len(enc) {
			end = len(enc)
		}
		fmt.Fprintf(b, "%s\r\n", enc[i:end])
	}
}

func rsaPPK(t *testing.T, version int, key *rsa.PrivateKey) []byte {
	t.Helper()
	key.Precompute()
	pub := ssh.Marshal(struct {
		Type string
		E, N *big.Int
	}{"ssh-rsa", big.NewInt(int64(key.E)), key.N})
	priv := ssh.Marshal(struct {
		D, P, Q, Iqmp *big.Int
	}{key.D, key.Primes[0], key.Primes[1], key.Precomputed.Qinv})
	return assemblePPK(t, version, "ssh-rsa", "none", "wharf-test", pub, priv)
}

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return key
}

func assertSignerMatches(t *testing.T, signer ssh.Signer, pub any) {
	t.Helper()
	want, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("NewPublicKey: %v", err)
	}
	if !bytes.Equal(signer.PublicKey().Marshal(), want.Marshal()) {
		t.Fatal("signer public key does not match the source key")
	}
	data := []byte("wharf signing probe")
	sig, err := signer.Sign(rand.Reader, data)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := signer.PublicKey().Verify(data, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestParsePPKv2RSA(t *testing.T) {
	key := testRSAKey(t)
	signer, err := ParsePPK(rsaPPK(t, 2, key))
	if err != nil {
		t.Fatalf("ParsePPK: %v", err)
	}
	assertSignerMatches(t, signer, &key.PublicKey)
}

func TestParsePPKv3RSA(t *testing.T) {
	key := testRSAKey(t)
	signer, err := ParsePPK(rsaPPK(t, 3, key))
	if err != nil {
		t.Fatalf("ParsePPK: %v", err)
	}
	assertSignerMatches(t, signer, &key.PublicKey)
}

func TestParsePPKDSA(t *testing.T) {
	var params dsa.Parameters
	if err := dsa.GenerateParameters(&params, rand.Reader, dsa.L1024N160); err != nil {
		t.Fatalf("failed to generate DSA parameters: %v", err)
	}
	key := &dsa.PrivateKey{PublicKey: dsa.PublicKey{Parameters: params}}
	if err := dsa.GenerateKey(key, rand.Reader); err != nil {
		t.Fatalf("failed to generate DSA key: %v", err)
	}

	pub := ssh.Marshal(struct {
		Type       string
		P, Q, G, Y *big.Int
	}{"ssh-dss", key.P, key.Q, key.G, key.Y})
	priv := ssh.Marshal(struct {
		X *big.Int
	}{key.X})

	signer, err := ParsePPK(assemblePPK(t, 2, "ssh-dss", "none", "wharf-test", pub, priv))
	if err != nil {
		t.Fatalf("ParsePPK: %v", err)
	}
	assertSignerMatches(t, signer, &key.PublicKey)
}

func TestParsePPKEncrypted(t *testing.T) {
	key := testRSAKey(t)
	key.Precompute()
	pub := ssh.Marshal(struct {
		Type string
		E, N *big.Int
	}{"ssh-rsa", big.NewInt(int64(key.E)), key.N})
	// The blob content is irrelevant: the encryption header alone must
	// reject the key before any MAC or wire decoding happens.
	data := assemblePPK(t, 3, "ssh-rsa", "aes256-cbc", "wharf-test", pub, []byte("ciphertext"))

	_, err := ParsePPK(data)
	if !errors.Is(err, ErrKeyFormat) {
		t.Fatalf("err = %v, want ErrKeyFormat", err)
	}
	if !strings.Contains(err.Error(), "encrypted") {
		t.Errorf("error %q does not mention encryption", err)
	}
}

func TestParsePPKv1Rejected(t *testing.T) {
	_, err := ParsePPK([]byte("PuTTY-User-Key-File-1: ssh-rsa\r\nEncryption: none\r\n"))
	if !errors.Is(err, ErrKeyFormat) {
		t.Fatalf("err = %v, want ErrKeyFormat", err)
	}
}

func TestParsePPKBadMAC(t *testing.T) {
	key := testRSAKey(t)
	data := string(rsaPPK(t, 2, key))

	last := data[len(data)-3] // final MAC hex digit before \r\n
	flip := byte('0')
	if last == '0' {
		flip = '1'
	}
	data = data[:len(data)-3] + string(flip) + "\r\n"

	_, err := ParsePPK([]byte(data))
	if !errors.Is(err, ErrKeyFormat) {
		t.Fatalf("err = %v, want ErrKeyFormat", err)
	}
	if !strings.Contains(err.Error(), "MAC") {
		t.Errorf("error %q does not mention the MAC", err)
	}
}

func TestParsePPKTruncated(t *testing.T) {
	key := testRSAKey(t)
	data := rsaPPK(t, 2, key)
	_, err := ParsePPK(data[:len(data)/2])
	if !errors.Is(err, ErrKeyFormat) {
		t.Fatalf("err = %v, want ErrKeyFormat", err)
	}
}

func writeKeyFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	return path
}

func TestLoadPrivateKeyPEM(t *testing.T) {
	key := testRSAKey(t)
	data := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	signer, err := LoadPrivateKey(writeKeyFile(t, "id_rsa", data), "", false)
	if err != nil {
		t.Fatalf("LoadPrivateKey: %v", err)
	}
	assertSignerMatches(t, signer, &key.PublicKey)
}

func TestLoadPrivateKeyOpenSSH(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ed25519 key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "wharf-test")
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	signer, err := LoadPrivateKey(writeKeyFile(t, "id_ed25519", pem.EncodeToMemory(block)), "", false)
	if err != nil {
		t.Fatalf("LoadPrivateKey: %v", err)
	}
	assertSignerMatches(t, signer, pub)
}

func TestLoadPrivateKeyPassphrase(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ed25519 key: %v", err)
	}
	block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "wharf-test", []byte("hunter2"))
	if err != nil {
		t.Fatalf("MarshalPrivateKeyWithPassphrase: %v", err)
	}
	path := writeKeyFile(t, "id_ed25519", pem.EncodeToMemory(block))

	t.Run("missing passphrase", func(t *testing.T) {
		_, err := LoadPrivateKey(path, "", false)
		if !errors.Is(err, ErrAuth) {
			t.Errorf("err = %v, want ErrAuth", err)
		}
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		_, err := LoadPrivateKey(path, "swordfish", false)
		if !errors.Is(err, ErrAuth) {
			t.Errorf("err = %v, want ErrAuth", err)
		}
	})

	t.Run("correct passphrase", func(t *testing.T) {
		if _, err := LoadPrivateKey(path, "hunter2", false); err != nil {
			t.Errorf("LoadPrivateKey: %v", err)
		}
	})
}

func TestLoadPrivateKeySSH2Rejected(t *testing.T) {
	data := []byte("---- BEGIN SSH2 ENCRYPTED PRIVATE KEY ----\nComment: test\nAAAA\n---- END SSH2 ENCRYPTED PRIVATE KEY ----\n")
	_, err := LoadPrivateKey(writeKeyFile(t, "id_ssh2", data), "", false)
	if !errors.Is(err, ErrKeyFormat) {
		t.Fatalf("err = %v, want ErrKeyFormat", err)
	}
	if !strings.Contains(err.Error(), "puttygen") {
		t.Errorf("error %q should point at the conversion command", err)
	}
}

func TestLoadPrivateKeyGarbage(t *testing.T) {
	_, err := LoadPrivateKey(writeKeyFile(t, "noise", []byte("not a key at all")), "", false)
	if !errors.Is(err, ErrKeyFormat) {
		t.Fatalf("err = %v, want ErrKeyFormat", err)
	}
}

func TestLoadPrivateKeyMissingFile(t *testing.T) {
	_, err := LoadPrivateKey(filepath.Join(t.TempDir(), "absent"), "", false)
	if err == nil {
		t.Fatal("expected an error for a missing key file")
	}
	if errors.Is(err, ErrKeyFormat) {
		t.Errorf("missing file misreported as a format problem: %v", err)
	}
}
