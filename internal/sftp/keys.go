package sftp

import (
	"bufio"
	"bytes"
	"crypto/dsa"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

const (
	ppkMagic  = "PuTTY-User-Key-File-"
	ssh2Magic = "---- BEGIN SSH2"
)

// keyInstructions is appended to ErrKeyFormat failures so operators can
// fix the key without digging through docs.
const keyInstructions = "convert it with `puttygen <key> -O private-openssh` or `ssh-keygen -p -m PEM`"

// LoadPrivateKey reads a private key file and returns a signer. OpenSSH
// and PEM keys go through x/crypto/ssh; PuTTY .ppk v2/v3 keys are
// converted in memory by the built-in parser. When allowPuttygen is set
// keys the parser cannot handle (encrypted .ppk, ssh.com SSH2) are
// handed to an external puttygen as a last resort.
func LoadPrivateKey(path, passphrase string, allowPuttygen bool) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	signer, err := parsePrivateKey(data, passphrase)
	if err != nil && allowPuttygen && errors.Is(err, ErrKeyFormat) {
		return puttygenConvert(path, passphrase)
	}
	if err != nil {
		return nil, err
	}
	return signer, nil
}

func parsePrivateKey(data []byte, passphrase string) (ssh.Signer, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte(ppkMagic)) {
		return ParsePPK(trimmed)
	}
	if bytes.HasPrefix(trimmed, []byte(ssh2Magic)) {
		return nil, fmt.Errorf("%w: ssh.com SSH2 keys are not parsed natively; %s", ErrKeyFormat, keyInstructions)
	}

	var signer ssh.Signer
	var err error
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(data)
	}
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return nil, fmt.Errorf("%w: key is passphrase-protected, set sftp.key_passphrase", ErrAuth)
	}
	if errors.Is(err, x509.IncorrectPasswordError) {
		return nil, fmt.Errorf("%w: key passphrase rejected", ErrAuth)
	}
	return nil, fmt.Errorf("%w: unsupported or corrupt private key (%v); %s", ErrKeyFormat, err, keyInstructions)
}

// ppkFile is the line-oriented envelope shared by PPK v2 and v3.
type ppkFile struct {
	version    int
	algorithm  string
	encryption string
	comment    string
	public     []byte
	private    []byte
	mac        string
}

// ParsePPK converts an unencrypted PuTTY .ppk (version 2 or 3) into a
// signer. The RSA and DSA components are decoded straight from the SSH
// wire format inside the key blobs, so no temporary files or external
// tools are involved. Encrypted keys and other key families return
// ErrKeyFormat.
func ParsePPK(data []byte) (ssh.Signer, error) {
	f, err := parsePPKEnvelope(data)
	if err != nil {
		return nil, err
	}
	if f.encryption != "none" {
		return nil, fmt.Errorf("%w: .ppk key is encrypted (%s); decrypt it first or %s", ErrKeyFormat, f.encryption, keyInstructions)
	}
	if err := verifyPPKMAC(f); err != nil {
		return nil, err
	}
	return ppkSigner(f)
}

func parsePPKEnvelope(data []byte) (*ppkFile, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	f := &ppkFile{}

	name, value, err := ppkHeader(sc)
	if err != nil {
		return nil, err
	}
	switch name {
	case "PuTTY-User-Key-File-2":
		f.version = 2
	case "PuTTY-User-Key-File-3":
		f.version = 3
	case "PuTTY-User-Key-File-1":
		return nil, fmt.Errorf("%w: .ppk version 1 is not supported; re-export the key with a current puttygen", ErrKeyFormat)
	default:
		return nil, fmt.Errorf("%w: not a PuTTY key file", ErrKeyFormat)
	}
	f.algorithm = value

	for {
		name, value, err = ppkHeader(sc)
		if err != nil {
			return nil, err
		}
		switch name {
		case "Encryption":
			f.encryption = value
		case "Comment":
			f.comment = value
		case "Public-Lines":
			f.public, err = ppkBlob(sc, value)
			if err != nil {
				return nil, err
			}
		case "Private-Lines":
			f.private, err = ppkBlob(sc, value)
			if err != nil {
				return nil, err
			}
		case "Private-MAC":
			f.mac = value
			if f.public == nil || f.private == nil {
				return nil, fmt.Errorf("%w: truncated .ppk file", ErrKeyFormat)
			}
			return f, nil
		case "Key-Derivation", "Argon2-Memory", "Argon2-Passes", "Argon2-Parallelism", "Argon2-Salt":
			// present only on encrypted v3 keys, which are rejected
			// above once Encryption is known
		default:
			return nil, fmt.Errorf("%w: unexpected .ppk header %q", ErrKeyFormat, name)
		}
	}
}

func ppkHeader(sc *bufio.Scanner) (name, value string, err error) {
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", "", fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		return "", "", fmt.Errorf("%w: truncated .ppk file", ErrKeyFormat)
	}
	line := strings.TrimRight(sc.Text(), "\r")
	name, value, ok := strings.Cut(line, ": ")
	if !ok {
		return "", "", fmt.Errorf("%w: malformed .ppk header line %q", ErrKeyFormat, line)
	}
	return name, value, nil
}

func ppkBlob(sc *bufio.Scanner, countField string) ([]byte, error) {
	count, err := strconv.Atoi(countField)
	if err != nil || count < 1 {
		return nil, fmt.Errorf("%w: bad .ppk line count %q", ErrKeyFormat, countField)
	}
	var b64 strings.Builder
	for i := 0; i < count; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: truncated .ppk key blob", ErrKeyFormat)
		}
		b64.WriteString(strings.TrimRight(sc.Text(), "\r"))
	}
	blob, err := base64.StdEncoding.DecodeString(b64.String())
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 in .ppk key blob: %v", ErrKeyFormat, err)
	}
	return blob, nil
}

// verifyPPKMAC checks the Private-MAC trailer. v2 uses HMAC-SHA-1 keyed
// with SHA-1("putty-private-key-file-mac-key"); v3 uses HMAC-SHA-256
// with an empty key when the file is unencrypted. The MAC input is the
// algorithm, encryption, comment, and both blobs, each length-prefixed.
func verifyPPKMAC(f *ppkFile) error {
	payload := ssh.Marshal(struct {
		Algorithm  string
		Encryption string
		Comment    string
		Public     []byte
		Private    []byte
	}{f.algorithm, f.encryption, f.comment, f.public, f.private})

	var mac []byte
	switch f.version {
	case 2:
		key := sha1.Sum([]byte("putty-private-key-file-mac-key"))
		h := hmac.New(sha1.New, key[:])
		h.Write(payload)
		mac = h.Sum(nil)
	case 3:
		h := hmac.New(sha256.New, nil)
		h.Write(payload)
		mac = h.Sum(nil)
	}

	want, err := hex.DecodeString(f.mac)
	if err != nil || !hmac.Equal(mac, want) {
		return fmt.Errorf("%w: .ppk MAC mismatch (file corrupt or tampered)", ErrKeyFormat)
	}
	return nil
}

func ppkSigner(f *ppkFile) (ssh.Signer, error) {
	switch f.algorithm {
	case "ssh-rsa":
		var pub struct {
			Type string
			E, N *big.Int
		}
		if err := ssh.Unmarshal(f.public, &pub); err != nil {
			return nil, fmt.Errorf("%w: bad RSA public blob: %v", ErrKeyFormat, err)
		}
		var priv struct {
			D, P, Q, Iqmp *big.Int
			Pad           []byte `ssh:"rest"`
		}
		if err := ssh.Unmarshal(f.private, &priv); err != nil {
			return nil, fmt.Errorf("%w: bad RSA private blob: %v", ErrKeyFormat, err)
		}
		if !pub.E.IsInt64() {
			return nil, fmt.Errorf("%w: RSA exponent out of range", ErrKeyFormat)
		}
		key := &rsa.PrivateKey{
			PublicKey: rsa.PublicKey{N: pub.N, E: int(pub.E.Int64())},
			D:         priv.D,
			Primes:    []*big.Int{priv.P, priv.Q},
		}
		key.Precompute()
		if err := key.Validate(); err != nil {
			return nil, fmt.Errorf("%w: RSA components do not form a valid key: %v", ErrKeyFormat, err)
		}
		return ssh.NewSignerFromKey(key)

	case "ssh-dss":
		var pub struct {
			Type       string
			P, Q, G, Y *big.Int
		}
		if err := ssh.Unmarshal(f.public, &pub); err != nil {
			return nil, fmt.Errorf("%w: bad DSA public blob: %v", ErrKeyFormat, err)
		}
		var priv struct {
			X   *big.Int
			Pad []byte `ssh:"rest"`
		}
		if err := ssh.Unmarshal(f.private, &priv); err != nil {
			return nil, fmt.Errorf("%w: bad DSA private blob: %v", ErrKeyFormat, err)
		}
		key := &dsa.PrivateKey{
			PublicKey: dsa.PublicKey{
				Parameters: dsa.Parameters{P: pub.P, Q: pub.Q, G: pub.G},
				Y:          pub.Y,
			},
			X: priv.X,
		}
		return ssh.NewSignerFromKey(key)

	default:
		return nil, fmt.Errorf("%w: .ppk key family %s is not supported; %s", ErrKeyFormat, f.algorithm, keyInstructions)
	}
}

// puttygenConvert shells out to puttygen for keys the built-in parser
// rejects. Only reachable when sftp.allow_puttygen is set.
func puttygenConvert(path, passphrase string) (ssh.Signer, error) {
	dir, err := os.MkdirTemp("", "wharf-key-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for key conversion: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "converted")
	args := []string{path, "-O", "private-openssh", "-o", out}
	if passphrase != "" {
		passFile := filepath.Join(dir, "passphrase")
		if err := os.WriteFile(passFile, []byte(passphrase+"\n"), 0o600); err != nil {
			return nil, fmt.Errorf("failed to stage passphrase file: %w", err)
		}
		args = append(args, "--old-passphrase-file", passFile, "--new-passphrase-file", passFile)
	}

	if output, err := exec.Command("puttygen", args...).CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: puttygen conversion failed: %v (%s)", ErrKeyFormat, err, strings.TrimSpace(string(output)))
	}

	converted, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted key: %w", err)
	}
	return parsePrivateKey(converted, passphrase)
}
