// Package crypto provides caller authentication for the slot market API and
// key management for the operator account. Clients sign a request envelope
// (method, path, nonce, body) with their secp256k1 key; the server recovers
// the signing address and uses it as the authenticated caller of every
// market operation.
package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// signedMessagePrefix is the EIP-191 personal-message prefix. Signing the
// prefixed digest keeps request signatures incompatible with transaction
// signatures, so a captured API signature can never spend tokens.
const signedMessagePrefix = "\x19Ethereum Signed Message:\n"

// signatureLen is the length of an r||s||v signature in bytes.
const signatureLen = 65

// digest hashes a payload the personal-message way.
func digest(payload []byte) []byte {
	msg := signedMessagePrefix + strconv.Itoa(len(payload))
	return ethcrypto.Keccak256([]byte(msg), payload)
}

// Signer signs API payloads with a secp256k1 private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// RequestPayload builds the canonical byte string a caller signs: method,
// path, and nonce joined to the body by newlines. Binding the signature to
// the route and a single-use nonce keeps a captured frame from being
// replayed, on the same endpoint or any other.
func RequestPayload(method, path, nonce string, body []byte) []byte {
	payload := make([]byte, 0, len(method)+len(path)+len(nonce)+len(body)+3)
	payload = append(payload, method...)
	payload = append(payload, '\n')
	payload = append(payload, path...)
	payload = append(payload, '\n')
	payload = append(payload, nonce...)
	payload = append(payload, '\n')
	return append(payload, body...)
}

// SignRequest signs the canonical envelope for one API request.
func (s *Signer) SignRequest(method, path, nonce string, body []byte) (string, error) {
	return s.Sign(RequestPayload(method, path, nonce, body))
}

// Sign returns the hex-encoded 65-byte signature over payload.
func (s *Signer) Sign(payload []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest(payload), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: sign: %w", err)
	}
	return hex.EncodeToString(sig), nil
}

// RecoverCaller verifies sigHex over payload and returns the address that
// produced it. The recovered address is the authenticated caller identity.
func RecoverCaller(payload []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: signature is not valid hex: %w", err)
	}
	if len(sig) != signatureLen {
		return common.Address{}, fmt.Errorf("crypto: expected %d-byte signature, got %d bytes", signatureLen, len(sig))
	}

	// Normalise the recovery byte: wallets emit v as 27/28, Sign emits 0/1.
	if sig[64] >= 27 {
		sig = append(append([]byte(nil), sig[:64]...), sig[64]-27)
	}

	pub, err := ethcrypto.SigToPub(digest(payload), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
