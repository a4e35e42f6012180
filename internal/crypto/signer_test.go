package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Throwaway key used only in tests.
const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestSignAndRecover(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	payload := []byte(`{"day":0,"amount":"100"}`)
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	caller, err := RecoverCaller(payload, sig)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), caller)

	// A tampered payload recovers a different address, never the signer.
	other, err := RecoverCaller([]byte(`{"day":1,"amount":"100"}`), sig)
	if err == nil {
		require.NotEqual(t, signer.Address(), other)
	}
}

func TestRecoverCallerRejectsGarbage(t *testing.T) {
	_, err := RecoverCaller([]byte("payload"), "not-hex")
	require.Error(t, err)

	_, err = RecoverCaller([]byte("payload"), "deadbeef")
	require.Error(t, err)
}

func TestSignRequestBindsEnvelope(t *testing.T) {
	signer, err := NewSigner(testKeyHex)
	require.NoError(t, err)

	body := []byte(`{"amount":"1"}`)
	sig, err := signer.SignRequest("POST", "/api/slots/2/bids", "1700000000-abc", body)
	require.NoError(t, err)

	caller, err := RecoverCaller(RequestPayload("POST", "/api/slots/2/bids", "1700000000-abc", body), sig)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), caller)

	// Any change to method, path, or nonce shifts the digest away from
	// the signer.
	for _, payload := range [][]byte{
		RequestPayload("PUT", "/api/slots/2/bids", "1700000000-abc", body),
		RequestPayload("POST", "/api/slots/0/buy", "1700000000-abc", body),
		RequestPayload("POST", "/api/slots/2/bids", "1700000000-xyz", body),
	} {
		other, err := RecoverCaller(payload, sig)
		if err == nil {
			require.NotEqual(t, signer.Address(), other)
		}
	}
}

func TestRecoverCallerAcceptsLegacyRecoveryByte(t *testing.T) {
	signer, err := NewSigner("0x" + testKeyHex)
	require.NoError(t, err)

	payload := []byte("hello")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)

	// Rewrite v from 0/1 to 27/28 the way browser wallets emit it.
	raw := []byte(sig)
	legacy := make([]byte, len(raw))
	copy(legacy, raw)
	last := legacy[len(legacy)-2:]
	switch string(last) {
	case "00":
		copy(legacy[len(legacy)-2:], "1b")
	case "01":
		copy(legacy[len(legacy)-2:], "1c")
	}

	caller, err := RecoverCaller(payload, string(legacy))
	require.NoError(t, err)
	require.Equal(t, signer.Address(), caller)
}

func TestEncryptDecryptKeyRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "correct horse")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "correct horse")
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)

	_, err = DecryptKey(blob, "wrong password")
	require.Error(t, err)
}

func TestLoadKeyPrefersRaw(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	require.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{})
	require.Error(t, err)
}
