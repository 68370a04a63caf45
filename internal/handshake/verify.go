package handshake

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/signalhub/signalhub"
)

var (
	addressPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	signaturePattern = regexp.MustCompile(`^0x[0-9a-fA-F]{130}$`)
)

// Response is the client's answer to a pending challenge.
type Response struct {
	Signature string
	Address   string
}

// Result is the outcome of Verify: on success Address carries the
// lowercased, server-trusted wallet address; on failure Reason carries one
// of the fixed failure strings from signalhub's error constants.
type Result struct {
	OK      bool
	Address string
	Reason  string
}

// Verify checks resp against the pending challenge for handle. The pending
// challenge is consumed (single use) regardless of outcome.
func (e *Engine) Verify(handle string, resp Response) Result {
	challenge, ok := e.peek(handle)
	e.Drop(handle)
	if !ok {
		return Result{Reason: signalhub.ErrNoPendingChallenge}
	}

	if time.Now().After(challenge.Expiry) {
		return Result{Reason: signalhub.ErrChallengeExpired}
	}

	if resp.Signature == "" || resp.Address == "" {
		return Result{Reason: signalhub.ErrMissingSigOrAddr}
	}

	if !addressPattern.MatchString(resp.Address) {
		return Result{Reason: signalhub.ErrInvalidAddressFormat}
	}

	if !signaturePattern.MatchString(resp.Signature) {
		return Result{Reason: signalhub.ErrInvalidSigFormat}
	}

	recovered, err := recoverAddress(challenge.Message, resp.Signature)
	if err != nil {
		return Result{Reason: signalhub.ErrSignatureVerifyError}
	}

	if !strings.EqualFold(recovered, resp.Address) {
		return Result{Reason: signalhub.ErrSignatureMismatch}
	}

	return Result{OK: true, Address: strings.ToLower(resp.Address)}
}

// recoverAddress recovers the signer address from an EIP-191 personal_sign
// signature over message: the signed payload is
// "\x19Ethereum Signed Message:\n<len(message)><message>".
func recoverAddress(message, signatureHex string) (string, error) {
	sig, err := decodeHexSignature(signatureHex)
	if err != nil {
		return "", err
	}

	hash := eip191Hash(message)

	// go-ethereum's SigToPub expects the recovery id in sig[64] as 0 or 1;
	// wallets (MetaMask, ethers, viem) produce 27/28.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}

func eip191Hash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256Hash([]byte(prefixed)).Bytes()
}

func decodeHexSignature(signatureHex string) ([]byte, error) {
	sig := common.FromHex(signatureHex)
	if len(sig) != 65 {
		return nil, fmt.Errorf("signature must decode to 65 bytes, got %d", len(sig))
	}
	out := make([]byte, 65)
	copy(out, sig)
	return out, nil
}
