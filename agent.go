package stellarwork

import (
	"context"
	"fmt"

	"github.com/stellar/go-stellar-sdk/keypair"
	"github.com/stellar/go-stellar-sdk/txnbuild"
)

// Agent is the signing capability that holds the user's keys.
// Implementations talk to an external wallet (browser extension, daemon) or
// sign in-process. An Agent never retries and imposes no timeout of its own:
// the user may take as long as they like to approve a request.
type Agent interface {
	// Detect reports whether the agent is installed and reachable.
	// It never fails; any probe error collapses to false.
	Detect(ctx context.Context) bool

	// RequestAddress asks the agent for the active account address.
	// Fails with ErrAgentUnavailable or ErrUserDeclined.
	RequestAddress(ctx context.Context) (WalletAddress, error)

	// Sign asks the agent to sign unsigned for network using address.
	// Fails with ErrUserDeclined or ErrAgentError.
	Sign(ctx context.Context, unsigned *UnsignedTransaction, network string, address WalletAddress) (*SignedTransaction, error)
}

// VerifySigned checks that signedEnvelope is the unsigned transaction plus a
// valid signature of its source account, and returns the SignedTransaction
// for it.
func VerifySigned(unsigned *UnsignedTransaction, signedEnvelope string) (*SignedTransaction, error) {
	if unsigned == nil {
		return nil, fmt.Errorf("%w: unsigned transaction is nil", ErrAgentError)
	}
	if signedEnvelope == "" {
		return nil, fmt.Errorf("%w: empty signed envelope", ErrAgentError)
	}

	generic, err := txnbuild.TransactionFromXDR(signedEnvelope)
	if err != nil {
		return nil, fmt.Errorf("%w: decode signed envelope: %v", ErrAgentError, err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, fmt.Errorf("%w: signed envelope is not a plain transaction", ErrAgentError)
	}

	hash, err := tx.HashHex(unsigned.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: hash signed envelope: %v", ErrAgentError, err)
	}
	if hash != unsigned.Hash {
		return nil, fmt.Errorf("%w: signed transaction hash %s does not match %s", ErrAgentError, hash, unsigned.Hash)
	}
	if len(tx.Signatures()) == 0 {
		return nil, fmt.Errorf("%w: envelope carries no signature", ErrAgentError)
	}

	signer, err := keypair.ParseAddress(string(unsigned.Source))
	if err != nil {
		return nil, fmt.Errorf("%w: source %q: %v", ErrAgentError, unsigned.Source, err)
	}
	raw, err := tx.Hash(unsigned.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: hash signed envelope: %v", ErrAgentError, err)
	}
	verified := false
	for _, sig := range tx.Signatures() {
		if signer.Verify(raw[:], sig.Signature) == nil {
			verified = true
			break
		}
	}
	if !verified {
		return nil, fmt.Errorf("%w: no signature from source account %s", ErrAgentError, unsigned.Source)
	}

	return &SignedTransaction{
		Unsigned: *unsigned,
		Envelope: signedEnvelope,
		Hash:     hash,
	}, nil
}
