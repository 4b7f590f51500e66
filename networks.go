package stellarwork

import (
	"fmt"
	"strings"

	"github.com/stellar/go-stellar-sdk/network"
)

// Network names accepted in configuration.
const (
	NetworkTestnet   = "testnet"
	NetworkPublic    = "public"
	NetworkFuturenet = "futurenet"
)

// NetworkConfig holds the constants for one Stellar network.
type NetworkConfig struct {
	// Name is the short configuration name.
	Name string

	// Passphrase is the network passphrase transactions are hashed with.
	Passphrase string

	// HorizonURL is the default Horizon endpoint.
	HorizonURL string
}

// Predefined network configurations.
var (
	// Testnet is the Stellar test network. It is the default.
	Testnet = NetworkConfig{
		Name:       NetworkTestnet,
		Passphrase: network.TestNetworkPassphrase,
		HorizonURL: "https://horizon-testnet.stellar.org",
	}

	// Public is the Stellar public network.
	Public = NetworkConfig{
		Name:       NetworkPublic,
		Passphrase: network.PublicNetworkPassphrase,
		HorizonURL: "https://horizon.stellar.org",
	}

	// Futurenet is the Stellar future network.
	Futurenet = NetworkConfig{
		Name:       NetworkFuturenet,
		Passphrase: network.FutureNetworkPassphrase,
		HorizonURL: "https://horizon-futurenet.stellar.org",
	}
)

var networkByName = map[string]NetworkConfig{
	NetworkTestnet:   Testnet,
	NetworkPublic:    Public,
	NetworkFuturenet: Futurenet,
}

// GetNetworkConfig returns the configuration for a network name or passphrase.
// Returns an error if the network is not recognized.
func GetNetworkConfig(nameOrPassphrase string) (NetworkConfig, error) {
	if nameOrPassphrase == "" {
		return NetworkConfig{}, fmt.Errorf("%w: network cannot be empty", ErrInvalidNetwork)
	}
	if cfg, ok := networkByName[strings.ToLower(nameOrPassphrase)]; ok {
		return cfg, nil
	}
	for _, cfg := range networkByName {
		if cfg.Passphrase == nameOrPassphrase {
			return cfg, nil
		}
	}
	return NetworkConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, nameOrPassphrase)
}

// ValidatePassphrase reports whether passphrase belongs to a known network.
func ValidatePassphrase(passphrase string) error {
	for _, cfg := range networkByName {
		if cfg.Passphrase == passphrase {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown passphrase %q", ErrInvalidNetwork, passphrase)
}
