package wallet

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// Purpose is the BIP-44 purpose field.
	Purpose = 44
	// CoinType is the registered coin type used for every vault account.
	CoinType = 8888

	// MaxHardenedValue is the max value for hardened indexes of derivation
	// paths
	MaxHardenedValue = math.MaxUint32 - hdkeychain.HardenedKeyStart
)

// DerivationPath is the internal representation of a hierarchical
// deterministic wallet account
type DerivationPath []uint32

// AccountDerivationPath returns m/44'/CoinType'/index'/0'/0'. Every element is
// hardened since SLIP-10 ed25519 does not support public derivation.
func AccountDerivationPath(index uint32) DerivationPath {
	return DerivationPath{
		hdkeychain.HardenedKeyStart + Purpose,
		hdkeychain.HardenedKeyStart + CoinType,
		hdkeychain.HardenedKeyStart + index,
		hdkeychain.HardenedKeyStart,
		hdkeychain.HardenedKeyStart,
	}
}

// ParseDerivationPath converts a derivation path string to the
// internal binary representation
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	var path DerivationPath

	elems := strings.Split(strPath, "/")
	switch {
	case strPath == "":
		return nil, ErrNullDerivationPath

	case containsEmptyString(elems):
		return nil, ErrMalformedDerivationPath
	case len(elems) < 2:
		return nil, ErrMalformedDerivationPath

	default:
		if strings.TrimSpace(elems[0]) == "m" {
			elems = elems[1:]
		}
	}

	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		if !strings.HasSuffix(elem, "'") {
			return nil, ErrNonHardenedDerivationPath
		}
		elem = strings.TrimSpace(strings.TrimSuffix(elem, "'"))

		// use big int for convertion
		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("invalid elem '%s' in path", elem)
		}

		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(MaxHardenedValue))) > 0 {
			return nil, fmt.Errorf(
				"elem %v must be in hardened range [0, %d]", bigval, MaxHardenedValue,
			)
		}

		path = append(path, hdkeychain.HardenedKeyStart+uint32(bigval.Uint64()))
	}

	return path, nil
}

// String converts a binary derivation path to its canonical representation
func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}

	result := "m"
	for _, component := range path {
		var hardened bool
		if component >= hdkeychain.HardenedKeyStart {
			component -= hdkeychain.HardenedKeyStart
			hardened = true
		}
		result = fmt.Sprintf("%s/%d", result, component)
		if hardened {
			result += "'"
		}
	}
	return result
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if s == "" {
			return true
		}
	}
	return false
}
