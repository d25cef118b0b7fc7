// Package codec turns authorization data into the canonical byte blobs that
// are signed off chain and verified by the mint controller contract.  Every
// function is pure.  Outputs are part of the on-chain protocol: changing any
// layout here breaks signatures already handed out.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

var (
	ErrNameTooLong    = errors.New("codec: category name longer than 32 bytes")
	ErrInvalidGroupID = errors.New("codec: group id must be a 32 byte hex string")
	ErrInvalidPrice   = errors.New("codec: invalid price entry")
	ErrMalformedArgs  = errors.New("codec: malformed args")
)

var (
	bytes32Type    = mustType("bytes32")
	uint256Type    = mustType("uint256")
	bytesType      = mustType("bytes")
	addressesType  = mustType("address[]")
	uint256sType   = mustType("uint256[]")
	selectorLayout = abi.Arguments{{Type: bytes32Type}, {Type: bytes32Type}}
	codesLayout    = abi.Arguments{{Type: uint256Type}}
	pricesLayout   = abi.Arguments{{Type: addressesType}, {Type: uint256sType}, {Type: uint256sType}}
	argsLayout     = abi.Arguments{
		{Type: bytes32Type}, // group id
		{Type: bytes32Type}, // category name
		{Type: uint256Type}, // code
		{Type: uint256Type}, // expiration, unix seconds
		{Type: bytesType},   // encoded prices
	}
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// ToB32 left aligns s in a 32 byte word, zero padded on the right.
func ToB32(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) > 32 {
		return out, fmt.Errorf("%w: %q", ErrNameTooLong, s)
	}
	copy(out[:], s)
	return out, nil
}

// FromB32 reverses ToB32.
func FromB32(b [32]byte) string {
	return strings.TrimRight(string(b[:]), "\x00")
}

// GroupIDBytes parses a 0x prefixed (or bare) 32 byte hex group identifier.
func GroupIDBytes(groupID string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(groupID), "0x"))
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("%w: %q", ErrInvalidGroupID, groupID)
	}
	copy(out[:], raw)
	return out, nil
}

// ToSelectorFormat returns keccak256(abi.encode(groupId, categoryName)).  All
// authorizations of one category share it.
func ToSelectorFormat(groupID string, category [32]byte) ([]byte, error) {
	group, err := GroupIDBytes(groupID)
	if err != nil {
		return nil, err
	}
	packed, err := selectorLayout.Pack(group, category)
	if err != nil {
		return nil, err
	}
	return Keccak256(packed), nil
}

// Selector is ToSelectorFormat for a plain category name.
func Selector(groupID, categoryName string) ([]byte, error) {
	category, err := ToB32(categoryName)
	if err != nil {
		return nil, err
	}
	return ToSelectorFormat(groupID, category)
}

// CodeFor derives the uint256 authorization code of an authorization id.
func CodeFor(authorizationID string) *big.Int {
	return new(big.Int).SetBytes(Keccak256([]byte(authorizationID)))
}

// ToCodesFormat returns abi.encode(uint256 code).
func ToCodesFormat(code *big.Int) ([]byte, error) {
	if code == nil || code.Sign() < 0 {
		return nil, fmt.Errorf("codec: invalid code %v", code)
	}
	return codesLayout.Pack(code)
}

// PriceEntry is one currency amount of an authorization.
type PriceEntry struct {
	Currency common.Address
	Value    *big.Int
	Fee      *big.Int
}

// EncodePrices returns abi.encode(address[] currencies, uint256[] values,
// uint256[] fees).
func EncodePrices(prices []PriceEntry) ([]byte, error) {
	currencies := make([]common.Address, 0, len(prices))
	values := make([]*big.Int, 0, len(prices))
	fees := make([]*big.Int, 0, len(prices))
	for i, p := range prices {
		if p.Value == nil || p.Fee == nil || p.Value.Sign() < 0 || p.Fee.Sign() < 0 {
			return nil, fmt.Errorf("%w at index %d", ErrInvalidPrice, i)
		}
		currencies = append(currencies, p.Currency)
		values = append(values, p.Value)
		fees = append(fees, p.Fee)
	}
	return pricesLayout.Pack(currencies, values, fees)
}

// DecodePrices reverses EncodePrices.
func DecodePrices(data []byte) ([]PriceEntry, error) {
	out, err := pricesLayout.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArgs, err)
	}
	currencies, ok1 := out[0].([]common.Address)
	values, ok2 := out[1].([]*big.Int)
	fees, ok3 := out[2].([]*big.Int)
	if !ok1 || !ok2 || !ok3 || len(currencies) != len(values) || len(values) != len(fees) {
		return nil, ErrMalformedArgs
	}
	prices := make([]PriceEntry, len(currencies))
	for i := range currencies {
		prices[i] = PriceEntry{Currency: currencies[i], Value: values[i], Fee: fees[i]}
	}
	return prices, nil
}

// ToArgsFormat returns abi.encode(bytes32 groupId, bytes32 categoryName,
// uint256 code, uint256 expiration, bytes prices).
func ToArgsFormat(encodedPrices []byte, groupID string, category [32]byte, code *big.Int, expiration int64) ([]byte, error) {
	group, err := GroupIDBytes(groupID)
	if err != nil {
		return nil, err
	}
	if code == nil || code.Sign() < 0 {
		return nil, fmt.Errorf("codec: invalid code %v", code)
	}
	if expiration < 0 {
		return nil, fmt.Errorf("codec: negative expiration %d", expiration)
	}
	return argsLayout.Pack(group, category, code, big.NewInt(expiration), encodedPrices)
}

// Args is the decoded form of an args blob.
type Args struct {
	GroupID    [32]byte
	Category   [32]byte
	Code       *big.Int
	Expiration int64
	Prices     []byte
}

// ExpiresAt returns the embedded expiration as a UTC time.
func (a Args) ExpiresAt() time.Time {
	return time.Unix(a.Expiration, 0).UTC()
}

// DecodeArgs reverses ToArgsFormat.
func DecodeArgs(data []byte) (Args, error) {
	out, err := argsLayout.Unpack(data)
	if err != nil {
		return Args{}, fmt.Errorf("%w: %v", ErrMalformedArgs, err)
	}
	group, ok1 := out[0].([32]byte)
	category, ok2 := out[1].([32]byte)
	code, ok3 := out[2].(*big.Int)
	expiration, ok4 := out[3].(*big.Int)
	prices, ok5 := out[4].([]byte)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !expiration.IsInt64() {
		return Args{}, ErrMalformedArgs
	}
	return Args{
		GroupID:    group,
		Category:   category,
		Code:       code,
		Expiration: expiration.Int64(),
		Prices:     prices,
	}, nil
}
