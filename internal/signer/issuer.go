// Package signer issues mint authorizations: it encodes each requested
// ticket with the codec, signs the result with the platform key and stores
// the signed records.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/ticketforge/mint-engine/internal/clock"
	"github.com/ticketforge/mint-engine/internal/codec"
	"github.com/ticketforge/mint-engine/internal/model"
)

var (
	ErrFeeCountMismatch   = errors.New("signer: one fee per requested ticket expected")
	ErrInvalidExpiration  = errors.New("signer: expiration must be positive")
	ErrInvalidGrantee     = errors.New("signer: invalid grantee address")
	ErrUnknownCategory    = errors.New("signer: unknown category")
	ErrUnknownCurrency    = errors.New("signer: unknown currency")
	ErrInvalidTicketPrice = errors.New("signer: invalid ticket price")
	ErrInvalidSignature   = errors.New("signer: invalid signature")
)

type CategoryStore interface {
	Search(ctx context.Context, id string) ([]model.CategoryInventory, error)
}

type CurrencyStore interface {
	Get(ctx context.Context, name string) (model.Currency, error)
}

type GroupControllers interface {
	ControllerOf(ctx context.Context, groupID string) (string, error)
}

type AuthorizationWriter interface {
	CreateMany(ctx context.Context, records []model.AuthorizationRecord) error
}

// Issuer signs authorizations with a single platform key.
type Issuer struct {
	key        *ecdsa.PrivateKey
	granter    common.Address
	categories CategoryStore
	currencies CurrencyStore
	groups     GroupControllers
	store      AuthorizationWriter
	clock      clock.Clock
	grace      time.Duration
	logger     *slog.Logger
	newID      func() string
}

type Option func(*Issuer)

// WithGrace extends the backend expiration of every record past the one
// shown to the user.
func WithGrace(d time.Duration) Option { return func(i *Issuer) { i.grace = d } }

func WithLogger(l *slog.Logger) Option {
	return func(i *Issuer) {
		if l != nil {
			i.logger = l
		}
	}
}

func withIDs(f func() string) Option { return func(i *Issuer) { i.newID = f } }

func NewIssuer(key *ecdsa.PrivateKey, categories CategoryStore, currencies CurrencyStore, groups GroupControllers, store AuthorizationWriter, clk clock.Clock, opts ...Option) *Issuer {
	i := &Issuer{
		key:        key,
		granter:    crypto.PubkeyToAddress(key.PublicKey),
		categories: categories,
		currencies: currencies,
		groups:     groups,
		store:      store,
		clock:      clk,
		logger:     slog.Default(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// LoadKey parses a hex encoded secp256k1 private key, with or without 0x.
func LoadKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	return crypto.HexToECDSA(hexKey)
}

// Granter is the address authorizations are issued from.
func (i *Issuer) Granter() common.Address { return i.granter }

// ValidateTicketAuthorizations issues one signed authorization per requested
// ticket and returns them in request order.  Nothing is stored unless every
// ticket could be encoded and signed.
func (i *Issuer) ValidateTicketAuthorizations(ctx context.Context, req model.AuthorizationRequest) ([]model.AuthorizedTicketMintingFormat, error) {
	if len(req.Fees) != 0 && len(req.Fees) != len(req.Requested) {
		return nil, fmt.Errorf("%w: %d fees for %d tickets", ErrFeeCountMismatch, len(req.Fees), len(req.Requested))
	}
	if req.Expiration <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpiration, req.Expiration)
	}
	if !common.IsHexAddress(req.Grantee) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGrantee, req.Grantee)
	}
	grantee := common.HexToAddress(req.Grantee)

	now := i.clock.Now()
	userExpiration := now.Add(req.Expiration).Truncate(time.Second)
	beExpiration := userExpiration.Add(i.grace)

	categories := make(map[string]model.CategoryInventory)
	controllers := make(map[string]string)
	currencies := make(map[string]common.Address)

	records := make([]model.AuthorizationRecord, 0, len(req.Requested))
	out := make([]model.AuthorizedTicketMintingFormat, 0, len(req.Requested))
	for n, ticket := range req.Requested {
		category, ok := categories[ticket.CategoryID]
		if !ok {
			found, err := i.categories.Search(ctx, ticket.CategoryID)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", ticket.CategoryID, err)
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, ticket.CategoryID)
			}
			category = found[0]
			categories[ticket.CategoryID] = category
		}
		controller, ok := controllers[category.GroupID]
		if !ok {
			c, err := i.groups.ControllerOf(ctx, category.GroupID)
			if err != nil {
				return nil, fmt.Errorf("group %s: %w", category.GroupID, err)
			}
			controller = c
			controllers[category.GroupID] = c
		}
		currency, ok := currencies[ticket.Price.Currency]
		if !ok {
			c, err := i.currencies.Get(ctx, ticket.Price.Currency)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrUnknownCurrency, ticket.Price.Currency, err)
			}
			currency = common.HexToAddress(c.Address)
			currencies[ticket.Price.Currency] = currency
		}

		value, ok := ticket.Price.Amount()
		if !ok {
			return nil, fmt.Errorf("%w: ticket %d: %q", ErrInvalidTicketPrice, n, ticket.Price.Value)
		}
		fee := new(big.Int)
		if len(req.Fees) > 0 {
			if _, ok := fee.SetString(req.Fees[n], 10); !ok || fee.Sign() < 0 {
				return nil, fmt.Errorf("%w: fee %d: %q", ErrInvalidTicketPrice, n, req.Fees[n])
			}
		}

		id := i.newID()
		record, err := i.sign(id, category, codec.PriceEntry{Currency: currency, Value: value, Fee: fee}, grantee, userExpiration)
		if err != nil {
			return nil, fmt.Errorf("ticket %d: %w", n, err)
		}
		record.ReadableSignature = req.SignatureReadable
		record.UserExpiration = userExpiration
		record.BeExpiration = beExpiration
		records = append(records, record)

		out = append(out, model.AuthorizedTicketMintingFormat{
			CategoryID:        ticket.CategoryID,
			Price:             ticket.Price,
			AuthorizationID:   id,
			GroupID:           category.GroupID,
			CategoryName:      category.CategoryName,
			Granter:           record.Granter,
			Grantee:           record.Grantee,
			GranterController: controller,
			Expiration:        userExpiration,
		})
	}

	if err := i.store.CreateMany(ctx, records); err != nil {
		return nil, fmt.Errorf("store authorizations: %w", err)
	}
	i.logger.Info("authorizations issued", "grantee", grantee.Hex(), "count", len(records), "expiresAt", userExpiration)
	return out, nil
}

func (i *Issuer) sign(id string, category model.CategoryInventory, price codec.PriceEntry, grantee common.Address, expiration time.Time) (model.AuthorizationRecord, error) {
	name, err := codec.ToB32(category.CategoryName)
	if err != nil {
		return model.AuthorizationRecord{}, err
	}
	selectors, err := codec.ToSelectorFormat(category.GroupID, name)
	if err != nil {
		return model.AuthorizationRecord{}, err
	}
	code := codec.CodeFor(id)
	codes, err := codec.ToCodesFormat(code)
	if err != nil {
		return model.AuthorizationRecord{}, err
	}
	prices, err := codec.EncodePrices([]codec.PriceEntry{price})
	if err != nil {
		return model.AuthorizationRecord{}, err
	}
	args, err := codec.ToArgsFormat(prices, category.GroupID, name, code, expiration.Unix())
	if err != nil {
		return model.AuthorizationRecord{}, err
	}

	sig, err := crypto.Sign(Digest(codes, args, selectors, grantee), i.key)
	if err != nil {
		return model.AuthorizationRecord{}, err
	}
	signature := hexutil.Encode(sig)
	return model.AuthorizationRecord{
		ID:        id,
		Granter:   i.granter.Hex(),
		Grantee:   grantee.Hex(),
		Mode:      model.ModeMint,
		Codes:     codes,
		Selectors: selectors,
		Args:      args,
		Signature: &signature,
	}, nil
}

// Digest is the hash an authorization signature covers.
func Digest(codes, args, selectors []byte, grantee common.Address) []byte {
	return codec.Keccak256(codes, args, selectors, grantee.Bytes())
}

// Recover returns the address that signed record.
func Recover(record model.AuthorizationRecord) (common.Address, error) {
	if record.Signature == nil {
		return common.Address{}, ErrInvalidSignature
	}
	sig, err := hexutil.Decode(*record.Signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	pub, err := crypto.SigToPub(Digest(record.Codes, record.Args, record.Selectors, common.HexToAddress(record.Grantee)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
