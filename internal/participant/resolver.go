package participant

import (
	"context"
	"fmt"
	"strings"

	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/store"
)

// Resolution identifies the wallet and community behind an account address
type Resolution struct {
	WalletID    string
	CommunityID string
}

// Resolver resolves transfer participants and currency references. This is the
// boundary to the community/wallet provisioning system: the ledger only needs
// "is this address one of ours, and which currency is meant".
//
//go:generate mockgen -source=resolver.go -destination=../mocks/resolver.go -package=mocks -mock_names=Resolver=MockResolver
type Resolver interface {
	// ResolveParticipant maps an account address to its wallet/community, nil if unmanaged
	ResolveParticipant(ctx context.Context, accountAddress string) (*Resolution, error)
	// ResolveCurrency maps a currency symbol or token contract address to the
	// tracked currency, nil if unknown
	ResolveCurrency(ctx context.Context, symbolOrToken string) (*domain.Currency, error)
}

// Registry holds the configured set of tracked currencies
type Registry struct {
	bySymbol map[string]domain.Currency
	byToken  map[string]domain.Currency
	ordered  []domain.Currency
}

// NewRegistry builds a currency registry from configuration
func NewRegistry(currencies []domain.Currency) *Registry {
	r := &Registry{
		bySymbol: make(map[string]domain.Currency),
		byToken:  make(map[string]domain.Currency),
	}
	for _, currency := range currencies {
		r.bySymbol[strings.ToUpper(currency.Symbol)] = currency
		r.byToken[strings.ToLower(currency.TokenAddress)] = currency
		r.ordered = append(r.ordered, currency)
	}
	return r
}

// Currencies returns the tracked currencies in configuration order
func (r *Registry) Currencies() []domain.Currency {
	return r.ordered
}

// Lookup resolves a symbol or token address, nil if unknown
func (r *Registry) Lookup(symbolOrToken string) *domain.Currency {
	if currency, ok := r.bySymbol[strings.ToUpper(symbolOrToken)]; ok {
		return &currency
	}
	if currency, ok := r.byToken[strings.ToLower(symbolOrToken)]; ok {
		return &currency
	}
	return nil
}

type storeResolver struct {
	store    store.Store
	registry *Registry
}

// NewStoreResolver resolves participants against the wallets table and
// currencies against the configured registry
func NewStoreResolver(st store.Store, registry *Registry) Resolver {
	return &storeResolver{store: st, registry: registry}
}

func (r *storeResolver) ResolveParticipant(ctx context.Context, accountAddress string) (*Resolution, error) {
	wallet, err := r.store.GetWalletByAddress(ctx, accountAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve participant %s: %w", accountAddress, err)
	}
	if wallet == nil {
		return nil, nil
	}
	return &Resolution{WalletID: wallet.ID, CommunityID: wallet.CommunityID}, nil
}

func (r *storeResolver) ResolveCurrency(_ context.Context, symbolOrToken string) (*domain.Currency, error) {
	return r.registry.Lookup(symbolOrToken), nil
}
