package participant_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/participant"
	"github.com/communitypay/cc-ledger/internal/store"
	"github.com/communitypay/cc-ledger/internal/store/schema"
)

var currencies = []domain.Currency{
	{Symbol: "CPAY", TokenAddress: "0x1111000000000000000000000000000000000011", CreationBlock: 100, Decimals: 18},
	{Symbol: "LOCAL", TokenAddress: "0x2222000000000000000000000000000000000022", CreationBlock: 200, Decimals: 6},
}

func TestRegistryLookup(t *testing.T) {
	registry := participant.NewRegistry(currencies)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "by symbol", query: "CPAY", want: "CPAY"},
		{name: "symbol is case insensitive", query: "cpay", want: "CPAY"},
		{name: "by token address", query: "0x1111000000000000000000000000000000000011", want: "CPAY"},
		{name: "token address is case insensitive", query: "0x2222000000000000000000000000000000000022", want: "LOCAL"},
		{name: "unknown", query: "DOGE", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := registry.Lookup(tt.query)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Symbol)
		})
	}
}

func TestRegistryCurrenciesKeepConfigurationOrder(t *testing.T) {
	registry := participant.NewRegistry(currencies)

	got := registry.Currencies()
	require.Len(t, got, 2)
	assert.Equal(t, "CPAY", got[0].Symbol)
	assert.Equal(t, "LOCAL", got[1].Symbol)
}

func TestStoreResolverResolvesManagedWallet(t *testing.T) {
	st := store.NewMemoryStore()
	resolver := participant.NewStoreResolver(st, participant.NewRegistry(currencies))
	ctx := context.Background()

	address := "0xaaaa000000000000000000000000000000000001"
	require.NoError(t, st.CreateWallet(ctx, &schema.Wallet{
		ID:          "wallet-1",
		Address:     address,
		Type:        "user",
		CommunityID: "community-1",
	}))

	resolution, err := resolver.ResolveParticipant(ctx, address)
	require.NoError(t, err)
	require.NotNil(t, resolution)
	assert.Equal(t, "wallet-1", resolution.WalletID)
	assert.Equal(t, "community-1", resolution.CommunityID)

	unknown, err := resolver.ResolveParticipant(ctx, "0xeeee000000000000000000000000000000000009")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestStoreResolverResolvesCurrencyThroughRegistry(t *testing.T) {
	st := store.NewMemoryStore()
	resolver := participant.NewStoreResolver(st, participant.NewRegistry(currencies))
	ctx := context.Background()

	currency, err := resolver.ResolveCurrency(ctx, "local")
	require.NoError(t, err)
	require.NotNil(t, currency)
	assert.Equal(t, "LOCAL", currency.Symbol)
	assert.Equal(t, 6, currency.Decimals)

	missing, err := resolver.ResolveCurrency(ctx, "0xdead")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
