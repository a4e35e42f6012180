package postgres

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/adcal/slotmarket/internal/domain"
)

func TestAmountTextRoundTrip(t *testing.T) {
	cases := []string{
		"0",
		"1",
		"1000000000000000000",
		"115792089237316195423570985008687907853269984665640564039457584007913129639935",
	}
	for _, want := range cases {
		v, err := parseAmount(want)
		require.NoError(t, err)
		require.Equal(t, want, amountText(v))
	}
}

func TestAmountTextNil(t *testing.T) {
	require.Equal(t, "0", amountText(nil))
}

func TestParseAmountMalformed(t *testing.T) {
	for _, s := range []string{"", "abc", "1.5", "0x10"} {
		_, err := parseAmount(s)
		require.Error(t, err, "input %q", s)
	}
}

func TestBidColumns(t *testing.T) {
	bidder, amount := bidColumns(domain.Slot{})
	require.Nil(t, bidder)
	require.Nil(t, amount)

	addr := common.HexToAddress("0x0000000000000000000000000000000000000042")
	bidder, amount = bidColumns(domain.Slot{
		Bid: &domain.Bid{Bidder: addr, Amount: big.NewInt(7)},
	})
	require.NotNil(t, bidder)
	require.NotNil(t, amount)
	require.Equal(t, addr.Hex(), *bidder)
	require.Equal(t, "7", *amount)
}
