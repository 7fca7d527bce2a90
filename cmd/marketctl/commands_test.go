package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"model-marketplace/internal/blockchain"
	"model-marketplace/internal/blockchain/blockchaintest"
	"model-marketplace/internal/services"
)

func withTestEnv(t *testing.T, fake *blockchaintest.FakeRPC) *bytes.Buffer {
	t.Helper()
	ref, err := blockchain.NewMarketplaceRef("711gctwBN1aGqzRhQbDD3qiescrzg4m9Zjj1ZGndLDis", "hack-123-x-5-3")
	require.NoError(t, err)

	var out bytes.Buffer
	app = &env{ref: ref, nfts: services.NewNftService(fake, nil, nil, 0)}
	stdout = &out
	t.Cleanup(func() {
		app = nil
		stdout = os.Stdout
	})
	return &out
}

func TestNftCommand(t *testing.T) {
	fake := blockchaintest.NewFakeRPC()
	out := withTestEnv(t, fake)

	mint := blockchaintest.NewKey()
	holder := blockchaintest.NewKey()
	fake.PutNft(mint, blockchaintest.NewMetadata(mint, "Detector", "", nil, false))
	fake.AddTokenAccount(holder, blockchaintest.NewKey(), mint, 1)

	cmd := &cli.App{Commands: []*cli.Command{{Name: "nft", Action: getNft}}}
	require.NoError(t, cmd.Run([]string{"marketctl", "nft", mint.String()}))

	var nft services.Nft
	require.NoError(t, json.Unmarshal(out.Bytes(), &nft))
	assert.Equal(t, mint.String(), nft.Mint)
	assert.Equal(t, "Detector", nft.Name)
	assert.Equal(t, holder.String(), nft.Owner)
	assert.False(t, nft.IsListed)

	assert.Error(t, cmd.Run([]string{"marketctl", "nft", "not-a-key"}))
	assert.Error(t, cmd.Run([]string{"marketctl", "nft", blockchaintest.NewKey().String()}))
}
