package substrate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"governor/contexts/treasury-governance/governance-engine/domain/entities"
	"governor/contexts/treasury-governance/governance-engine/ports"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/holiman/uint256"
)

// Oracle reads native balances from a Substrate chain and pays proposals
// from the treasury keypair with Balances.transfer_keep_alive.
type Oracle struct {
	api      *gsrpc.SubstrateAPI
	metadata *types.Metadata
	treasury signature.KeyringPair
	prefix   uint16
	logger   *slog.Logger

	// Extrinsics from one signer must carry increasing nonces.
	submitMu sync.Mutex
	nonces   *nonceTracker
}

var _ ports.TokenOracle = (*Oracle)(nil)

// NewOracle connects to the node at url and caches the runtime metadata.
// treasurySeed is a hex seed or mnemonic for the paying account.
func NewOracle(url string, treasurySeed string, prefix uint16, logger *slog.Logger) (*Oracle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	treasury, err := signature.KeyringPairFromSecret(treasurySeed, prefix)
	if err != nil {
		return nil, fmt.Errorf("load treasury keypair: %w", err)
	}
	logger.Info("substrate token oracle connected",
		"event", "governance_substrate_connected",
		"module", "treasury-governance/governance-engine",
		"layer", "adapter",
		"treasury", treasury.Address,
		"ss58_prefix", prefix,
	)
	return &Oracle{
		api:      api,
		metadata: meta,
		treasury: treasury,
		prefix:   prefix,
		logger:   logger,
		nonces:   newNonceTracker(api.Client, treasury.Address),
	}, nil
}

func (o *Oracle) BalanceOf(ctx context.Context, account entities.AccountID) (uint256.Int, error) {
	accountID, err := ParseAccountID(string(account), o.prefix, true)
	if err != nil {
		return uint256.Int{}, err
	}
	info, found, err := o.accountInfo(ctx, accountID)
	if err != nil {
		return uint256.Int{}, err
	}
	if !found {
		return uint256.Int{}, nil
	}
	return fromU128(info.Data.Free)
}

func (o *Oracle) TotalSupply(ctx context.Context) (uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return uint256.Int{}, err
	}
	key, err := types.CreateStorageKey(o.metadata, "Balances", "TotalIssuance")
	if err != nil {
		return uint256.Int{}, fmt.Errorf("build total issuance key: %w", err)
	}
	var issuance types.U128
	ok, err := o.api.RPC.State.GetStorageLatest(key, &issuance)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("read total issuance: %w", err)
	}
	if !ok {
		return uint256.Int{}, nil
	}
	return fromU128(issuance)
}

// Transfer signs and submits one extrinsic. Submission is not followed to
// finality; the returned hash is logged for reconciliation.
func (o *Oracle) Transfer(ctx context.Context, to entities.AccountID, amount uint256.Int) error {
	accountID, err := ParseAccountID(string(to), o.prefix, true)
	if err != nil {
		return err
	}
	dest, err := types.NewMultiAddressFromAccountID(accountID)
	if err != nil {
		return fmt.Errorf("build destination: %w", err)
	}
	call, err := types.NewCall(o.metadata, "Balances.transfer_keep_alive", dest, types.NewUCompact(amount.ToBig()))
	if err != nil {
		return fmt.Errorf("build transfer call: %w", err)
	}

	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	genesisHash, err := o.api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return fmt.Errorf("read genesis hash: %w", err)
	}
	runtime, err := o.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return fmt.Errorf("read runtime version: %w", err)
	}
	nonce, err := o.nonces.reserve()
	if err != nil {
		return err
	}

	ext := types.NewExtrinsic(call)
	err = ext.Sign(o.treasury, types.SignatureOptions{
		BlockHash:          genesisHash,
		Era:                types.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        genesisHash,
		Nonce:              types.NewUCompactFromUInt(nonce),
		SpecVersion:        runtime.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: runtime.TransactionVersion,
	})
	if err != nil {
		return fmt.Errorf("sign transfer: %w", err)
	}
	hash, err := o.api.RPC.Author.SubmitExtrinsic(ext)
	if err != nil {
		o.nonces.reset()
		return fmt.Errorf("submit transfer with nonce %d: %w", nonce, err)
	}
	o.nonces.commit(nonce)
	o.logger.Info("treasury transfer submitted",
		"event", "governance_substrate_transfer_submitted",
		"module", "treasury-governance/governance-engine",
		"layer", "adapter",
		"beneficiary", string(to),
		"amount", amount.Dec(),
		"nonce", nonce,
		"extrinsic_hash", hash.Hex(),
	)
	return nil
}

func (o *Oracle) accountInfo(ctx context.Context, accountID []byte) (types.AccountInfo, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.AccountInfo{}, false, err
	}
	key, err := types.CreateStorageKey(o.metadata, "System", "Account", accountID)
	if err != nil {
		return types.AccountInfo{}, false, fmt.Errorf("build account key: %w", err)
	}
	var info types.AccountInfo
	ok, err := o.api.RPC.State.GetStorageLatest(key, &info)
	if err != nil {
		return types.AccountInfo{}, false, fmt.Errorf("read account info: %w", err)
	}
	return info, ok, nil
}

func fromU128(value types.U128) (uint256.Int, error) {
	if value.Int == nil {
		return uint256.Int{}, nil
	}
	out, overflow := uint256.FromBig(value.Int)
	if overflow {
		return uint256.Int{}, fmt.Errorf("balance %s does not fit 256 bits", value.String())
	}
	return *out, nil
}
