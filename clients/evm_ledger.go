package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"bounty-quest/apperrors"
	"bounty-quest/logging"
	"bounty-quest/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

const awardABIJSON = `[{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"string","name":"uri","type":"string"}],"name":"safeMint","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

const tokenABIJSON = `[{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}]`

// gasHeadroom pads the node's gas estimate by 20%.
const gasHeadroom = 120

const defaultReceiptPollInterval = time.Second

// ChainBackend is the subset of ethclient.Client the ledger needs.
type ChainBackend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type EVMLedgerConfig struct {
	ChainID       *big.Int
	PrivateKey    string
	AwardContract string
	TokenContract string
	TokenDecimals int32
	// ReceiptPollInterval is how often Confirm asks for a receipt. Defaults to one second.
	ReceiptPollInterval time.Duration
}

// EVMLedger mints award NFTs and transfers ERC-20 tokens from the operator account.
type EVMLedger struct {
	backend       ChainBackend
	key           *ecdsa.PrivateKey
	from          common.Address
	chainID       *big.Int
	awardContract common.Address
	tokenContract common.Address
	tokenDecimals int32
	awardABI      abi.ABI
	tokenABI      abi.ABI
	pollInterval  time.Duration
	logger        logging.Logger

	// nonces are assigned one transaction at a time
	mu sync.Mutex
}

// DialEVMLedger connects to an RPC endpoint and builds the ledger.
func DialEVMLedger(ctx context.Context, rpcURL string, cfg EVMLedgerConfig, logger logging.Logger) (*EVMLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() == 0 {
		if cfg.ChainID, err = client.ChainID(ctx); err != nil {
			return nil, fmt.Errorf("failed to get chain id: %w", err)
		}
	}
	return NewEVMLedger(client, cfg, logger)
}

func NewEVMLedger(backend ChainBackend, cfg EVMLedgerConfig, logger logging.Logger) (*EVMLedger, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid operator private key: %w", err)
	}
	if !common.IsHexAddress(cfg.AwardContract) {
		return nil, fmt.Errorf("invalid award contract address %q", cfg.AwardContract)
	}
	if !common.IsHexAddress(cfg.TokenContract) {
		return nil, fmt.Errorf("invalid token contract address %q", cfg.TokenContract)
	}
	if cfg.ChainID == nil {
		return nil, errors.New("chain id is required")
	}
	awardABI, err := abi.JSON(strings.NewReader(awardABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse award ABI: %w", err)
	}
	tokenABI, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}
	pollInterval := cfg.ReceiptPollInterval
	if pollInterval <= 0 {
		pollInterval = defaultReceiptPollInterval
	}

	return &EVMLedger{
		backend:       backend,
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		chainID:       cfg.ChainID,
		awardContract: common.HexToAddress(cfg.AwardContract),
		tokenContract: common.HexToAddress(cfg.TokenContract),
		tokenDecimals: cfg.TokenDecimals,
		awardABI:      awardABI,
		tokenABI:      tokenABI,
		pollInterval:  pollInterval,
		logger:        logger.With("component", "evm_ledger"),
	}, nil
}

// From is the operator account paying for and signing every transaction.
func (l *EVMLedger) From() common.Address {
	return l.from
}

// SendAward broadcasts a safeMint of the award to recipient and returns the transaction hash.
func (l *EVMLedger) SendAward(ctx context.Context, recipient string, metadata models.AwardMetadata) (string, error) {
	if !common.IsHexAddress(recipient) {
		return "", fmt.Errorf("invalid recipient %q", recipient)
	}
	if metadata.URI == "" {
		return "", errors.New("award metadata has no uri")
	}
	data, err := l.awardABI.Pack("safeMint", common.HexToAddress(recipient), metadata.URI)
	if err != nil {
		return "", fmt.Errorf("failed to pack safeMint: %w", err)
	}
	return l.submit(ctx, l.awardContract, data)
}

// SendTokens broadcasts an ERC-20 transfer of amount, scaled to the token decimals.
func (l *EVMLedger) SendTokens(ctx context.Context, recipient string, amount decimal.Decimal) (string, error) {
	if !common.IsHexAddress(recipient) {
		return "", fmt.Errorf("invalid recipient %q", recipient)
	}
	if amount.IsNegative() {
		return "", fmt.Errorf("negative amount %s", amount)
	}
	units := amount.Shift(l.tokenDecimals)
	if !units.Equal(units.Truncate(0)) {
		return "", fmt.Errorf("amount %s has more than %d decimals", amount, l.tokenDecimals)
	}
	data, err := l.tokenABI.Pack("transfer", common.HexToAddress(recipient), units.BigInt())
	if err != nil {
		return "", fmt.Errorf("failed to pack transfer: %w", err)
	}
	return l.submit(ctx, l.tokenContract, data)
}

func (l *EVMLedger) submit(ctx context.Context, to common.Address, data []byte) (string, error) {
	signed, err := l.send(ctx, to, data)
	if err != nil {
		return "", err
	}
	hash := signed.Hash().Hex()
	l.logger.Info("transaction sent", "tx", hash, "to", to.Hex(), "nonce", signed.Nonce())
	return hash, nil
}

// Confirm polls for the receipt of txID until it is mined or ctx is done. A failed receipt wraps
// apperrors.ErrTxReverted. Giving up before a receipt exists wraps apperrors.ErrTxPending.
func (l *EVMLedger) Confirm(ctx context.Context, txID string) error {
	if !isTxHash(txID) {
		return fmt.Errorf("invalid transaction hash %q", txID)
	}
	hash := common.HexToHash(txID)

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := l.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt.Status == types.ReceiptStatusSuccessful:
			l.logger.Info("transaction confirmed", "tx", txID, "block", receipt.BlockNumber, "gas_used", receipt.GasUsed)
			return nil
		case err == nil:
			return fmt.Errorf("transaction %s in block %s: %w", txID, receipt.BlockNumber, apperrors.ErrTxReverted)
		case !errors.Is(err, ethereum.NotFound):
			l.logger.Debug("receipt lookup failed", "tx", txID, "error", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s: %w: %v", txID, apperrors.ErrTxPending, ctx.Err())
		case <-ticker.C:
		}
	}
}

func isTxHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}

func (l *EVMLedger) send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	nonce, err := l.backend.PendingNonceAt(ctx, l.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	tipCap, err := l.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas tip: %w", err)
	}
	head, err := l.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas, err := l.backend.EstimateGas(ctx, ethereum.CallMsg{From: l.from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   l.chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas * gasHeadroom / 100,
		To:        &to,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := l.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}
	return signed, nil
}
