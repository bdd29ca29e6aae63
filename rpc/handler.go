package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/ghostnet-labs/ghostnet/core"
	"github.com/ghostnet-labs/ghostnet/crypto"
	"github.com/ghostnet-labs/ghostnet/indexer"
	"github.com/ghostnet-labs/ghostnet/vm"
	"github.com/ghostnet-labs/ghostnet/vm/modules/match"
	"github.com/ghostnet-labs/ghostnet/vm/modules/round"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
	methods map[string]func(Request) Response
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	h := &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID}
	h.methods = map[string]func(Request) Response{
		"getBlockHeight":     func(req Request) Response { return okResponse(req.ID, h.bc.Height()) },
		"getBlock":           h.getBlock,
		"getBalance":         h.getBalance,
		"getAllowance":       h.getAllowance,
		"getPendingPayout":   h.getPendingPayout,
		"getGame":            h.getGame,
		"getGameBook":        h.getGameBook,
		"getCurrentRound":    h.getCurrentRound,
		"getRound":           h.getRound,
		"getRoundStake":      h.getRoundStake,
		"getMatch":           h.getMatch,
		"getRoundsByPlayer":  h.getRoundsByPlayer,
		"getMatchesByPlayer": h.getMatchesByPlayer,
		"getReceipt":         h.getReceipt,
		"isNonceUsed":        h.isNonceUsed,
		"sendTx":             h.sendTx,
		"getMempoolSize":     func(req Request) Response { return okResponse(req.ID, h.mempool.Size()) },
	}
	return h
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	m, ok := h.methods[req.Method]
	if !ok {
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
	return m(req)
}

func decode(req Request, v any) error {
	if len(req.Params) == 0 {
		return errors.Wrap(core.ErrValidation, "params required")
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return errors.Wrapf(core.ErrValidation, "params: %v", err)
	}
	return nil
}

func address(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, errors.Wrapf(core.ErrValidation, "%s is required", field)
	}
	addr, err := crypto.AddressFromHex(s)
	if err != nil {
		return common.Address{}, errors.Wrapf(core.ErrValidation, "%s: %v", field, err)
	}
	return addr, nil
}

// amount renders base units alongside the decimal token value.
func amount(v *big.Int) map[string]string {
	return map[string]string{"units": core.Amount(v).String(), "tokens": core.FormatTokens(v)}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		}
	}

	var block *core.Block
	var err error
	switch {
	case params.Hash != "":
		block, err = h.bc.GetBlock(params.Hash)
	case params.Height != nil:
		block, err = h.bc.GetBlockByHeight(*params.Height)
	default:
		block = h.bc.Tip()
	}
	if err != nil {
		return domainErr(req.ID, err)
	}
	if block == nil {
		return domainErr(req.ID, errors.Wrap(core.ErrNotFound, "no block found"))
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	addr, err := address("address", params.Address)
	if err != nil {
		return domainErr(req.ID, err)
	}
	acc, err := h.state.GetAccount(addr)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{
		"address": addr.Hex(),
		"balance": amount(acc.Balance),
		"nonce":   acc.Nonce,
	})
}

func (h *Handler) getAllowance(req Request) Response {
	var params struct {
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
	}
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	owner, err := address("owner", params.Owner)
	if err != nil {
		return domainErr(req.ID, err)
	}
	spender, err := address("spender", params.Spender)
	if err != nil {
		return domainErr(req.ID, err)
	}
	v, err := h.state.GetAllowance(owner, spender)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, amount(v))
}

func (h *Handler) getPendingPayout(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	addr, err := address("address", params.Address)
	if err != nil {
		return domainErr(req.ID, err)
	}
	v, err := h.state.GetPendingPayout(addr)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, amount(v))
}

type gameParams struct {
	GameID string `json:"game_id"`
}

func (h *Handler) getGame(req Request) Response {
	var params gameParams
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	g, err := h.state.GetGame(params.GameID)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, g)
}

func (h *Handler) getGameBook(req Request) Response {
	var params gameParams
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	if _, err := h.state.GetGame(params.GameID); err != nil {
		return domainErr(req.ID, err)
	}
	b, err := h.state.GetGameBook(params.GameID)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, b)
}

func (h *Handler) getCurrentRound(req Request) Response {
	r, err := round.Current(h.state)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, r)
}

type idParams struct {
	ID uint64 `json:"id"`
}

func (h *Handler) getRound(req Request) Response {
	var params idParams
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	r, err := h.state.GetRound(params.ID)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, r)
}

func (h *Handler) getRoundStake(req Request) Response {
	var params struct {
		RoundID uint64 `json:"round_id"`
		Player  string `json:"player"`
	}
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	player, err := address("player", params.Player)
	if err != nil {
		return domainErr(req.ID, err)
	}
	st, err := h.state.GetRoundStake(params.RoundID, player)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, st)
}

func (h *Handler) getMatch(req Request) Response {
	var params idParams
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	m, err := h.state.GetMatch(params.ID)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, m)
}

func (h *Handler) playerList(req Request, list func(common.Address) ([]uint64, error)) Response {
	var params struct {
		Player string `json:"player"`
	}
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	player, err := address("player", params.Player)
	if err != nil {
		return domainErr(req.ID, err)
	}
	ids, err := list(player)
	if err != nil {
		return domainErr(req.ID, err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getRoundsByPlayer(req Request) Response {
	return h.playerList(req, h.indexer.GetRoundsByPlayer)
}

func (h *Handler) getMatchesByPlayer(req Request) Response {
	return h.playerList(req, h.indexer.GetMatchesByPlayer)
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	r, err := h.indexer.GetReceipt(params.TxID)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, r)
}

func (h *Handler) isNonceUsed(req Request) Response {
	var params struct {
		Scope string `json:"scope"`
		Nonce string `json:"nonce"` // decimal, arbitrary size
	}
	if err := decode(req, &params); err != nil {
		return domainErr(req.ID, err)
	}
	if params.Scope == "" {
		params.Scope = match.NonceScope
	}
	n, ok := new(big.Int).SetString(params.Nonce, 10)
	if !ok || n.Sign() <= 0 {
		return domainErr(req.ID, errors.Wrapf(core.ErrValidation, "nonce %q is not a positive integer", params.Nonce))
	}
	used, err := h.state.IsNonceUsed(params.Scope, n)
	if err != nil {
		return domainErr(req.ID, err)
	}
	return okResponse(req.ID, used)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := decode(req, &tx); err != nil {
		return domainErr(req.ID, err)
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return domainErr(req.ID, errors.Wrapf(core.ErrValidation, "chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	if !vm.Registered(tx.Type) {
		return domainErr(req.ID, errors.Wrapf(core.ErrValidation, "unknown tx type %q", tx.Type))
	}
	if err := tx.Verify(); err != nil {
		return domainErr(req.ID, errors.Wrapf(core.ErrAuthorization, "signature: %v", err))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return domainErr(req.ID, errors.Wrap(core.ErrValidation, err.Error()))
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
