package server

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"yeifinance/native/token"
	"yeifinance/services/lending/api"
)

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.tokens.Info(chi.URLParam(r, "symbol"))
	if err != nil {
		s.writeError(w, r, "token.info", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(info))
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	account, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, "token.balance", err)
		return
	}
	balance, err := s.tokens.BalanceOf(symbol, account)
	if err != nil {
		s.writeError(w, r, "token.balance", err)
		return
	}
	allowance, err := s.tokens.Allowance(symbol, account, s.lending.Pool())
	if err != nil {
		s.writeError(w, r, "token.balance", err)
		return
	}
	writeJSON(w, http.StatusOK, api.Balance{
		Symbol:        token.NormalizeSymbol(symbol),
		Address:       account.Hex(),
		Balance:       api.FormatAmount(balance),
		PoolAllowance: api.FormatAmount(allowance),
	})
}

// spender resolves the "pool" and "vault" aliases.
func (s *Server) spender(raw string) (common.Address, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pool":
		return s.lending.Pool(), nil
	case "vault":
		if s.vault == nil {
			return common.Address{}, errVaultDisabled
		}
		return s.vault.Address(), nil
	default:
		return parseAddress("spender", raw)
	}
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req api.ApproveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "token.approve", err)
		return
	}
	owner, err := s.actingAccount(r, "owner", req.Owner)
	if err != nil {
		s.writeError(w, r, "token.approve", err)
		return
	}
	spender, err := s.spender(req.Spender)
	if err != nil {
		s.writeError(w, r, "token.approve", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "token.approve", err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	receipt, err := s.tokens.Approve(ctx, chi.URLParam(r, "symbol"), owner, spender, amount)
	if err != nil {
		s.writeError(w, r, "token.approve", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse(receipt))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req api.TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "token.transfer", err)
		return
	}
	from, err := s.actingAccount(r, "from", req.From)
	if err != nil {
		s.writeError(w, r, "token.transfer", err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, "token.transfer", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "token.transfer", err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	receipt, err := s.tokens.Transfer(ctx, chi.URLParam(r, "symbol"), from, to, amount)
	if err != nil {
		s.writeError(w, r, "token.transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse(receipt))
}

// handleMint sits behind the admin scope when auth is enabled. The token
// ledger still checks that the authority is the token's mint authority.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req api.MintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "token.mint", err)
		return
	}
	authority, err := s.actingAccount(r, "authority", req.Authority)
	if err != nil {
		s.writeError(w, r, "token.mint", err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		s.writeError(w, r, "token.mint", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "token.mint", err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	receipt, err := s.tokens.Mint(ctx, chi.URLParam(r, "symbol"), authority, to, amount)
	if err != nil {
		s.writeError(w, r, "token.mint", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse(receipt))
}
