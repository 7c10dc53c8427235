package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"yeifinance/services/lending/api"
)

func (s *Server) handleVaultInfo(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		s.writeError(w, r, "vault.info", errVaultDisabled)
		return
	}
	info, err := s.vault.Info()
	if err != nil {
		s.writeError(w, r, "vault.info", err)
		return
	}
	writeJSON(w, http.StatusOK, vaultResponse(info))
}

func (s *Server) handleVaultShares(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		s.writeError(w, r, "vault.shares", errVaultDisabled)
		return
	}
	owner, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, "vault.shares", err)
		return
	}
	shares, err := s.vault.SharesOf(owner)
	if err != nil {
		s.writeError(w, r, "vault.shares", err)
		return
	}
	assets, err := s.vault.ConvertToAssets(shares)
	if err != nil {
		s.writeError(w, r, "vault.shares", err)
		return
	}
	writeJSON(w, http.StatusOK, api.VaultShares{
		Address: owner.Hex(),
		Shares:  api.FormatAmount(shares),
		Assets:  api.FormatAmount(assets),
	})
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		s.writeError(w, r, "vault.deposit", errVaultDisabled)
		return
	}
	var req api.AmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "vault.deposit", err)
		return
	}
	owner, err := s.actingAccount(r, "account", req.Account)
	if err != nil {
		s.writeError(w, r, "vault.deposit", err)
		return
	}
	assets, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "vault.deposit", err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	res, err := s.vault.Deposit(ctx, owner, assets)
	if err != nil {
		s.writeError(w, r, "vault.deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, vaultTxResponse(res))
}

func (s *Server) handleVaultWithdraw(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		s.writeError(w, r, "vault.withdraw", errVaultDisabled)
		return
	}
	var req api.VaultWithdrawRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "vault.withdraw", err)
		return
	}
	owner, err := s.actingAccount(r, "account", req.Account)
	if err != nil {
		s.writeError(w, r, "vault.withdraw", err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		s.writeError(w, r, "vault.withdraw", err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	res, err := s.vault.Withdraw(ctx, owner, shares)
	if err != nil {
		s.writeError(w, r, "vault.withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, vaultTxResponse(res))
}

func (s *Server) handleVaultHarvest(w http.ResponseWriter, r *http.Request) {
	if s.vault == nil {
		s.writeError(w, r, "vault.harvest", errVaultDisabled)
		return
	}
	var req api.AccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "vault.harvest", err)
		return
	}
	agent, err := s.actingAccount(r, "account", req.Account)
	if err != nil {
		s.writeError(w, r, "vault.harvest", err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	res, err := s.vault.Harvest(ctx, agent)
	if err != nil {
		s.writeError(w, r, "vault.harvest", err)
		return
	}
	writeJSON(w, http.StatusOK, vaultTxResponse(res))
}
