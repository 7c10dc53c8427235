package server

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"yeifinance/core/state"
	"yeifinance/services/lending/api"
)

type amountFunc func(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error)

func (s *Server) amountOp(action string, op amountFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.AmountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, action, err)
			return
		}
		account, err := s.actingAccount(r, "account", req.Account)
		if err != nil {
			s.writeError(w, r, action, err)
			return
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			s.writeError(w, r, action, err)
			return
		}
		ctx, cancel := s.context(r.Context())
		defer cancel()
		receipt, err := op(ctx, account, amount)
		if err != nil {
			s.writeError(w, r, action, err)
			return
		}
		writeJSON(w, http.StatusOK, txResponse(receipt))
	}
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req api.AccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "claim", err)
		return
	}
	account, err := s.actingAccount(r, "account", req.Account)
	if err != nil {
		s.writeError(w, r, "claim", err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	receipt, err := s.lending.ClaimRewards(ctx, account)
	if err != nil {
		s.writeError(w, r, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, txResponse(receipt))
}

// handleFlashLoan runs a loan without a callback. The borrower must have
// approved the pool for amount plus fee beforehand, so over HTTP a flash loan
// only proves repayment capacity.
func (s *Server) handleFlashLoan(w http.ResponseWriter, r *http.Request) {
	s.amountOp("flashloan", func(ctx context.Context, account common.Address, amount *big.Int) (*state.Receipt, error) {
		return s.lending.FlashLoan(ctx, account, amount, nil)
	})(w, r)
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	market, err := s.lending.Market()
	if err != nil {
		s.writeError(w, r, "protocol", err)
		return
	}
	solvency, err := s.lending.CheckSolvency()
	if err != nil {
		s.writeError(w, r, "protocol", err)
		return
	}
	params := s.lending.Params()
	writeJSON(w, http.StatusOK, api.Protocol{
		BaseAsset:           s.lending.BaseAsset(),
		RewardAsset:         s.lending.GetRewardToken(),
		Pool:                s.lending.Pool().Hex(),
		CollateralFactorBps: params.CollateralFactorBps,
		RewardRateBps:       params.RewardRateBps,
		FlashLoanFeeBps:     params.FlashLoanFeeBps,
		Market:              marketResponse(market),
		Solvency:            solvencyResponse(solvency),
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, "position", err)
		return
	}
	position, err := s.lending.Position(account)
	if err != nil {
		s.writeError(w, r, "position", err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse(position))
}
