package server

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"yeifinance/core/events"
	"yeifinance/core/state"
	"yeifinance/crypto"
	"yeifinance/native/lending"
	"yeifinance/native/token"
	"yeifinance/native/vault"
	"yeifinance/services/lending/api"
	"yeifinance/services/lending/indexer"
	"yeifinance/services/lending/middleware"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, requestLimit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("request body exceeds %d bytes", requestLimit)
		}
		return badRequest("decode body: %v", err)
	}
	if dec.More() {
		return badRequest("unexpected data after JSON body")
	}
	return nil
}

func parseAddress(field, raw string) (common.Address, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		if errors.Is(err, crypto.ErrZeroAddress) {
			return common.Address{}, lending.ErrInvalidAccount
		}
		return common.Address{}, badRequest("%s: %v", field, err)
	}
	return addr, nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	amount, err := api.ParseAmount(raw)
	if err != nil {
		return nil, badRequest("%s: %v", field, err)
	}
	return amount, nil
}

// actingAccount resolves the account a mutation acts for. An empty field
// falls back to the authenticated subject. Authenticated callers may only act
// for themselves unless they hold the admin scope.
func (s *Server) actingAccount(r *http.Request, field, raw string) (common.Address, error) {
	principal, authed := middleware.PrincipalFromContext(r.Context())
	if s.auth.Enabled() && !authed {
		return common.Address{}, errUnauthenticated
	}
	var account common.Address
	if strings.TrimSpace(raw) == "" {
		if !authed {
			return common.Address{}, badRequest("%s is required", field)
		}
		account = principal.Subject
	} else {
		parsed, err := parseAddress(field, raw)
		if err != nil {
			return common.Address{}, err
		}
		account = parsed
	}
	if authed && !principal.CanActFor(account) {
		return common.Address{}, errForbidden
	}
	return account, nil
}

func toEvents(evs []events.Event) []api.Event {
	out := make([]api.Event, 0, len(evs))
	for _, ev := range evs {
		rendered := events.ToTypes(ev)
		if rendered == nil {
			continue
		}
		out = append(out, api.Event{Type: rendered.Type, Attributes: rendered.Attributes})
	}
	return out
}

func txResponse(receipt *state.Receipt) api.TxResponse {
	if receipt == nil {
		return api.TxResponse{Events: []api.Event{}}
	}
	return api.TxResponse{
		TxHash:   receipt.TxHash.Hex(),
		Sequence: receipt.Sequence,
		Events:   toEvents(receipt.Events),
	}
}

func vaultTxResponse(res *vault.Result) api.VaultTxResponse {
	return api.VaultTxResponse{
		TxResponse: txResponse(res.Receipt),
		Assets:     api.FormatAmount(res.Assets),
		Shares:     api.FormatAmount(res.Shares),
		Fee:        api.FormatAmount(res.Fee),
	}
}

func positionResponse(p lending.Position) api.Position {
	return api.Position{
		Address:       p.Address.Hex(),
		Deposited:     api.FormatAmount(p.Deposited),
		Borrowed:      api.FormatAmount(p.Borrowed),
		PendingReward: api.FormatAmount(p.PendingReward),
		BorrowLimit:   api.FormatAmount(p.BorrowLimit),
		Available:     api.FormatAmount(p.Available),
	}
}

func marketResponse(m lending.Market) api.Market {
	return api.Market{
		TotalDeposited:      api.FormatAmount(m.TotalDeposited),
		TotalBorrowed:       api.FormatAmount(m.TotalBorrowed),
		TotalRewardsAccrued: api.FormatAmount(m.TotalRewardsAccrued),
		TotalRewardsClaimed: api.FormatAmount(m.TotalRewardsClaimed),
		FlashLoanFees:       api.FormatAmount(m.FlashLoanFees),
		FlashLoanCount:      m.FlashLoanCount,
	}
}

func solvencyResponse(s lending.Solvency) api.Solvency {
	return api.Solvency{
		PoolBalance:       api.FormatAmount(s.PoolBalance),
		Required:          api.FormatAmount(s.Required),
		RewardBalance:     api.FormatAmount(s.RewardBalance),
		OutstandingReward: api.FormatAmount(s.OutstandingReward),
		Solvent:           s.Solvent,
	}
}

func tokenResponse(info token.Info) api.TokenInfo {
	return api.TokenInfo{
		Symbol:        info.Metadata.Symbol,
		Name:          info.Metadata.Name,
		Decimals:      info.Metadata.Decimals,
		MintAuthority: info.Metadata.MintAuthority.Hex(),
		TotalSupply:   api.FormatAmount(info.TotalSupply),
	}
}

func vaultResponse(info vault.Info) api.VaultInfo {
	return api.VaultInfo{
		Name:             info.Name,
		Address:          info.Address.Hex(),
		ShareSymbol:      info.ShareSymbol,
		Underlying:       info.Underlying,
		Manager:          info.Manager.Hex(),
		Agent:            info.Agent.Hex(),
		Treasury:         info.Treasury.Hex(),
		WithdrawalFeeBps: info.WithdrawalFeeBps,
		YieldRateBps:     info.YieldRateBps,
		LastHarvest:      info.LastHarvest,
		TotalAssets:      api.FormatAmount(info.TotalAssets),
		TotalShares:      api.FormatAmount(info.TotalShares),
		TotalYield:       api.FormatAmount(info.TotalYield),
		TotalFees:        api.FormatAmount(info.TotalFees),
	}
}

func indexedResponse(records []indexer.Record) api.EventsResponse {
	out := api.EventsResponse{Events: make([]api.IndexedEvent, 0, len(records))}
	for _, rec := range records {
		out.Events = append(out.Events, api.IndexedEvent{
			Seq:          rec.Seq,
			Type:         rec.Type,
			TxHash:       rec.TxHash,
			Asset:        rec.Asset,
			Account:      rec.Account,
			Counterparty: rec.Counterparty,
			Attributes:   rec.Attributes,
			CreatedAt:    rec.CreatedAt,
		})
		out.Next = rec.Seq
	}
	return out
}
