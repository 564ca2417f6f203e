package controller

import (
	"math/big"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	stakingstore "github.com/manta-network/stakingx/pkg/db/staking"
	stakingmodels "github.com/manta-network/stakingx/pkg/db/models/staking"
	"github.com/manta-network/stakingx/pkg/ss58"
)

type delegatorResponse struct {
	ID             string                         `json:"id"`
	Delegations    []stakingmodels.DelegationBond `json:"delegations"`
	TotalStaked    *big.Int                       `json:"total_staked"`
	Status         string                         `json:"status"`
	UpdatedAtBlock uint64                         `json:"updated_at_block"`
}

type roundResponse struct {
	Round   uint32                       `json:"round"`
	Total   *big.Int                     `json:"total"`
	Records []*stakingmodels.RoundRecord `json:"records"`
}

// store resolves the {network} path variable. It writes the error response when it fails.
func (c *Controller) store(w http.ResponseWriter, r *http.Request) (stakingstore.Store, bool) {
	network := mux.Vars(r)["network"]
	store, ok := c.App.LoadStore(r.Context(), network)
	if !ok {
		writeError(w, http.StatusNotFound, "network not indexed")
		return nil, false
	}
	return store, true
}

// address normalizes the {address} path variable to the network's SS58 form.
// Hex account ids and addresses of other prefixes are accepted.
func (c *Controller) address(r *http.Request) (string, error) {
	vars := mux.Vars(r)
	codec, ok := c.App.Codec(vars["network"])
	if !ok {
		return "", errInvalidAddress
	}
	return normalizeAddress(codec, vars["address"])
}

func normalizeAddress(codec ss58.Codec, raw string) (string, error) {
	if strings.HasPrefix(raw, "0x") {
		addr, err := codec.EncodeHex(raw)
		if err != nil {
			return "", errInvalidAddress
		}
		return addr, nil
	}
	_, id, err := ss58.Decode(raw)
	if err != nil {
		return "", errInvalidAddress
	}
	addr, err := codec.Encode(id)
	if err != nil {
		return "", errInvalidAddress
	}
	return addr, nil
}

// HandleCollators returns the collators with the largest total bond.
// Query parameters:
//   - limit: max number of results (default/max defined in parsePageSpec)
func (c *Controller) HandleCollators(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	store, ok := c.store(w, r)
	if !ok {
		return
	}

	rows, err := store.ListCollators(r.Context(), page.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, pagedResponse[*stakingmodels.CollatorAccount]{Data: rows, Limit: page.Limit})
}

// HandleCollator returns one collator. Returns 404 when the collator has no bond.
func (c *Controller) HandleCollator(w http.ResponseWriter, r *http.Request) {
	store, ok := c.store(w, r)
	if !ok {
		return
	}
	address, err := c.address(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	row, err := store.GetCollator(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "collator not found")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HandleCollatorRounds returns the settled rewards of a collator, newest round first.
// Supports cursor-based pagination using the limit+1 pattern.
// Query parameters:
//   - cursor: round number to start from (exclusive)
//   - limit: max number of results
func (c *Controller) HandleCollatorRounds(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if page.Cursor > uint64(^uint32(0)) {
		writeError(w, http.StatusBadRequest, errInvalidCursor.Error())
		return
	}
	store, ok := c.store(w, r)
	if !ok {
		return
	}
	address, err := c.address(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := store.ListCollatorRounds(r.Context(), address, uint32(page.Cursor), page.Limit+1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	nextCursor := (*uint64)(nil)
	if len(rows) > page.Limit {
		rows = rows[:page.Limit]
		cursor := uint64(rows[len(rows)-1].RoundNumber)
		nextCursor = &cursor
	}

	writeJSON(w, http.StatusOK, pagedResponse[*stakingmodels.RoundRecord]{
		Data:       rows,
		Limit:      page.Limit,
		NextCursor: nextCursor,
	})
}

// HandleDelegator returns one delegator and its delegations.
func (c *Controller) HandleDelegator(w http.ResponseWriter, r *http.Request) {
	store, ok := c.store(w, r)
	if !ok {
		return
	}
	address, err := c.address(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	row, err := store.GetDelegator(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "delegator not found")
		return
	}
	writeJSON(w, http.StatusOK, delegatorResponse{
		ID:             row.ID,
		Delegations:    row.Delegations(),
		TotalStaked:    row.TotalStaked,
		Status:         row.Status,
		UpdatedAtBlock: row.UpdatedAtBlock,
	})
}

// HandleLiveChainState returns the chain summary as of the last processed range.
func (c *Controller) HandleLiveChainState(w http.ResponseWriter, r *http.Request) {
	store, ok := c.store(w, r)
	if !ok {
		return
	}

	row, err := store.GetLiveChainState(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "chain state not available yet")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// HandleChainStates returns permanent snapshots ordered by block number descending.
// Supports cursor-based pagination using the limit+1 pattern.
// Query parameters:
//   - cursor: block number to start from (exclusive)
//   - limit: max number of results
func (c *Controller) HandleChainStates(w http.ResponseWriter, r *http.Request) {
	page, err := parsePageSpec(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	store, ok := c.store(w, r)
	if !ok {
		return
	}

	rows, err := store.ListChainStates(r.Context(), page.Cursor, page.Limit+1)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	nextCursor := (*uint64)(nil)
	if len(rows) > page.Limit {
		rows = rows[:page.Limit]
		cursor := rows[len(rows)-1].BlockNumber
		nextCursor = &cursor
	}

	writeJSON(w, http.StatusOK, pagedResponse[*stakingmodels.ChainState]{
		Data:       rows,
		Limit:      page.Limit,
		NextCursor: nextCursor,
	})
}

// HandleRound returns every collator record of a settled round and their sum.
// Returns 404 when the round was not settled.
func (c *Controller) HandleRound(w http.ResponseWriter, r *http.Request) {
	round, err := parseRound(mux.Vars(r)["round"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	store, ok := c.store(w, r)
	if !ok {
		return
	}

	rows, err := store.ListRoundRecords(r.Context(), round)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "round not settled")
		return
	}

	total := new(big.Int)
	for _, row := range rows {
		if row.StakingRewards != nil {
			total.Add(total, row.StakingRewards)
		}
	}
	writeJSON(w, http.StatusOK, roundResponse{Round: round, Total: total, Records: rows})
}
