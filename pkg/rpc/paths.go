package rpc

// Decoder sidecar endpoint paths.
const (
	headPath     = "/v1/chain/head"
	blocksPath   = "/v1/chain/blocks"
	versionsPath = "/v1/metadata/events"
	storagePath  = "/v1/storage"
)

// ParachainStaking storage items.
const (
	itemTotal              = "Total"
	itemSelectedCandidates = "SelectedCandidates"
	itemCandidateInfo      = "CandidateInfo"
	itemDelegatorState     = "DelegatorState"
	itemRound              = "Round"
)
