package server

import (
	"nftstake/crypto"
	"nftstake/native/staking"
)

type positionRequest struct {
	ID             string `json:"id"`
	AttachedAsset  string `json:"attachedAsset,omitempty"`
	AttachedAmount uint64 `json:"attachedAmount,omitempty"`
}

type batchRequest struct {
	IDs            []string `json:"ids"`
	AttachedAsset  string   `json:"attachedAsset,omitempty"`
	AttachedAmount uint64   `json:"attachedAmount,omitempty"`
}

type depositRequest struct {
	AttachedAsset  string `json:"attachedAsset"`
	AttachedAmount uint64 `json:"attachedAmount"`
}

type addressRequest struct {
	Address string `json:"address"`
}

type rateRequest struct {
	Rate uint64 `json:"rate"`
}

type proposalRequest struct {
	Tag   string `json:"tag"`
	Value uint64 `json:"value"`
}

type operatorPauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type positionResponse struct {
	ID       string `json:"id"`
	Owner    string `json:"owner"`
	StakedAt int64  `json:"stakedAt"`
}

func newPositionResponse(pos *staking.Position) positionResponse {
	return positionResponse{ID: pos.ID.Hex(), Owner: crypto.FormatAddress(pos.Owner), StakedAt: pos.StakedAt}
}

func newPositionResponses(in []*staking.Position) []positionResponse {
	out := make([]positionResponse, 0, len(in))
	for _, pos := range in {
		out = append(out, newPositionResponse(pos))
	}
	return out
}

type unstakeResponse struct {
	Position positionResponse `json:"position"`
	Reward   uint64           `json:"reward"`
	Penalty  uint64           `json:"penalty"`
	Early    bool             `json:"early"`
	PaidOut  bool             `json:"paidOut"`
}

func newUnstakeResponse(res *staking.UnstakeResult) unstakeResponse {
	return unstakeResponse{
		Position: newPositionResponse(res.Position),
		Reward:   res.Reward,
		Penalty:  res.Penalty,
		Early:    res.Early,
		PaidOut:  res.PaidOut,
	}
}

type accountResponse struct {
	Owner          string   `json:"owner"`
	PositionCount  uint64   `json:"positionCount"`
	RewardBalance  uint64   `json:"rewardBalance"`
	LastWithdrawal int64    `json:"lastWithdrawal"`
	Positions      []string `json:"positions"`
}

func newAccountResponse(info *staking.AccountInfo) accountResponse {
	ids := make([]string, 0, len(info.Positions))
	for _, id := range info.Positions {
		ids = append(ids, id.Hex())
	}
	return accountResponse{
		Owner:          crypto.FormatAddress(info.Owner),
		PositionCount:  info.PositionCount,
		RewardBalance:  info.RewardBalance,
		LastWithdrawal: info.LastWithdrawal,
		Positions:      ids,
	}
}

type governanceResponse struct {
	Initialized            bool   `json:"initialized"`
	Owner                  string `json:"owner,omitempty"`
	Paused                 bool   `json:"paused"`
	RewardRate             uint64 `json:"rewardRate"`
	MinLockPeriod          uint64 `json:"minLockPeriod"`
	WithdrawalCooldown     uint64 `json:"withdrawalCooldown"`
	AllowEarlyUnstake      bool   `json:"allowEarlyUnstake"`
	EarlyUnstakePenaltyBps uint64 `json:"earlyUnstakePenaltyBps"`
	TotalStaked            uint64 `json:"totalStaked"`
	TotalDistributed       uint64 `json:"totalDistributed"`
	LastDistributionTime   int64  `json:"lastDistributionTime"`
}

func newGovernanceResponse(gov *staking.Governance) governanceResponse {
	resp := governanceResponse{
		Paused:                 gov.Paused,
		RewardRate:             gov.RewardRate,
		MinLockPeriod:          gov.MinLockPeriod,
		WithdrawalCooldown:     gov.WithdrawalCooldown,
		AllowEarlyUnstake:      gov.AllowEarlyUnstake,
		EarlyUnstakePenaltyBps: gov.EarlyUnstakePenaltyBps,
		TotalStaked:            gov.TotalStaked,
		TotalDistributed:       gov.Distribution.TotalDistributed,
		LastDistributionTime:   gov.Distribution.LastDistributionTime,
	}
	if owner, ok := staking.OwnerOf(gov.Owner); ok {
		resp.Initialized = true
		resp.Owner = crypto.FormatAddress(owner)
	}
	return resp
}

type statsResponse struct {
	TotalStaked          uint64 `json:"totalStaked"`
	RewardRate           uint64 `json:"rewardRate"`
	Paused               bool   `json:"paused"`
	TotalDistributed     uint64 `json:"totalDistributed"`
	LastDistributionTime int64  `json:"lastDistributionTime"`
	RewardReserve        uint64 `json:"rewardReserve"`
}

type loginResponse struct {
	Token     string `json:"token"`
	Address   string `json:"address"`
	ExpiresAt int64  `json:"expiresAt"`
}

type eventResponse struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type"`
	Time       int64             `json:"time"`
	Attributes map[string]string `json:"attributes"`
}
