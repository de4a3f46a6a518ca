package server

import (
	"net/http"

	"IndexBridge/internal/basket"
	"IndexBridge/internal/core"
	"IndexBridge/internal/protocol"
	"IndexBridge/internal/query"
	"IndexBridge/internal/registry"
)

// Service exposes the node's operations over JSON-RPC. Mutations go
// through the settlement engine; history reads go to the query
// service.
type Service struct {
	engine *core.Engine
	query  *query.Service
}

func NewService(engine *core.Engine, qs *query.Service) *Service {
	return &Service{engine: engine, query: qs}
}

type BasketEntryArg struct {
	AssetContract string `json:"asset_contract"`
	HomeChain     uint16 `json:"home_chain"`
	Weight        uint64 `json:"weight"`
}

type InitializeArgs struct {
	Caller  string           `json:"caller"`
	Entries []BasketEntryArg `json:"entries"`
}

type InitializeReply struct {
	Initialized bool `json:"initialized"`
}

func (s *Service) Initialize(r *http.Request, args *InitializeArgs, reply *InitializeReply) error {
	entries := make([]basket.Entry, 0, len(args.Entries))
	for _, e := range args.Entries {
		entries = append(entries, basket.Entry{
			AssetContract: protocol.Address(e.AssetContract),
			HomeChain:     protocol.ChainID(e.HomeChain),
			Weight:        e.Weight,
		})
	}
	if err := s.engine.InitializeFund(r.Context(), protocol.Address(args.Caller), entries); err != nil {
		return err
	}
	reply.Initialized = true
	return nil
}

type InvestArgs struct {
	Investor string `json:"investor"`
	Amount   uint64 `json:"amount"`
	Fee      uint64 `json:"fee"`
}

type InvestReply struct {
	MintedShares uint64 `json:"minted_shares"`
}

func (s *Service) Invest(r *http.Request, args *InvestArgs, reply *InvestReply) error {
	minted, err := s.engine.Invest(r.Context(), protocol.Address(args.Investor), args.Amount, args.Fee)
	if err != nil {
		return err
	}
	reply.MintedShares = minted
	return nil
}

type RedeemArgs struct {
	Holder   string `json:"holder"`
	Shares   uint64 `json:"shares"`
	Receiver string `json:"receiver"`
	Fee      uint64 `json:"fee"`
}

type RedeemReply struct {
	Burned uint64 `json:"burned"`
}

func (s *Service) Redeem(r *http.Request, args *RedeemArgs, reply *RedeemReply) error {
	if err := s.engine.Redeem(r.Context(), protocol.Address(args.Holder), args.Shares, protocol.Address(args.Receiver), args.Fee); err != nil {
		return err
	}
	reply.Burned = args.Shares
	return nil
}

type MigrateArgs struct {
	Holder      string `json:"holder"`
	Shares      uint64 `json:"shares"`
	TargetChain uint16 `json:"target_chain"`
	TargetFund  string `json:"target_fund"`
	Fee         uint64 `json:"fee"`
}

type MigrateReply struct {
	DeliveryID string `json:"delivery_id"`
}

func (s *Service) Migrate(r *http.Request, args *MigrateArgs, reply *MigrateReply) error {
	id, err := s.engine.Migrate(r.Context(), protocol.Address(args.Holder), args.Shares,
		protocol.ChainID(args.TargetChain), protocol.Address(args.TargetFund), args.Fee)
	if err != nil {
		return err
	}
	reply.DeliveryID = id
	return nil
}

type SetPeersArgs struct {
	Caller   string `json:"caller"`
	Chain    uint16 `json:"chain"`
	Fund     string `json:"fund"`
	Router   string `json:"router"`
	Migrator string `json:"migrator"`
}

type SetPeersReply struct {
	OK bool `json:"ok"`
}

func (s *Service) SetPeers(r *http.Request, args *SetPeersArgs, reply *SetPeersReply) error {
	err := s.engine.SetPeers(r.Context(), protocol.Address(args.Caller), protocol.ChainID(args.Chain), registry.PeerSet{
		Fund:     protocol.Address(args.Fund),
		Router:   protocol.Address(args.Router),
		Migrator: protocol.Address(args.Migrator),
	})
	if err != nil {
		return err
	}
	reply.OK = true
	return nil
}

type RegisterWrappedAssetArgs struct {
	Caller      string `json:"caller"`
	HomeChain   uint16 `json:"home_chain"`
	HomeAddress string `json:"home_address"`
	Local       string `json:"local"`
}

type RegisterWrappedAssetReply struct {
	OK bool `json:"ok"`
}

func (s *Service) RegisterWrappedAsset(r *http.Request, args *RegisterWrappedAssetArgs, reply *RegisterWrappedAssetReply) error {
	err := s.engine.RegisterWrappedAsset(r.Context(), protocol.Address(args.Caller),
		protocol.ChainID(args.HomeChain), protocol.Address(args.HomeAddress), protocol.Address(args.Local))
	if err != nil {
		return err
	}
	reply.OK = true
	return nil
}

type UpdatePriceArgs struct {
	Caller string `json:"caller"`
	Fund   string `json:"fund"`
	Price  uint64 `json:"price"`
}

type UpdatePriceReply struct {
	OK bool `json:"ok"`
}

func (s *Service) UpdatePrice(r *http.Request, args *UpdatePriceArgs, reply *UpdatePriceReply) error {
	if err := s.engine.UpdatePrice(r.Context(), protocol.Address(args.Caller), protocol.Address(args.Fund), args.Price); err != nil {
		return err
	}
	reply.OK = true
	return nil
}

type QuoteArgs struct {
	TargetChain uint16 `json:"target_chain"`
}

type QuoteReply struct {
	Fee uint64 `json:"fee"`
}

func (s *Service) QuoteDepositCost(r *http.Request, args *QuoteArgs, reply *QuoteReply) error {
	fee, err := s.engine.QuoteDepositCost(r.Context(), protocol.ChainID(args.TargetChain))
	if err != nil {
		return err
	}
	reply.Fee = fee
	return nil
}

func (s *Service) QuoteMessageCost(r *http.Request, args *QuoteArgs, reply *QuoteReply) error {
	fee, err := s.engine.QuoteMessageCost(r.Context(), protocol.ChainID(args.TargetChain))
	if err != nil {
		return err
	}
	reply.Fee = fee
	return nil
}

type BalanceArgs struct {
	Holder string `json:"holder"`
}

type BalanceReply struct {
	Holder string `json:"holder"`
	Shares uint64 `json:"shares"`
}

func (s *Service) Balance(r *http.Request, args *BalanceArgs, reply *BalanceReply) error {
	bal, err := s.engine.BalanceOf(r.Context(), protocol.Address(args.Holder))
	if err != nil {
		return err
	}
	reply.Holder = args.Holder
	reply.Shares = bal
	return nil
}

type StatusArgs struct{}

type StatusReply struct {
	Initialized bool   `json:"initialized"`
	TotalSupply uint64 `json:"total_supply"`
	HolderCount int    `json:"holder_count"`
	InFlight    int    `json:"in_flight"`
}

func (s *Service) Status(r *http.Request, args *StatusArgs, reply *StatusReply) error {
	st, err := s.engine.Status(r.Context())
	if err != nil {
		return err
	}
	reply.Initialized = st.Initialized
	reply.TotalSupply = st.TotalSupply
	reply.HolderCount = st.HolderCount
	reply.InFlight = st.InFlight
	return nil
}

type JournalHistoryArgs struct {
	Holder string `json:"holder,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Before *int64 `json:"before,omitempty"`
}

type JournalHistoryReply struct {
	Entries []query.JournalRecord `json:"entries"`
}

func (s *Service) JournalHistory(r *http.Request, args *JournalHistoryArgs, reply *JournalHistoryReply) error {
	limit := args.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.query.JournalHistory(r.Context(), args.Holder, limit, args.Before)
	if err != nil {
		return err
	}
	reply.Entries = entries
	return nil
}

type DeliveryArgs struct {
	DeliveryID string `json:"delivery_id"`
}

type DeliveryReply struct {
	Settled  bool                  `json:"settled"`
	Delivery *query.DeliveryRecord `json:"delivery,omitempty"`
}

func (s *Service) Delivery(r *http.Request, args *DeliveryArgs, reply *DeliveryReply) error {
	d, err := s.query.Delivery(r.Context(), args.DeliveryID)
	if err != nil {
		return err
	}
	reply.Settled = d != nil
	reply.Delivery = d
	return nil
}

type SupplyArgs struct{}

func (s *Service) Supply(r *http.Request, args *SupplyArgs, reply *query.SupplyStats) error {
	stats, err := s.query.Supply(r.Context())
	if err != nil {
		return err
	}
	*reply = *stats
	return nil
}
