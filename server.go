package escrowd

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/yiplee/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	// PackageID is the deployed contract package.
	PackageID string
	// EscrowModule defaults to DefaultEscrowModule.
	EscrowModule string
	// CoinTypes are the asset types shown on the balances view.
	CoinTypes []string
	// Issuer expected on API bearer tokens.
	Issuer string
	// JWTSecret signs and verifies API bearer tokens.
	JWTSecret []byte
	// ListingTTL bounds how stale a cached listing may get.
	ListingTTL time.Duration
}

type Server struct {
	db     *badger.DB
	ledger Ledger
	cfg    Config

	reconciler *Reconciler
	selector   CoinSelector

	coins    *cache.Cache[string, []CoinHandle]
	balances *cache.Cache[string, []*AssetBalance]
	sf       singleflight.Group

	mu        sync.Mutex
	detectors map[string]*Detector
	pickers   map[string]*PaymentCoinPicker
	coinViews map[string]map[string]struct{}
}

func NewServer(db *badger.DB, ledger Ledger, cfg Config) *Server {
	if cfg.EscrowModule == "" {
		cfg.EscrowModule = DefaultEscrowModule
	}

	if cfg.ListingTTL <= 0 {
		cfg.ListingTTL = time.Minute
	}

	contract := EscrowContract{PackageID: cfg.PackageID, Module: cfg.EscrowModule}

	return &Server{
		db:         db,
		ledger:     ledger,
		cfg:        cfg,
		reconciler: NewReconciler(ledger, contract),
		selector:   NewCoinSelector(ledger),
		coins:      cache.New[string, []CoinHandle](),
		balances:   cache.New[string, []*AssetBalance](),
		detectors:  make(map[string]*Detector),
		pickers:    make(map[string]*PaymentCoinPicker),
		coinViews:  make(map[string]map[string]struct{}),
	}
}

func (s *Server) Contract() EscrowContract {
	return EscrowContract{PackageID: s.cfg.PackageID, Module: s.cfg.EscrowModule}
}

// detectorFor returns the per-account detector, so a newer detection
// by the same account supersedes an in-flight older one.
func (s *Server) detectorFor(owner string) *Detector {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.detectors[owner]
	if !ok {
		d = NewDetector(s.ledger, s.Contract())
		s.detectors[owner] = d
	}

	return d
}

func (s *Server) pickerFor(owner string) *PaymentCoinPicker {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pickers[owner]
	if !ok {
		p = &PaymentCoinPicker{}
		s.pickers[owner] = p
	}

	return p
}

// cacheCoins stores a coin view and remembers the asset type so
// invalidate can find it later, including custom types.
func (s *Server) cacheCoins(owner, assetType string, coins []CoinHandle) {
	s.coins.Set(coinKey(owner, assetType), coins)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coinViews[owner] == nil {
		s.coinViews[owner] = make(map[string]struct{})
	}
	s.coinViews[owner][assetType] = struct{}{}
}

// invalidate drops every cached balance and coin view for an address,
// after a confirmed submission changed its holdings.
func (s *Server) invalidate(owner string) {
	s.balances.Delete(owner)

	s.mu.Lock()
	types := s.coinViews[owner]
	delete(s.coinViews, owner)
	s.mu.Unlock()

	for assetType := range types {
		s.coins.Delete(coinKey(owner, assetType))
	}
}

func coinKey(owner, assetType string) string {
	return owner + "|" + assetType
}

func (s *Server) Run(ctx context.Context) error {
	var g errgroup.Group

	g.Go(func() error {
		return s.HandlePendingJobs(ctx)
	})

	return g.Wait()
}
